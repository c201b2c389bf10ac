package realtime

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpgrader_CheckOrigin(t *testing.T) {
	cases := map[string]struct {
		allowed []string
		origin  string
		want    bool
	}{
		"no origin header":     {origin: "", want: true},
		"same origin":          {origin: "http://relay.example.com", want: true},
		"loopback":             {origin: "http://localhost:5173", want: true},
		"loopback ip":          {origin: "http://127.0.0.1:3000", want: true},
		"foreign origin":       {origin: "https://evil.example.org", want: false},
		"allowlisted origin":   {allowed: []string{"https://support.example.org"}, origin: "https://support.example.org", want: true},
		"allowlisted host":     {allowed: []string{"support.example.org"}, origin: "https://Support.Example.org:8443", want: true},
		"wildcard":             {allowed: []string{"*"}, origin: "https://anything.example.net", want: true},
		"allowlist not prefix": {allowed: []string{"example.org"}, origin: "https://support.example.org", want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://relay.example.com:8080/ws/relay", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			require.Equal(t, tc.want, NewUpgrader(tc.allowed).CheckOrigin(req))
		})
	}
}

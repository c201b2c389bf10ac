package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestQueryInt(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[string]struct {
		query string
		want  int
		ok    bool
		body  string
	}{
		"absent uses fallback": {query: "", want: 50, ok: true},
		"in range":             {query: "?limit=20", want: 20, ok: true},
		"above max":            {query: "?limit=201", ok: false, body: "limit must be at most 200"},
		"below min":            {query: "?limit=0", ok: false, body: "limit must be at least 1"},
		"not a number":         {query: "?limit=abc", ok: false, body: "limit must be an integer"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)

			got, ok := queryInt(c, "limit", 50, "min=1,max=200")
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, got)
				return
			}
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestPrettifyFieldName(t *testing.T) {
	require.Equal(t, "before id", prettifyFieldName("before_ID"))
	require.Equal(t, "field", prettifyFieldName(""))
}

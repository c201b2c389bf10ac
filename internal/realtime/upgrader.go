package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// NewUpgrader returns a websocket upgrader that accepts same-origin requests, loopback origins
// and any origin whose host appears in allowedOrigins. A "*" entry accepts every origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if host := hostWithoutPort(origin); host != "" {
			allowed[strings.ToLower(host)] = struct{}{}
		}
		if strings.TrimSpace(origin) == "*" {
			allowed["*"] = struct{}{}
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			originHost := strings.ToLower(hostWithoutPort(origin))
			if originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost) {
				return true
			}
			_, ok := allowed[originHost]
			return ok
		},
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || host == "*" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		if parsed, err := url.Parse(host); err == nil {
			return hostWithoutPort(parsed.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

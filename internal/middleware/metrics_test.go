package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/handoff/pkg/metrics"
)

func TestMetricsObservesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/probe/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/probe-ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.CollectAndCount(metrics.APILatency)

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))

	req := httptest.NewRequest(http.MethodGet, "/probe-ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
}

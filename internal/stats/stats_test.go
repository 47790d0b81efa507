package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdaterCounters(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("Connections")
	su.Run()
	defer su.Stop()

	su.Incr("Connections")
	su.Incr("Connections")
	su.Decr("Connections")

	assert.Eventually(t, func() bool {
		metric, ok := su.vars.Get("Connections").(*expvar.Int)
		return ok && metric.Value() == 1
	}, time.Second, 5*time.Millisecond, "expected counter to settle at 1")
}

func Test_expvarHandler(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric("OnlineUsers")
	su.Run()
	defer su.Stop()

	su.Incr("OnlineUsers")

	assert.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
		su.expvarHandler(rr, req)

		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			return false
		}
		return body["OnlineUsers"] == float64(1)
	}, time.Second, 5*time.Millisecond, "expected the counter exposed over the handler")
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                              "/",
		"":                               "/",
		"/healthz":                       "/healthz",
		"/api/v1/messages":               "/api/v1/messages",
		"/api/v1/messages/abc/read":      "/api/v1/messages/:id",
		"/api/v1/messages/unread/user-1": "/api/v1/messages/:id",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestRecordPushCounts(t *testing.T) {
	before := testutil.ToFloat64(outboundPushes.WithLabelValues("user_status", ResultMiss))
	RecordPush("user_status", ResultMiss)
	RecordPush("user_status", ResultMiss)
	after := testutil.ToFloat64(outboundPushes.WithLabelValues("user_status", ResultMiss))
	assert.Equal(t, before+2, after)
}

func TestSetConnectedUsers(t *testing.T) {
	SetConnectedUsers(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(connectedUsers))
	SetConnectedUsers(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(connectedUsers))
}

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew", "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew", "418")))
}

func TestHandlerExposesRealtimeMetrics(t *testing.T) {
	RecordInbound("send_message")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kolmo_realtime_inbound_events_total"))
}

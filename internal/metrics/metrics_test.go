package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Reservation("reserved")
	m.Reservation("reserved")
	m.Reservation("insufficient")
	m.SettlementAttempt(false)
	m.SettlementOutcome("exhausted")
	m.PaymentTransition("PENDING", "COMPLETED")
	m.FailureRecorded()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementOutcomes.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentTransitions.WithLabelValues("PENDING", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failuresRecorded))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reservation("reserved")
		m.SettlementAttempt(true)
		m.FailureRecorded()
	})
}

func TestMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/1", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}

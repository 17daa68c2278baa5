package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOnIsolatedRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncAuthOutcome("rop", "failure")
	m.IncAuthOutcome("rop", "failure")
	m.IncAccountOperation("resend_notification", "confirmed")
	m.ObserveTokenExchange("password", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("rop", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccountOperations.WithLabelValues("resend_notification", "confirmed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncAuthOutcome("code", "success")
		m.ObserveTokenExchange("authorization_code", time.Now())
		m.IncAccountOperation("sign_up", "created")
		m.ObserveManagementCall("sign_up", time.Now())
		m.IncRateLimited("/rop/login/submit")
	})
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementRegistered()
	m.IncrementRegistered()
	m.IncrementConflict("phone_taken")
	m.IncrementInvalidPhone()
	m.ObserveOperation("register", time.Now())
	m.ObserveCacheLookup("hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PatientsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationConflicts.WithLabelValues("phone_taken")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RegistrationConflicts.WithLabelValues("already_registered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidPhoneNumbers))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the patient registry.
type Metrics struct {
	PatientsRegistered    prometheus.Counter
	RegistrationConflicts *prometheus.CounterVec
	InvalidPhoneNumbers   prometheus.Counter
	OperationDuration     *prometheus.HistogramVec
	CacheLookups          *prometheus.CounterVec
}

// New registers the patient metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PatientsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "patient_registry_patients_registered_total",
			Help: "Total number of patients registered",
		}),
		RegistrationConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patient_registry_conflicts_total",
			Help: "Registrations and updates rejected because the phone number is in use",
		}, []string{"reason"}),
		InvalidPhoneNumbers: factory.NewCounter(prometheus.CounterOpts{
			Name: "patient_registry_invalid_phone_numbers_total",
			Help: "Requests rejected because the phone number failed validation",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patient_registry_operation_duration_seconds",
			Help:    "Duration of registry operations including store round-trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patient_registry_cache_lookups_total",
			Help: "Patient cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// IncrementRegistered records a successful registration.
func (m *Metrics) IncrementRegistered() {
	m.PatientsRegistered.Inc()
}

// IncrementConflict records a rejected registration or update.
// reason is "already_registered" or "phone_taken".
func (m *Metrics) IncrementConflict(reason string) {
	m.RegistrationConflicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementInvalidPhone() {
	m.InvalidPhoneNumbers.Inc()
}

// ObserveOperation records the duration of a registry operation.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveCacheLookup records the result of a patient cache read.
func (m *Metrics) ObserveCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Package metrics регистрирует счётчики Prometheus для наблюдения за
// исходами верификации. Метрики отдаются хэндлером promhttp на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VerifyOutcomes считает верификации по исходам: verified, unknown_key,
// product_blocked, device_conflict, error.
var VerifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "license_gatekeeper_verify_total",
	Help: "Number of key verifications by outcome.",
}, []string{"outcome"})

// TrialActivations считает активации пробного периода.
var TrialActivations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "license_gatekeeper_trial_activations_total",
	Help: "Number of trial activations performed by verification.",
})

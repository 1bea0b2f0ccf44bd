// Package metrics holds the prometheus collectors of the session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pesantren"

// Profile resolution outcomes
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeNotFound = "not_found"
)

var (
	ProfileResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "profile",
		Name:      "resolutions_total",
		Help:      "Profile resolutions by outcome. Anything but ok degrades to guest.",
	}, []string{"outcome"})

	GuardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Route guard evaluations by resulting state.",
	}, []string{"state"})

	DenialNotices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "denial_notices_total",
		Help:      "Denial notifications emitted after throttling.",
	})

	IdleExpirations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "idle_expirations_total",
		Help:      "Sessions torn down by the idle monitor.",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently held in memory.",
	})

	RoleSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "profile",
		Name:      "role_switches_total",
		Help:      "Successful role switches by target role.",
	}, []string{"role"})
)

// Register registers every collector of the package on reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		ProfileResolutions,
		GuardDecisions,
		DenialNotices,
		IdleExpirations,
		ActiveSessions,
		RoleSwitches,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Package guard decides, for every navigation, whether the current session may see a page.
//
// A decision is computed from scratch each time from the session snapshot and the permission table.
// The only state a Guard keeps is the throttle of its denial notices.
package guard

import (
	"net/url"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/metrics"
	"github.com/trezcool/pesantren/core/rbac"
	"github.com/trezcool/pesantren/core/session"
)

// State is the outcome of a guard evaluation.
type State string

const (
	Loading         State = "LOADING"
	Unauthenticated State = "UNAUTHENTICATED"
	Authorized      State = "AUTHENTICATED_AUTHORIZED"
	Unauthorized    State = "AUTHENTICATED_UNAUTHORIZED"
)

const (
	nextParam    = "next"
	deniedNotice = "Anda tidak memiliki akses ke halaman tersebut."
)

// Requirement is what a page asks of the active role. The zero Requirement only asks for an identity.
type Requirement struct {
	Roles  []rbac.Role `yaml:"roles" json:"roles,omitempty"`
	Module string      `yaml:"module" json:"module,omitempty"`
}

// Allows reports whether sub, acting with its active role, meets r.
func (r Requirement) Allows(sub rbac.Subject) bool {
	if len(r.Roles) > 0 && !sub.CanAccessWithActiveRole(r.Roles...) {
		return false
	}
	if r.Module != "" && !sub.CanAccess(r.Module) {
		return false
	}
	return true
}

// Decision is where a navigation goes. Notice is set at most once per cooldown across the Guard.
type Decision struct {
	State    State  `json:"state"`
	Redirect string `json:"redirect,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

type Guard struct {
	loginPath    string
	fallbackPath string
	notices      *session.Throttle
}

func New(conf core.SessionConfig, clock session.Clock) *Guard {
	fallback := conf.FallbackPath
	if fallback == "" {
		fallback = "/"
	}
	return &Guard{
		loginPath:    conf.LoginPath,
		fallbackPath: fallback,
		notices:      session.NewThrottle(conf.DenialCooldown, clock),
	}
}

// Evaluate decides whether snap may navigate to path. Requirements are those of the nested guards
// wrapping the page, outer first; every one of them must pass.
func (g *Guard) Evaluate(snap session.Snapshot, path string, reqs ...Requirement) Decision {
	d := g.evaluate(snap, path, reqs)
	metrics.GuardDecisions.WithLabelValues(string(d.State)).Inc()
	return d
}

func (g *Guard) evaluate(snap session.Snapshot, path string, reqs []Requirement) Decision {
	if snap.Loading {
		return Decision{State: Loading}
	}
	if !snap.Authenticated() {
		return Decision{State: Unauthenticated, Redirect: g.LoginRedirect(path)}
	}

	sub := snap.Resolution().Subject()
	for _, req := range reqs {
		if !req.Allows(sub) {
			d := Decision{State: Unauthorized, Redirect: g.fallbackPath}
			if g.notices.Allow() {
				d.Notice = deniedNotice
				metrics.DenialNotices.Inc()
			}
			return d
		}
	}
	return Decision{State: Authorized}
}

// LoginRedirect returns the login path carrying path as the post-login destination.
func (g *Guard) LoginRedirect(path string) string {
	if path == "" || path == g.loginPath {
		return g.loginPath
	}
	q := url.Values{}
	q.Set(nextParam, path)
	return g.loginPath + "?" + q.Encode()
}

// ResetNotices forgets past denial notices.
func (g *Guard) ResetNotices() { g.notices.Reset() }

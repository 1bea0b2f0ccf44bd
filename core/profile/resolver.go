package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/metrics"
)

// flightTimeout bounds a fetch nobody waits for anymore.
var flightTimeout = 30 * time.Second

// FetchFunc loads the profile record of an identity.
type FetchFunc func(ctx context.Context, id string) (Record, error)

// Resolver loads profiles under a deadline. It never fails: any error or a missed deadline resolves to guest.
// Concurrent resolutions of the same identity share one fetch.
type Resolver struct {
	fetch   FetchFunc
	timeout time.Duration
	logger  core.Logger
	group   singleflight.Group
}

func NewResolver(fetch FetchFunc, timeout time.Duration, logger core.Logger) *Resolver {
	return &Resolver{fetch: fetch, timeout: timeout, logger: logger}
}

// Resolve returns the resolution of the identity's profile, guest when it cannot be loaded in time.
func (r *Resolver) Resolve(ctx context.Context, id string) Resolution {
	rec, ok := r.lookup(ctx, id)
	if !ok {
		return GuestResolution()
	}
	return Normalize(rec)
}

// Forget makes the next resolution of id fetch again instead of joining a fetch already in flight.
func (r *Resolver) Forget(id string) {
	r.group.Forget(id)
}

func (r *Resolver) lookup(ctx context.Context, id string) (Record, bool) {
	if id == "" {
		return Record{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// the fetch outlives this caller: it is only abandoned, its result discarded
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (interface{}, error) {
		fctx, fcancel := context.WithTimeout(flightCtx, flightTimeout)
		defer fcancel()
		return r.fetch(fctx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			outcome := metrics.OutcomeError
			if errors.Cause(res.Err) == ErrNotFound {
				outcome = metrics.OutcomeNotFound
			}
			metrics.ProfileResolutions.WithLabelValues(outcome).Inc()
			r.warn(fmt.Sprintf("fetching profile: %v", res.Err), res.Err, id)
			return Record{}, false
		}
		metrics.ProfileResolutions.WithLabelValues(metrics.OutcomeOK).Inc()
		return res.Val.(Record), true
	case <-ctx.Done():
		metrics.ProfileResolutions.WithLabelValues(metrics.OutcomeTimeout).Inc()
		r.warn(fmt.Sprintf("fetching profile: gave up after %v", r.timeout), ctx.Err(), id)
		return Record{}, false
	}
}

func (r *Resolver) warn(msg string, err error, id string) {
	if r.logger != nil {
		r.logger.Warn(msg, err, core.Person{ID: id})
	}
}

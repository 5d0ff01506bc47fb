package auth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RedirectTarget is the screen shown after authentication.
type RedirectTarget int

const (
	NoTarget RedirectTarget = iota
	AdminDashboard
	UserDashboard
	AddressSetup
)

// Path returns the route of the target.
func (t RedirectTarget) Path() string {
	switch t {
	case AdminDashboard:
		return "/admin/dashboard"
	case UserDashboard:
		return "/dashboard"
	case AddressSetup:
		return "/addresses"
	default:
		return ""
	}
}

func (t RedirectTarget) String() string {
	switch t {
	case AdminDashboard:
		return "AdminDashboard"
	case UserDashboard:
		return "UserDashboard"
	case AddressSetup:
		return "AddressSetup"
	default:
		return "None"
	}
}

// AddressChecker reports whether the signed-in user has a saved address. It
// authenticates with the session cookie, not the bearer token.
type AddressChecker interface {
	HasAddress(ctx context.Context) (bool, error)
}

// DefaultProbeTimeout bounds the address probe.
const DefaultProbeTimeout = 5 * time.Second

// RedirectDecider picks the destination after login.
type RedirectDecider struct {
	checker AddressChecker
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewRedirectDecider(checker AddressChecker, timeout time.Duration, log logrus.FieldLogger) *RedirectDecider {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedirectDecider{checker: checker, timeout: timeout, log: log}
}

// Decide always returns exactly one target. Administrators skip the address
// probe. For ordinary users any probe failure, including the timeout, routes
// to AddressSetup.
func (d *RedirectDecider) Decide(ctx context.Context, data LoginData) RedirectTarget {
	if IsAdministrator(data.RoleID, data.IsAdmin) {
		return AdminDashboard
	}
	if d.checker == nil {
		return AddressSetup
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type probe struct {
		has bool
		err error
	}
	done := make(chan probe, 1)
	go func() {
		has, err := d.checker.HasAddress(probeCtx)
		done <- probe{has: has, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			d.log.WithError(res.err).Warn("address check failed")
			return AddressSetup
		}
		if res.has {
			return UserDashboard
		}
		return AddressSetup
	case <-probeCtx.Done():
		d.log.WithError(probeCtx.Err()).Warn("address check did not finish")
		return AddressSetup
	}
}

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Fallback codes used when the backend gives no usable code.
const (
	CodeLoginFailed = "EL001"
	CodeServerError = "EA010"
)

const (
	MsgCredentialsRequired = "Username and password are required."
	MsgLoginSucceeded      = "Login successful!"
	MsgInvalidCredentials  = "Invalid credentials."
)

// DefaultRedirectDelay keeps the success message visible before navigating.
const DefaultRedirectDelay = 600 * time.Millisecond

var (
	// ErrSubmitInFlight is returned when Submit is called while a previous
	// submission has not finished. The second submission is dropped.
	ErrSubmitInFlight = errors.New("auth: login already in progress")
	// ErrCredentialsRequired reports a submission with a blank field.
	ErrCredentialsRequired = errors.New("auth: username and password are required")
	// ErrLoginRejected reports an ok=false response from the identity service.
	ErrLoginRejected = errors.New("auth: login rejected")
)

// State is a step of the login state machine.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateSucceeded
	StateRedirecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateRedirecting:
		return "redirecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MessageKind tells the view how to style Status.Message.
type MessageKind int

const (
	MessageNone MessageKind = iota
	MessageError
	MessageSuccess
)

// Status is published on every transition.
type Status struct {
	State   State
	Message string
	Kind    MessageKind
	Target  RedirectTarget
}

// SessionWriter persists the tokens of a successful login.
type SessionWriter interface {
	Store(data LoginData) error
}

// ErrorResolver maps an error code to display text.
type ErrorResolver interface {
	ResolveError(code string) string
}

// Decider chooses where to go after a successful login.
type Decider interface {
	Decide(ctx context.Context, data LoginData) RedirectTarget
}

// Option configures a Controller.
type Option func(*Controller)

// WithRedirectDelay sets how long the success message stays before the
// redirect decision runs.
func WithRedirectDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.delay = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver registers a callback receiving every Status. It is called on
// the goroutine running Submit.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller runs the login submission flow.
type Controller struct {
	provider IdentityProvider
	sessions SessionWriter
	messages ErrorResolver
	decider  Decider
	delay    time.Duration
	log      logrus.FieldLogger
	observer func(Status)

	inFlight atomic.Bool
	mu       sync.RWMutex
	status   Status
}

func NewController(provider IdentityProvider, sessions SessionWriter, messages ErrorResolver, decider Decider, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		sessions: sessions,
		messages: messages,
		decider:  decider,
		delay:    DefaultRedirectDelay,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the latest published status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}

// Submit runs one login attempt to a terminal state and returns it. On
// success it blocks through the redirect delay and the redirect decision, so
// callers on a UI thread should run it in a goroutine.
func (c *Controller) Submit(ctx context.Context, creds Credentials) (Status, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return c.Status(), ErrSubmitInFlight
	}
	defer c.inFlight.Store(false)

	c.publish(Status{State: StateValidating})
	if strings.TrimSpace(creds.Username) == "" || strings.TrimSpace(creds.Password) == "" {
		return c.fail(MsgCredentialsRequired), ErrCredentialsRequired
	}

	c.publish(Status{State: StateSubmitting})
	result, err := c.provider.Login(ctx, creds)
	if err == nil && result == nil {
		err = errors.New("auth: identity provider returned no result")
	}
	if err != nil {
		c.log.WithError(err).WithField("username", creds.Username).Warn("login request failed")
		return c.fail(c.resolve(CodeServerError)), err
	}

	if !result.OK {
		code := result.Code
		if code == "" {
			code = CodeLoginFailed
		}
		message := result.Message
		if message == "" {
			message = c.resolve(code)
		}
		c.log.WithFields(logrus.Fields{"username": creds.Username, "code": code}).Info("login rejected")
		return c.fail(message), ErrLoginRejected
	}

	data := LoginData{}
	if result.Data != nil {
		data = *result.Data
	}
	if err := c.sessions.Store(data); err != nil {
		c.log.WithError(err).Error("failed to persist session")
		return c.fail(c.resolve(CodeServerError)), err
	}
	c.log.WithField("username", creds.Username).Info("login succeeded")
	c.publish(Status{State: StateSucceeded, Message: MsgLoginSucceeded, Kind: MessageSuccess})

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return c.Status(), ctx.Err()
		}
	}

	target := c.decider.Decide(ctx, data)
	final := Status{State: StateRedirecting, Message: MsgLoginSucceeded, Kind: MessageSuccess, Target: target}
	c.publish(final)
	return final, nil
}

func (c *Controller) resolve(code string) string {
	if c.messages != nil {
		if text := c.messages.ResolveError(code); text != "" {
			return text
		}
	}
	return MsgInvalidCredentials
}

func (c *Controller) fail(message string) Status {
	s := Status{State: StateFailed, Message: message, Kind: MessageError}
	c.publish(s)
	return s
}

func (c *Controller) publish(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(s)
	}
}

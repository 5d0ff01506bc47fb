package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/internal/auth"
)

// TokenSource exposes the persisted token.
type TokenSource interface {
	Get() (Token, bool)
}

// UserFetcher loads the profile of the user owning token.
type UserFetcher interface {
	CurrentUser(ctx context.Context, token string) (*auth.UserProfile, error)
}

// State is a snapshot of the provider.
type State struct {
	User    *auth.UserProfile
	Loading bool
}

// Provider holds the current user. It is populated once, at start, from the
// token persisted by a previous run; later logins update it with SetUser.
type Provider struct {
	tokens  TokenSource
	fetcher UserFetcher
	log     logrus.FieldLogger

	start sync.Once
	done  chan struct{}

	mu      sync.RWMutex
	user    *auth.UserProfile
	loading bool
	subs    map[int]func(State)
	nextSub int
}

func NewProvider(tokens TokenSource, fetcher UserFetcher, log logrus.FieldLogger) *Provider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provider{
		tokens:  tokens,
		fetcher: fetcher,
		log:     log,
		done:    make(chan struct{}),
		loading: true,
		subs:    make(map[int]func(State)),
	}
}

// Start fetches the current user in the background. Only the first call has
// an effect.
func (p *Provider) Start(ctx context.Context) {
	p.start.Do(func() {
		go p.run(ctx)
	})
}

func (p *Provider) run(ctx context.Context) {
	var user *auth.UserProfile
	if token, ok := p.tokens.Get(); ok && token.Access != "" {
		// The token is passed explicitly rather than relying on the client's
		// default header.
		u, err := p.fetcher.CurrentUser(ctx, token.Access)
		if err != nil {
			p.log.WithError(err).Warn("user fetch failed")
		} else {
			user = u
		}
	}

	p.mu.Lock()
	p.user = user
	p.loading = false
	p.mu.Unlock()
	p.notify()
	close(p.done)
}

// Done is closed once loading has finished.
func (p *Provider) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until loading has finished or ctx ends.
func (p *Provider) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// CurrentUser returns the user once loading has finished. ok is false while
// loading or when nobody is signed in.
func (p *Provider) CurrentUser() (*auth.UserProfile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.loading || p.user == nil {
		return nil, false
	}
	return p.user, true
}

func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{User: p.user, Loading: p.loading}
}

// SetUser replaces the current user and notifies subscribers.
func (p *Provider) SetUser(u *auth.UserProfile) {
	p.mu.Lock()
	p.user = u
	p.mu.Unlock()
	p.notify()
}

// Subscribe registers fn for state changes and returns a function removing
// it.
func (p *Provider) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Close is the logout teardown: the user is dropped and subscribers are
// notified one last time, then removed.
func (p *Provider) Close() {
	p.mu.Lock()
	p.user = nil
	p.mu.Unlock()
	p.notify()

	p.mu.Lock()
	p.subs = make(map[int]func(State))
	p.mu.Unlock()
}

func (p *Provider) notify() {
	p.mu.RLock()
	state := State{User: p.user, Loading: p.loading}
	subs := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}

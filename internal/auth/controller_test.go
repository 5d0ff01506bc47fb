package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portal-client/v2/core"
	"github.com/portal-client/v2/internal/auth"
	"github.com/portal-client/v2/internal/catalog"
)

type fakeProvider struct {
	result  *auth.LoginResult
	err     error
	release chan struct{}
	calls   atomic.Int32
	last    auth.Credentials
}

func (f *fakeProvider) Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResult, error) {
	f.calls.Add(1)
	f.last = creds
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

// journal records the order in which collaborators are reached.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeSessions struct {
	j      *journal
	err    error
	stored *auth.LoginData
}

func (f *fakeSessions) Store(data auth.LoginData) error {
	f.j.add("store")
	if f.err != nil {
		return f.err
	}
	f.stored = &data
	return nil
}

type fakeDecider struct {
	j      *journal
	target auth.RedirectTarget
	got    auth.LoginData
}

func (f *fakeDecider) Decide(_ context.Context, data auth.LoginData) auth.RedirectTarget {
	f.j.add("decide")
	f.got = data
	return f.target
}

func errorCatalog(t *testing.T, raw string) *catalog.Catalog {
	t.Helper()
	store := core.NewMemoryStorage()
	if raw != "" {
		require.NoError(t, store.Set("user_error", raw))
	}
	c, err := catalog.Load(store)
	require.NoError(t, err)
	return c
}

type harness struct {
	provider *fakeProvider
	sessions *fakeSessions
	decider  *fakeDecider
	journal  *journal
	statuses []auth.Status
	mu       sync.Mutex
	ctrl     *auth.Controller
}

func newHarness(t *testing.T, provider *fakeProvider, messages *catalog.Catalog) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		provider: provider,
		sessions: &fakeSessions{j: j},
		decider:  &fakeDecider{j: j, target: auth.UserDashboard},
		journal:  j,
	}
	h.ctrl = auth.NewController(provider, h.sessions, messages, h.decider,
		auth.WithRedirectDelay(5*time.Millisecond),
		auth.WithLogger(quietLogger()),
		auth.WithObserver(func(s auth.Status) {
			h.mu.Lock()
			h.statuses = append(h.statuses, s)
			h.mu.Unlock()
		}),
	)
	return h
}

func (h *harness) states() []auth.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]auth.State, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s.State)
	}
	return out
}

func TestSubmitRequiresCredentialsWithoutNetwork(t *testing.T) {
	t.Parallel()

	cases := []auth.Credentials{
		{Username: "", Password: "secret"},
		{Username: "mia", Password: ""},
		{Username: "   ", Password: "secret"},
		{Username: "mia", Password: "\t\n"},
	}
	for _, creds := range cases {
		provider := &fakeProvider{result: &auth.LoginResult{OK: true}}
		h := newHarness(t, provider, catalog.Empty())

		status, err := h.ctrl.Submit(context.Background(), creds)
		require.ErrorIs(t, err, auth.ErrCredentialsRequired)
		assert.Equal(t, auth.StateFailed, status.State)
		assert.Equal(t, auth.MessageError, status.Kind)
		assert.Equal(t, "Username and password are required.", status.Message)
		assert.Zero(t, provider.calls.Load())
		assert.Empty(t, h.journal.list())
	}
}

func TestSubmitPrefersServerMessage(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{Code: "EL001", Message: "Account locked."}}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EL001","error_message":"Catalog text"}]`))

	status, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, auth.ErrLoginRejected)
	assert.Equal(t, "Account locked.", status.Message)
	assert.Equal(t, []auth.State{auth.StateValidating, auth.StateSubmitting, auth.StateFailed}, h.states())
	assert.Empty(t, h.journal.list())
}

func TestSubmitUsesCatalogForCode(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{Code: "ep016"}}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EP016","error_message":"Username already taken."}]`))

	status, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, auth.ErrLoginRejected)
	assert.Equal(t, "Username already taken.", status.Message)
}

func TestSubmitUnknownCodeFallsBackToDefault(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{Code: "EX999"}}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EL001","error_message":"Catalog text"}]`))

	status, _ := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	assert.Equal(t, "Invalid credentials.", status.Message)
}

func TestSubmitMissingCodeUsesLoginFailedCode(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{}}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EL001","error_message":"Wrong username or password."}]`))

	status, _ := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	assert.Equal(t, "Wrong username or password.", status.Message)
}

func TestSubmitTransportFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")

	provider := &fakeProvider{err: boom}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EA010","error_message":"Server unavailable."}]`))
	status, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, auth.StateFailed, status.State)
	assert.Equal(t, "Server unavailable.", status.Message)

	provider = &fakeProvider{err: boom}
	h = newHarness(t, provider, catalog.Empty())
	status, _ = h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	assert.Equal(t, "Invalid credentials.", status.Message)
}

func TestSubmitSuccessStoresBeforeRedirect(t *testing.T) {
	t.Parallel()

	data := &auth.LoginData{Access: "a", Refresh: "r", RoleID: auth.NewRoleID(2)}
	provider := &fakeProvider{result: &auth.LoginResult{OK: true, Data: data}}
	h := newHarness(t, provider, catalog.Empty())

	status, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, auth.StateRedirecting, status.State)
	assert.Equal(t, auth.UserDashboard, status.Target)
	assert.Equal(t, []string{"store", "decide"}, h.journal.list())
	assert.Equal(t, "a", h.sessions.stored.Access)
	assert.Equal(t, *data, h.decider.got)
	assert.Equal(t, []auth.State{
		auth.StateValidating, auth.StateSubmitting, auth.StateSucceeded, auth.StateRedirecting,
	}, h.states())
	assert.Equal(t, "Login successful!", h.statuses[2].Message)
	assert.Equal(t, auth.Credentials{Username: "mia", Password: "pw"}, provider.last)
}

func TestSubmitWaitsForRedirectDelay(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{OK: true, Data: &auth.LoginData{Access: "a"}}}
	j := &journal{}
	ctrl := auth.NewController(provider, &fakeSessions{j: j}, catalog.Empty(), &fakeDecider{j: j, target: auth.AdminDashboard},
		auth.WithRedirectDelay(60*time.Millisecond), auth.WithLogger(quietLogger()))

	start := time.Now()
	status, err := ctrl.Submit(context.Background(), auth.Credentials{Username: "root", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, auth.AdminDashboard, status.Target)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSubmitCancelledDuringDelay(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{OK: true, Data: &auth.LoginData{Access: "a"}}}
	j := &journal{}
	ctrl := auth.NewController(provider, &fakeSessions{j: j}, catalog.Empty(), &fakeDecider{j: j},
		auth.WithRedirectDelay(time.Hour), auth.WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	status, err := ctrl.Submit(ctx, auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, auth.StateSucceeded, status.State)
	assert.Equal(t, []string{"store"}, j.list())
}

func TestSubmitSessionStoreFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{result: &auth.LoginResult{OK: true, Data: &auth.LoginData{}}}
	h := newHarness(t, provider, errorCatalog(t, `[{"error_code":"EA010","error_message":"Server unavailable."}]`))
	h.sessions.err = errors.New("disk full")

	status, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, auth.StateFailed, status.State)
	assert.Equal(t, "Server unavailable.", status.Message)
	assert.Equal(t, []string{"store"}, h.journal.list())
}

func TestSubmitRejectsDuplicateWhileInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	provider := &fakeProvider{release: release, result: &auth.LoginResult{Code: "EL001"}}
	h := newHarness(t, provider, catalog.Empty())

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
		done <- err
	}()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, h.ctrl.Busy())

	_, err := h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, auth.ErrSubmitInFlight)

	close(release)
	require.ErrorIs(t, <-done, auth.ErrLoginRejected)
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.False(t, h.ctrl.Busy())

	// A finished attempt can be retried.
	_, err = h.ctrl.Submit(context.Background(), auth.Credentials{Username: "mia", Password: "pw"})
	require.ErrorIs(t, err, auth.ErrLoginRejected)
	assert.Equal(t, int32(2), provider.calls.Load())
}

package ui

import (
	"context"
	"time"

	"fyne.io/fyne/v2"
	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/internal/auth"
	"github.com/portal-client/v2/internal/session"
)

const profileTimeout = 10 * time.Second

// LoginFactory builds a login window whose redirect is routed back to the
// navigator.
type LoginFactory func(onRedirect func(auth.RedirectTarget)) *LoginWindow

// Navigator owns the single visible top-level window. Its methods must run
// on the UI goroutine.
type Navigator struct {
	app      fyne.App
	sessions *session.Store
	users    *session.Provider
	profiles session.UserFetcher
	newLogin LoginFactory
	log      logrus.FieldLogger

	current fyne.Window
	tray    bool
}

func NewNavigator(a fyne.App, sessions *session.Store, users *session.Provider, profiles session.UserFetcher, newLogin LoginFactory, log logrus.FieldLogger) *Navigator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := &Navigator{
		app:      a,
		sessions: sessions,
		users:    users,
		profiles: profiles,
		newLogin: newLogin,
		log:      log,
	}
	n.tray = setupSystemTray(a, n.focus, n.Logout)
	return n
}

// ShowLogin replaces the current window with a fresh login form.
func (n *Navigator) ShowLogin() {
	lw := n.newLogin(n.Show)
	n.swap(lw.Win)
}

// Show replaces the current window with the destination for target.
func (n *Navigator) Show(target auth.RedirectTarget) {
	n.log.WithField("target", target.Path()).Info("navigating")
	win := newDestinationWindow(n.app, target, n.users, n.Logout)
	if n.tray {
		win.SetCloseIntercept(win.Hide)
	}
	n.swap(win)
	go n.loadUser()
}

// Logout drops the persisted tokens and the current user, then returns to
// the login form.
func (n *Navigator) Logout() {
	if err := n.sessions.Clear(); err != nil {
		n.log.WithError(err).Error("failed to clear session")
	}
	n.users.Close()
	n.log.Info("logged out")
	n.ShowLogin()
}

func (n *Navigator) swap(win fyne.Window) {
	prev := n.current
	n.current = win
	win.Show()
	if prev != nil {
		prev.Close()
	}
}

func (n *Navigator) focus() {
	if n.current == nil {
		return
	}
	n.current.Show()
	n.current.RequestFocus()
}

// loadUser refreshes the provider after a login. The fetch is skipped when
// the provider already holds the user the stored token belongs to.
func (n *Navigator) loadUser() {
	subject := n.sessions.Subject()
	if u, ok := n.users.CurrentUser(); ok && subject != "" && u.Username == subject {
		return
	}
	token := n.sessions.AccessToken()
	if token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
	defer cancel()

	u, err := n.profiles.CurrentUser(ctx, token)
	if err != nil {
		n.log.WithError(err).Warn("user fetch failed")
		return
	}
	n.users.SetUser(u)
}

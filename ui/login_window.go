package ui

import (
	"context"
	"errors"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/internal/auth"
)

// Submitter runs a login attempt. *auth.Controller implements it.
type Submitter interface {
	Submit(ctx context.Context, creds auth.Credentials) (auth.Status, error)
	Busy() bool
}

// LoginWindow is the sign-in form. It renders the controller's statuses and
// hands the redirect target to onRedirect once the controller reaches
// Redirecting.
type LoginWindow struct {
	Win fyne.Window

	usernameEntry *widget.Entry
	passwordEntry *widget.Entry
	loginButton   *widget.Button
	statusLabel   *widget.Label

	submitter  Submitter
	onRedirect func(auth.RedirectTarget)
	log        logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLoginWindow builds the form. Bind must be called before the window is
// shown.
func NewLoginWindow(a fyne.App, log logrus.FieldLogger) *LoginWindow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	lw := &LoginWindow{
		Win:    a.NewWindow("Login"),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	lw.usernameEntry = widget.NewEntry()
	lw.usernameEntry.SetPlaceHolder("Username")

	lw.passwordEntry = widget.NewPasswordEntry()
	lw.passwordEntry.SetPlaceHolder("Password")
	lw.passwordEntry.OnSubmitted = func(string) { lw.submit() }

	lw.statusLabel = widget.NewLabel("")
	lw.statusLabel.Wrapping = fyne.TextWrapWord
	lw.statusLabel.Alignment = fyne.TextAlignCenter

	lw.loginButton = widget.NewButton("Login", lw.submit)
	lw.loginButton.Importance = widget.HighImportance

	form := container.NewVBox(
		widget.NewLabelWithStyle("Please Log In", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		lw.usernameEntry,
		lw.passwordEntry,
		lw.loginButton,
		lw.statusLabel,
	)

	lw.Win.SetContent(form)
	lw.Win.Resize(fyne.NewSize(320, 240))
	lw.Win.SetFixedSize(true)
	lw.Win.CenterOnScreen()
	lw.Win.SetOnClosed(cancel)
	return lw
}

// Bind connects the form to the login flow.
func (lw *LoginWindow) Bind(submitter Submitter, onRedirect func(auth.RedirectTarget)) {
	lw.submitter = submitter
	lw.onRedirect = onRedirect
}

// Render shows s. It is safe to call from any goroutine.
func (lw *LoginWindow) Render(s auth.Status) {
	fyne.Do(func() {
		lw.statusLabel.SetText(s.Message)
		lw.statusLabel.Importance = statusImportance(s.Kind)
		lw.statusLabel.Refresh()
		if inProgress(s.State) {
			lw.loginButton.Disable()
		} else {
			lw.loginButton.Enable()
		}
	})
}

func (lw *LoginWindow) submit() {
	if lw.submitter == nil {
		lw.log.Error("login window is not bound to a controller")
		return
	}
	if lw.submitter.Busy() {
		return
	}
	creds := auth.Credentials{Username: lw.usernameEntry.Text, Password: lw.passwordEntry.Text}
	lw.loginButton.Disable()

	go func() {
		status, err := lw.submitter.Submit(lw.ctx, creds)
		if errors.Is(err, auth.ErrSubmitInFlight) {
			return
		}
		if status.State != auth.StateRedirecting {
			fyne.Do(lw.loginButton.Enable)
			return
		}
		fyne.Do(func() {
			lw.passwordEntry.SetText("")
			if lw.onRedirect != nil {
				lw.onRedirect(status.Target)
			}
		})
	}()
}

func statusImportance(kind auth.MessageKind) widget.Importance {
	switch kind {
	case auth.MessageError:
		return widget.DangerImportance
	case auth.MessageSuccess:
		return widget.SuccessImportance
	default:
		return widget.MediumImportance
	}
}

func inProgress(s auth.State) bool {
	switch s {
	case auth.StateValidating, auth.StateSubmitting, auth.StateSucceeded, auth.StateRedirecting:
		return true
	default:
		return false
	}
}

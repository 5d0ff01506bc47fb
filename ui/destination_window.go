package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/portal-client/v2/internal/auth"
	"github.com/portal-client/v2/internal/session"
)

// newDestinationWindow builds the window shown after login for target. The
// user label follows the session provider until the window closes.
func newDestinationWindow(a fyne.App, target auth.RedirectTarget, users *session.Provider, onLogout func()) fyne.Window {
	win := a.NewWindow(windowTitle(target))
	win.Resize(fyne.NewSize(420, 280))

	userLabel := widget.NewLabel(describeUser(users.State()))
	userLabel.Alignment = fyne.TextAlignCenter
	unsubscribe := users.Subscribe(func(s session.State) {
		fyne.Do(func() { userLabel.SetText(describeUser(s)) })
	})
	win.SetOnClosed(unsubscribe)

	heading := widget.NewLabelWithStyle(windowTitle(target), fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	body := widget.NewLabel(windowBody(target))
	body.Wrapping = fyne.TextWrapWord
	body.Alignment = fyne.TextAlignCenter

	logoutButton := widget.NewButtonWithIcon("Log out", theme.LogoutIcon(), onLogout)

	content := container.NewVBox(
		widget.NewCard("", "", container.NewVBox(heading, userLabel)),
		body,
		layout.NewSpacer(),
		logoutButton,
	)
	win.SetContent(content)
	win.CenterOnScreen()
	return win
}

func windowTitle(target auth.RedirectTarget) string {
	switch target {
	case auth.AdminDashboard:
		return "Admin Dashboard"
	case auth.UserDashboard:
		return "Dashboard"
	case auth.AddressSetup:
		return "Add Address"
	default:
		return "Portal"
	}
}

func windowBody(target auth.RedirectTarget) string {
	switch target {
	case auth.AdminDashboard:
		return "You are signed in with administrator rights."
	case auth.AddressSetup:
		return "Add your address to finish setting up your account."
	default:
		return "You are signed in."
	}
}

func describeUser(s session.State) string {
	if s.Loading {
		return "Loading profile..."
	}
	if s.User == nil {
		return "Signed in"
	}
	name := strings.TrimSpace(s.User.FirstName + " " + s.User.LastName)
	if name == "" {
		name = s.User.Username
	}
	if s.User.RoleName != "" {
		return fmt.Sprintf("Signed in as %s (%s)", name, s.User.RoleName)
	}
	return "Signed in as " + name
}

// setupSystemTray adds Show and Log out entries to the tray when the driver
// supports one.
func setupSystemTray(a fyne.App, show func(), logout func()) bool {
	desk, ok := a.(desktop.App)
	if !ok {
		return false
	}
	menu := fyne.NewMenu("Portal",
		fyne.NewMenuItem("Show", show),
		fyne.NewMenuItem("Log out", logout),
	)
	desk.SetSystemTrayMenu(menu)
	desk.SetSystemTrayIcon(theme.AccountIcon())
	return true
}

package main

import (
	"context"
	"time"

	"fyne.io/fyne/v2/app"
	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/core"
	"github.com/portal-client/v2/internal/auth"
	"github.com/portal-client/v2/internal/catalog"
	"github.com/portal-client/v2/internal/config"
	"github.com/portal-client/v2/internal/session"
	"github.com/portal-client/v2/services"
	"github.com/portal-client/v2/ui"
)

const appID = "com.portal.client"

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	log := config.NewLogger(cfg)

	db, err := core.NewDatabase(cfg.DataDir, cfg.DBFile)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare local storage")
	}
	if err := db.Connect(); err != nil {
		log.WithError(err).Fatal("failed to open local storage")
	}
	defer db.Close()

	sessions := session.NewStore(db, log)
	api, err := services.NewApiClient(cfg.APIURL,
		services.WithTokenProvider(sessions),
		services.WithTimeout(cfg.RequestTimeout),
		services.WithEndpoints(cfg.Endpoints),
		services.WithLogger(log),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to create API client")
	}
	authSvc := services.NewAuthService(api)
	profiles := services.NewProfileService(api)
	addresses := services.NewAddressService(api)

	go refreshMessages(services.NewMessageService(api), db, cfg.RequestTimeout, log)
	messages := catalog.NewStored(db)

	users := session.NewProvider(sessions, profiles, log)
	users.Start(context.Background())

	decider := auth.NewRedirectDecider(addresses, cfg.AddressCheckTimeout, log)

	myApp := app.NewWithID(appID)

	newLogin := func(onRedirect func(auth.RedirectTarget)) *ui.LoginWindow {
		lw := ui.NewLoginWindow(myApp, log)
		controller := auth.NewController(authSvc, sessions, messages, decider,
			auth.WithRedirectDelay(cfg.RedirectDelay),
			auth.WithLogger(log),
			auth.WithObserver(lw.Render),
		)
		lw.Bind(controller, onRedirect)
		return lw
	}
	nav := ui.NewNavigator(myApp, sessions, users, profiles, newLogin, log)

	if target, ok := restoredTarget(users, sessions, cfg.RequestTimeout, log); ok {
		nav.Show(target)
	} else {
		nav.ShowLogin()
	}

	myApp.Run()
	log.Info("application has exited")
}

// refreshMessages updates the cached message tables in the background. On
// failure the cache from the previous run stays in place.
func refreshMessages(src catalog.Source, db *core.Database, timeout time.Duration, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	written, err := catalog.Refresh(ctx, src, db)
	if err != nil {
		log.WithError(err).Warn("message tables not refreshed")
		return
	}
	log.WithField("tables", written).Debug("message tables refreshed")
}

// restoredTarget waits for the user behind a persisted token. A restored
// session is routed by role only: the address probe relies on the session
// cookie, which does not outlive the process that logged in.
func restoredTarget(users *session.Provider, sessions *session.Store, timeout time.Duration, log logrus.FieldLogger) (auth.RedirectTarget, bool) {
	if _, ok := sessions.Get(); !ok {
		return auth.NoTarget, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := users.Wait(ctx); err != nil {
		log.WithError(err).Warn("timed out restoring session")
		return auth.NoTarget, false
	}
	user, ok := users.CurrentUser()
	if !ok {
		log.Info("stored session is no longer valid")
		return auth.NoTarget, false
	}
	log.WithField("username", user.Username).Info("session restored")
	if auth.IsAdministrator(user.EffectiveRole(), user.IsAdmin) {
		return auth.AdminDashboard, true
	}
	return auth.UserDashboard, true
}

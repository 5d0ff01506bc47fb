// Command stubserver runs an in-memory identity backend with demo accounts so
// the desktop client can be exercised without the real service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/internal/stub"
)

type demoUser struct {
	user     stub.User
	password string
}

func demoUsers() []demoUser {
	admin, user := 1, 2
	return []demoUser{
		{stub.User{Username: "admin", FirstName: "Ada", LastName: "Admin", RoleID: &admin, RoleName: "Administrator", IsAdmin: true}, "admin123"},
		{stub.User{Username: "alice", FirstName: "Alice", RoleID: &user, RoleName: "Employee", DepartmentName: "Sales", HasAddress: true}, "alice123"},
		{stub.User{Username: "bob", FirstName: "Bob", RoleID: &user, RoleName: "Employee", DepartmentName: "Support"}, "bob123"},
	}
}

func main() {
	var (
		addr     string
		secret   string
		logLevel string
	)
	flag.StringVar(&addr, "addr", ":8000", "HTTP listen address")
	flag.StringVar(&secret, "secret", "", "HS256 signing secret (random when empty)")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	opts := []stub.Option{stub.WithLogger(log)}
	if secret != "" {
		opts = append(opts, stub.WithSecret([]byte(secret)))
	}
	backend := stub.New(opts...)
	for _, d := range demoUsers() {
		if _, err := backend.AddUser(d.user, d.password); err != nil {
			log.WithError(err).Fatal("failed to add demo user")
		}
		log.WithField("username", d.user.Username).Info("demo user ready")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()
	log.WithField("addr", addr).Info("stub server listening")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

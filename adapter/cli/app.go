package cli

import (
	"time"

	accessApp "github.com/felixgeelhaar/mylife/internal/access/application"
	internalApp "github.com/felixgeelhaar/mylife/internal/app"
	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	identityApp "github.com/felixgeelhaar/mylife/internal/identity/application"
	"github.com/felixgeelhaar/mylife/pkg/config"
)

// App holds the CLI application dependencies.
type App struct {
	Config *config.Config

	// Billing
	Entitlements *billingApp.EntitlementService
	Reconciler   *billingApp.Reconciler

	// Access
	Queue   *accessApp.Queue
	Sweeper *accessApp.Sweeper

	// Identity
	Identity *identityApp.Service

	// MigrationsApplied is the number of migrations run at startup.
	MigrationsApplied int

	// Now is the sweep clock.
	Now func() time.Time
}

// NewApp creates the CLI application from a wired container.
func NewApp(c *internalApp.Container) *App {
	return &App{
		Config:            c.Config,
		Entitlements:      c.Entitlements,
		Reconciler:        c.Reconciler,
		Queue:             c.Queue,
		Sweeper:           c.Sweeper,
		Identity:          c.Identity,
		MigrationsApplied: c.MigrationsApplied,
		Now:               c.Clock,
	}
}

// Clock returns the current time from Now, or time.Now when unset.
func (a *App) Clock() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

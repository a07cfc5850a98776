package framework

import "context"

// Plugin is an optional extension booted with the app. Boot runs after the
// stores and the mutation queue exist; Routes runs once, before the
// application's own routes.
type Plugin interface {
	Name() string
	Version() string
	Boot(app *App) error
	Routes(r *Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

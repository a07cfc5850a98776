package healthcheck

import (
	"net/http"
	"time"

	"github.com/shaurya/tradeledger/framework"
)

// Plugin provides health check endpoints.
type Plugin struct {
	app    *framework.App
	booted time.Time
}

func (p *Plugin) Name() string    { return "healthcheck" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Boot(app *framework.App) error {
	p.app = app
	p.booted = time.Now()
	return nil
}

func (p *Plugin) Routes(r *framework.Router) {
	r.GET("/health", p.healthHandler)
	r.GET("/health/ready", p.readyHandler)
}

// healthHandler reports liveness plus the state of every registered check.
// It answers 200 even when a dependency is down.
func (p *Plugin) healthHandler(ctx *framework.Context) error {
	checks, _ := p.app.CheckHealth(ctx.Context())
	data := framework.H{
		"status":  "ok",
		"checks":  checks,
		"uptime":  time.Since(p.booted).Round(time.Second).String(),
		"version": framework.Version,
	}
	if p.app.Queue != nil {
		data["queue"] = p.app.Queue.Stats()
	}
	return ctx.JSON(http.StatusOK, data)
}

func (p *Plugin) readyHandler(ctx *framework.Context) error {
	checks, ready := p.app.CheckHealth(ctx.Context())

	status := http.StatusOK
	statusText := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusText = "not ready"
	}
	return ctx.JSON(status, framework.H{
		"status": statusText,
		"checks": checks,
	})
}

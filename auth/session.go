package auth

import (
	"errors"
	"net/http"

	"github.com/shaurya/tradeledger/framework"
)

var errNoSessions = errors.New("session store not initialized")

// Session keys shared by controllers.
const (
	SessionUsername     = "username"
	SessionRole         = "role"
	SessionShipmentID   = "shipmentId"
	SessionError        = "error_msg"
	SessionRegError     = "reg_error_msg"
	SessionRegistration = "registration"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Username string
	Role     string
}

// Login stores the ledger user in the session.
func Login(ctx *framework.Context, username, role string) error {
	sess := ctx.Session()
	if sess == nil {
		return ctx.InternalError(errNoSessions)
	}
	sess.Values[SessionUsername] = username
	sess.Values[SessionRole] = role
	delete(sess.Values, SessionError)
	delete(sess.Values, SessionRegError)
	return ctx.SaveSession()
}

// Logout destroys the session.
func Logout(ctx *framework.Context) error {
	sess := ctx.Session()
	if sess == nil {
		return nil
	}
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return ctx.SaveSession()
}

// Current returns the caller identified by session or bearer token.
func Current(ctx *framework.Context) (Identity, bool) {
	if claims, ok := ClaimsFromContext(ctx.Request.Context()); ok {
		return Identity{Username: claims.Username, Role: claims.Role}, true
	}
	sess := ctx.Session()
	if sess == nil {
		return Identity{}, false
	}
	name, _ := sess.Values[SessionUsername].(string)
	if name == "" {
		return Identity{}, false
	}
	role, _ := sess.Values[SessionRole].(string)
	return Identity{Username: name, Role: role}, true
}

// Required wraps an Action to require a logged-in user. Browsers are sent to
// the login page; API clients get 401.
func Required(next framework.Action) framework.Action {
	return func(ctx *framework.Context) error {
		id, ok := Current(ctx)
		if !ok {
			if ctx.WantsHTML() {
				return ctx.Redirect("/login")
			}
			return ctx.Unauthorized("Authentication required")
		}
		ctx.SetCurrentUser(id)
		return next(ctx)
	}
}

// Middleware applies Required to plain handlers so route groups and mounted
// handlers can share it.
func Middleware(app *framework.App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return framework.ActionHandler(Required(func(ctx *framework.Context) error {
			next.ServeHTTP(ctx.Response, ctx.Request)
			return nil
		}), app)
	}
}

// Lookup identifies the caller of r outside an action, as websocket
// channels need.
func Lookup(app *framework.App, r *http.Request) (Identity, bool) {
	return Current(framework.NewContext(nil, r, app))
}

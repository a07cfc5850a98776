package framework

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Action is a controller action handler signature.
type Action func(ctx *Context) error

// ResourceController lists the actions Router.Resources routes. Controllers
// only implement the actions they need.
type ResourceController interface {
	Index(ctx *Context) error
	Show(ctx *Context) error
	Create(ctx *Context) error
	Update(ctx *Context) error
	Destroy(ctx *Context) error
}

// fieldErrorer is implemented by validation errors that carry per-field
// messages.
type fieldErrorer interface {
	FieldErrors() map[string][]string
}

// ActionHandler converts an Action into an http.HandlerFunc.
// It creates a Context, calls the action, and handles errors with correct HTTP status codes.
func ActionHandler(action Action, app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r, app)

		defer func() {
			if err := recover(); err != nil {
				if app != nil && app.Config != nil && app.Config.App.Env == "development" {
					DevErrorHandler(w, r, err)
				} else {
					ProdErrorHandler(w, r, err)
				}
			}
		}()

		if err := action(ctx); err != nil {
			handleActionError(ctx, err)
		}
	}
}

// handleActionError maps errors to the correct HTTP status codes.
func handleActionError(ctx *Context, err error) {
	if ctx.written {
		return
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Errors != nil {
			ctx.JSON(httpErr.Code, H{"errors": httpErr.Errors})
			return
		}
		if httpErr.Code >= http.StatusInternalServerError {
			ctx.Log().Error("Request failed", zap.Int("status", httpErr.Code), zap.Error(err))
		}
		ctx.JSON(httpErr.Code, H{"error": httpErr.Message})
		return
	}

	var fe fieldErrorer
	if errors.As(err, &fe) {
		ctx.JSON(http.StatusUnprocessableEntity, H{"errors": fe.FieldErrors()})
		return
	}

	if ctx.app != nil {
		if status, ok := ctx.app.statusFor(err); ok {
			ctx.JSON(status, H{"error": err.Error()})
			return
		}
	}

	ctx.Log().Error("Unhandled controller error", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, H{"error": "Internal Server Error"})
}

// Wrap is a convenience alias for ActionHandler without an app reference.
func Wrap(action Action) http.HandlerFunc {
	return ActionHandler(action, nil)
}

// Guard runs action behind http middleware. When a middleware answers the
// request itself the action is skipped.
func Guard(action Action, mw ...func(http.Handler) http.Handler) Action {
	return func(ctx *Context) error {
		var err error
		var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx.Response, ctx.Request = w, r
			err = action(ctx)
		})
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		h.ServeHTTP(ctx.Response, ctx.Request)
		return err
	}
}

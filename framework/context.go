package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/shaurya/tradeledger/framework/i18n"
	"go.uber.org/zap"
)

// H is a shorthand for map[string]any, used for JSON bodies.
type H map[string]any

// HTTPError represents a typed error with an HTTP status code.
type HTTPError struct {
	Code    int
	Message string
	Errors  map[string][]string
	Err     error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// MaxBodyBytes bounds request bodies read by Bind and BindJSON.
const MaxBodyBytes = 32 << 20

// Context wraps http.Request and http.ResponseWriter, providing convenience methods.
type Context struct {
	Response    http.ResponseWriter
	Request     *http.Request
	app         *App
	currentUser any
	session     *sessions.Session
	written     bool
}

// NewContext creates a new Context for a request.
func NewContext(w http.ResponseWriter, r *http.Request, app *App) *Context {
	return &Context{
		Response: w,
		Request:  r,
		app:      app,
	}
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.Request.Context() }

// Log returns the app logger tagged with the request id.
func (c *Context) Log() *zap.Logger {
	log := zap.NewNop()
	if c.app != nil && c.app.Log != nil {
		log = c.app.Log
	}
	if id := c.RequestID(); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	return log
}

// T translates key in the request's locale.
func (c *Context) T(key string, vars i18n.Vars) string {
	return i18n.TCtx(c.Request.Context(), key, vars)
}

// --- URL Parameters ---

// Param returns a URL route parameter by name.
func (c *Context) Param(key string) string {
	return chi.URLParam(c.Request, key)
}

// Query returns a query string parameter by name.
func (c *Context) Query(key string) string {
	return c.Request.URL.Query().Get(key)
}

// FormValue returns a form (or query) value by name.
func (c *Context) FormValue(key string) string {
	return c.Request.FormValue(key)
}

// --- Request Binding ---

var validate = validator.New()

// Bind decodes the request body (JSON or form) into v and runs validation.
// Returns an UnprocessableEntity error if validation fails.
func (c *Context) Bind(v any) error {
	var err error
	if c.IsJSON() {
		err = c.BindJSON(v)
	} else {
		err = c.BindForm(v)
	}
	if err != nil {
		return &HTTPError{Code: http.StatusBadRequest, Message: err.Error(), Err: err}
	}

	if valErr := validate.Struct(v); valErr != nil {
		verrs, ok := valErr.(validator.ValidationErrors)
		if !ok {
			return c.BadRequest(valErr)
		}
		errs := make(map[string][]string)
		for _, e := range verrs {
			field := e.Field()
			msg := fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
			if e.Param() != "" {
				msg = fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
			}
			errs[field] = append(errs[field], msg)
		}
		return c.UnprocessableEntity(errs)
	}

	return nil
}

// BindJSON decodes the request body as JSON.
func (c *Context) BindJSON(v any) error {
	defer c.Request.Body.Close()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// BindForm decodes url-encoded or multipart form data into v through its
// json tags.
func (c *Context) BindForm(v any) error {
	if strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/") {
		if err := c.Request.ParseMultipartForm(MaxBodyBytes); err != nil {
			return err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return err
	}
	formMap := make(map[string]any)
	for key, values := range c.Request.Form {
		if len(values) == 1 {
			formMap[key] = values[0]
		} else {
			formMap[key] = values
		}
	}
	data, err := json.Marshal(formMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// --- Response ---

// JSON writes a JSON response with the given status code.
func (c *Context) JSON(status int, v any) error {
	c.written = true
	return WriteJSON(c.Response, status, v)
}

// WriteJSON writes v as a JSON response on a plain http.ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Text writes a plain text response.
func (c *Context) Text(status int, body string) error {
	return c.Data(status, "text/plain; charset=utf-8", []byte(body))
}

// Data writes raw bytes with the given content type.
func (c *Context) Data(status int, contentType string, body []byte) error {
	c.Response.Header().Set("Content-Type", contentType)
	c.Response.WriteHeader(status)
	c.written = true
	_, err := c.Response.Write(body)
	return err
}

// Redirect sends an HTTP redirect.
func (c *Context) Redirect(url string) error {
	http.Redirect(c.Response, c.Request, url, http.StatusFound)
	c.written = true
	return nil
}

// Status writes a status code with no body.
func (c *Context) Status(code int) error {
	c.Response.WriteHeader(code)
	c.written = true
	return nil
}

// --- Sessions ---

// Session returns the current session, or nil when the app has no session
// store. The session is loaded once per request.
func (c *Context) Session() *sessions.Session {
	if c.session != nil {
		return c.session
	}
	if c.app == nil || c.app.Sessions == nil {
		return nil
	}
	sess, err := c.app.Sessions.Get(c.Request, c.app.sessionName())
	if err != nil {
		// A cookie from an old secret; start over with a fresh session.
		c.Log().Debug("Discarding unreadable session", zap.Error(err))
	}
	c.session = sess
	return sess
}

// SaveSession writes the session back to the response.
func (c *Context) SaveSession() error {
	sess := c.Session()
	if sess == nil {
		return nil
	}
	return sess.Save(c.Request, c.Response)
}

// SessionString returns a string session value, or "".
func (c *Context) SessionString(key string) string {
	sess := c.Session()
	if sess == nil {
		return ""
	}
	s, _ := sess.Values[key].(string)
	return s
}

// --- Current User ---

type contextKey string

const userContextKey contextKey = "tradeledger_current_user"

// CurrentUser returns the current authenticated user (if set).
func (c *Context) CurrentUser() any {
	if c.currentUser != nil {
		return c.currentUser
	}
	return c.Request.Context().Value(userContextKey)
}

// SetCurrentUser sets the current user on the context.
func (c *Context) SetCurrentUser(u any) {
	c.currentUser = u
	ctx := context.WithValue(c.Request.Context(), userContextKey, u)
	c.Request = c.Request.WithContext(ctx)
}

// --- Request Info ---

// RequestID returns the request ID from the X-Request-ID header or chi middleware.
func (c *Context) RequestID() string {
	if id := middleware.GetReqID(c.Request.Context()); id != "" {
		return id
	}
	return c.Request.Header.Get("X-Request-ID")
}

// IsJSON returns true if the request Content-Type is application/json.
func (c *Context) IsJSON() bool {
	ct := c.Request.Header.Get("Content-Type")
	return strings.Contains(ct, "application/json")
}

// WantsHTML reports whether the client is a browser navigating pages rather
// than an API client.
func (c *Context) WantsHTML() bool {
	accept := c.Request.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// --- Error Responses ---

// BadRequest returns a 400 error.
func (c *Context) BadRequest(err error) error {
	return &HTTPError{Code: http.StatusBadRequest, Message: err.Error(), Err: err}
}

// Unauthorized returns a 401 error.
func (c *Context) Unauthorized(msg string) error {
	return &HTTPError{Code: http.StatusUnauthorized, Message: msg}
}

// NotFound returns a 404 error.
func (c *Context) NotFound(msg string) error {
	return &HTTPError{Code: http.StatusNotFound, Message: msg}
}

// Forbidden returns a 403 error.
func (c *Context) Forbidden(msg string) error {
	return &HTTPError{Code: http.StatusForbidden, Message: msg}
}

// UnprocessableEntity returns a 422 error with field-level validation errors.
func (c *Context) UnprocessableEntity(errors map[string][]string) error {
	return &HTTPError{Code: http.StatusUnprocessableEntity, Message: "Validation failed", Errors: errors}
}

// ServiceUnavailable returns a 503 error.
func (c *Context) ServiceUnavailable(err error) error {
	return &HTTPError{Code: http.StatusServiceUnavailable, Message: err.Error(), Err: err}
}

// InternalError returns a 500 error.
func (c *Context) InternalError(err error) error {
	return &HTTPError{Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

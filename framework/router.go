package framework

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RouteInfo stores metadata about a registered route for the route inspector.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// Router wraps a chi router with resource conventions and records every
// route it registers.
type Router struct {
	Mux    chi.Router
	app    *App
	routes *[]RouteInfo

	// prefix is the full path shown in the route table; local is the part
	// prepended to patterns on Mux.
	prefix string
	local  string
}

// NewRouter creates a new Router.
func NewRouter() *Router {
	routes := make([]RouteInfo, 0)
	return &Router{
		Mux:    chi.NewRouter(),
		routes: &routes,
	}
}

func (r *Router) derive(mux chi.Router, prefix, local string) *Router {
	return &Router{Mux: mux, app: r.app, routes: r.routes, prefix: prefix, local: local}
}

func (r *Router) addRoute(method, path, handler string) {
	*r.routes = append(*r.routes, RouteInfo{Method: method, Path: r.prefix + path, Handler: handler})
}

// Use adds middleware to the router. On the root router it must be called
// before any route is registered.
func (r *Router) Use(mw ...func(http.Handler) http.Handler) {
	r.Mux.Use(mw...)
}

// With returns a router whose routes run behind the extra middleware.
func (r *Router) With(mw ...func(http.Handler) http.Handler) *Router {
	return r.derive(r.Mux.With(mw...), r.prefix, r.local)
}

// Group registers routes that share middleware added inside fn.
func (r *Router) Group(fn func(r *Router)) {
	r.Mux.Group(func(g chi.Router) {
		fn(r.derive(g, r.prefix, r.local))
	})
}

// Handle registers an action for method and path.
func (r *Router) Handle(method, path string, handler Action) {
	r.addRoute(method, path, actionName(handler))
	r.Mux.Method(method, r.local+path, ActionHandler(handler, r.app))
}

// GET registers a GET route.
func (r *Router) GET(path string, handler Action) { r.Handle(http.MethodGet, path, handler) }

// POST registers a POST route.
func (r *Router) POST(path string, handler Action) { r.Handle(http.MethodPost, path, handler) }

// PUT registers a PUT route.
func (r *Router) PUT(path string, handler Action) { r.Handle(http.MethodPut, path, handler) }

// PATCH registers a PATCH route.
func (r *Router) PATCH(path string, handler Action) { r.Handle(http.MethodPatch, path, handler) }

// DELETE registers a DELETE route.
func (r *Router) DELETE(path string, handler Action) { r.Handle(http.MethodDelete, path, handler) }

// HandleFunc registers a plain handler under name in the route table.
func (r *Router) HandleFunc(method, path, name string, h http.HandlerFunc) {
	r.addRoute(method, path, name)
	r.Mux.Method(method, r.local+path, h)
}

// Mount mounts a sub-handler at a prefix.
func (r *Router) Mount(path, name string, handler http.Handler) {
	r.addRoute("*", path+"/*", name)
	r.Mux.Mount(r.local+path, handler)
}

// WebSocket registers a WebSocket route.
func (r *Router) WebSocket(path string, handler http.HandlerFunc) {
	r.addRoute("WS", path, "WebSocket")
	r.Mux.Get(r.local+path, handler)
}

// Namespace creates a sub-group with a path prefix.
func (r *Router) Namespace(prefix string, fn func(r *Router)) {
	r.Mux.Route(r.local+prefix, func(sub chi.Router) {
		fn(r.derive(sub, r.prefix+prefix, ""))
	})
}

// Resources registers RESTful routes for a controller. Only the actions the
// controller implements are routed. Nested resources registered in fn see
// the parent id as {<singular>_id}.
func (r *Router) Resources(name string, controller any, fn ...func(r *Router)) {
	prefix := "/" + name
	ctrl := controllerName(controller)

	r.Mux.Route(r.local+prefix, func(sub chi.Router) {
		res := r.derive(sub, r.prefix+prefix, "")
		route := func(method, path, action string, h Action) {
			*r.routes = append(*r.routes, RouteInfo{Method: method, Path: res.prefix + path, Handler: ctrl + "#" + action})
			sub.Method(method, orRoot(path), ActionHandler(h, r.app))
		}

		if c, ok := controller.(interface{ Index(*Context) error }); ok {
			route(http.MethodGet, "", "Index", c.Index)
		}
		if c, ok := controller.(interface{ Create(*Context) error }); ok {
			route(http.MethodPost, "", "Create", c.Create)
		}
		if c, ok := controller.(interface{ Show(*Context) error }); ok {
			route(http.MethodGet, "/{id}", "Show", c.Show)
		}
		if c, ok := controller.(interface{ Update(*Context) error }); ok {
			route(http.MethodPut, "/{id}", "Update", c.Update)
			route(http.MethodPatch, "/{id}", "Update", c.Update)
		}
		if c, ok := controller.(interface{ Destroy(*Context) error }); ok {
			route(http.MethodDelete, "/{id}", "Destroy", c.Destroy)
		}

		if len(fn) > 0 {
			param := "/{" + singleName(name) + "_id}"
			fn[0](res.derive(sub, res.prefix+param, param))
		}
	})
}

// Routes returns every registered route, sorted by path then method.
func (r *Router) Routes() []RouteInfo {
	out := append([]RouteInfo(nil), *r.routes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Inspect returns all registered routes as a formatted table.
func (r *Router) Inspect() string {
	routes := r.Routes()
	var sb strings.Builder

	sb.WriteString("┌────────────┬────────────────────────────────────────┬──────────────────────────────────┐\n")
	sb.WriteString("│ Method     │ Path                                   │ Handler                          │\n")
	sb.WriteString("├────────────┼────────────────────────────────────────┼──────────────────────────────────┤\n")
	for _, route := range routes {
		sb.WriteString(fmt.Sprintf("│ %-10s │ %-38s │ %-32s │\n", route.Method, route.Path, route.Handler))
	}
	sb.WriteString("└────────────┴────────────────────────────────────────┴──────────────────────────────────┘\n")
	sb.WriteString(fmt.Sprintf("Total: %d routes\n", len(routes)))

	return sb.String()
}

func orRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// singleName converts a plural resource name to singular (basic singularization).
func singleName(name string) string {
	if strings.HasSuffix(name, "ies") {
		return name[:len(name)-3] + "y"
	}
	if strings.HasSuffix(name, "ses") || strings.HasSuffix(name, "xes") {
		return name[:len(name)-2]
	}
	if strings.HasSuffix(name, "s") {
		return name[:len(name)-1]
	}
	return name
}

func controllerName(controller any) string {
	name := fmt.Sprintf("%T", controller)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// actionName returns a short name for a handler for the route table, e.g.
// "LCsController.Create".
func actionName(handler Action) string {
	fn := runtime.FuncForPC(reflect.ValueOf(handler).Pointer())
	if fn == nil {
		return "Action"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.NewReplacer("(", "", ")", "", "*", "").Replace(name)
	return name
}

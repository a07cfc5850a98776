// Package admin serves a read-only audit view of the ledger event log: a
// filtered, paginated listing, single events and a CSV export.
package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shaurya/tradeledger/events"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/orm"
	"gorm.io/gorm"
)

// MaxPerPage caps the page size of the listing.
const MaxPerPage = 200

// Config configures the audit panel. Without DB every route answers 503.
type Config struct {
	DB   *gorm.DB
	Auth func(http.Handler) http.Handler
}

// Panel returns an http.Handler for the audit panel.
func Panel(cfg Config) http.Handler {
	a := &auditPanel{db: cfg.DB}

	r := chi.NewRouter()
	if cfg.Auth != nil {
		r.Use(cfg.Auth)
	}
	r.Get("/", a.index)
	r.Get("/export.csv", a.exportCSV)
	r.Get("/{id}", a.show)
	return r
}

// Filter narrows the audit listing. Empty fields do not filter.
type Filter struct {
	ShipmentID string
	Kind       string
	Actor      string
	Since      time.Time
}

// FilterFromQuery reads shipmentId, type, actor and since (RFC 3339).
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		ShipmentID: q.Get("shipmentId"),
		Kind:       q.Get("type"),
		Actor:      q.Get("actor"),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid since %q: %w", s, err)
		}
		f.Since = t
	}
	return f, nil
}

func (f Filter) scopes() []orm.ScopeFunc {
	scopes := []orm.ScopeFunc{
		orm.Equal("shipment_id", f.ShipmentID),
		orm.Equal("kind", f.Kind),
		orm.Equal("actor", f.Actor),
	}
	if !f.Since.IsZero() {
		scopes = append(scopes, orm.Since(f.Since))
	}
	return scopes
}

// Page is one page of the listing, newest first.
type Page struct {
	Events  []events.Record `json:"events"`
	Page    int             `json:"page"`
	PerPage int             `json:"perPage"`
	Total   int64           `json:"total"`
}

// List returns page (1-indexed) of the events matching f.
func List(ctx context.Context, db *gorm.DB, f Filter, page, perPage int) (Page, error) {
	total, err := orm.QueryContext[events.Record](ctx, db).Scope(f.scopes()...).Count()
	if err != nil {
		return Page{}, err
	}
	rows, err := orm.QueryContext[events.Record](ctx, db).
		Scope(append(f.scopes(), orm.Newest)...).
		Page(page).
		PerPage(perPage).
		All()
	if err != nil {
		return Page{}, err
	}
	return Page{Events: rows, Page: max(page, 1), PerPage: perPage, Total: total}, nil
}

type auditPanel struct {
	db *gorm.DB
}

var errNoDatabase = errors.New("audit log requires a database")

func (a *auditPanel) ready(w http.ResponseWriter) bool {
	if a.db == nil {
		writeError(w, http.StatusServiceUnavailable, errNoDatabase)
		return false
	}
	return true
}

func (a *auditPanel) index(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	f, err := FilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if perPage <= 0 {
		perPage = orm.DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)

	out, err := List(r.Context(), a.db, f, page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	_ = framework.WriteJSON(w, http.StatusOK, out)
}

// show answers one event by its event id, with the decoded payload.
func (a *auditPanel) show(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	id := chi.URLParam(r, "id")
	row, err := orm.QueryContext[events.Record](r.Context(), a.db).Where("event_id = ?", id).First()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("event %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var e events.Event
	if err := json.Unmarshal([]byte(row.Payload), &e); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("decode event %s: %w", id, err))
		return
	}
	_ = framework.WriteJSON(w, http.StatusOK, framework.H{"record": row, "event": e})
}

var csvHeader = []string{"event_id", "type", "shipment_id", "actor", "status", "message", "at"}

// exportCSV writes every matching event, oldest first.
func (a *auditPanel) exportCSV(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	f, err := FilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := orm.QueryContext[events.Record](r.Context(), a.db).
		Scope(f.scopes()...).
		Order("created_at").
		Order("id").
		All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=ledger_events.csv")

	writer := csv.NewWriter(w)
	defer writer.Flush()

	_ = writer.Write(csvHeader)
	for _, row := range rows {
		var e events.Event
		_ = json.Unmarshal([]byte(row.Payload), &e)
		_ = writer.Write([]string{
			row.EventID,
			row.Kind,
			row.ShipmentID,
			row.Actor,
			e.Status,
			e.Message,
			row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	_ = framework.WriteJSON(w, status, framework.H{"error": err.Error()})
}

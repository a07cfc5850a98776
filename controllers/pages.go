package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shaurya/tradeledger/auth"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"go.uber.org/zap"
)

// Role pages a logged-in user can open.
const (
	PageImporterBank        = "importerBank"
	PageImporterBankPayment = "importerBankPayment"
	PageExporterBank        = "exporterBank"
	PageExporter            = "exporter"
	PageCustoms             = "customs"
)

const (
	displayInline      = "inline"
	displayInlineBlock = "inline-block"
	displayNone        = "none"
)

// DisplayState holds the inline/none pair for every status flag: the first
// of each pair is shown when the flag is set, the second when it is not.
type DisplayState struct {
	EBState1   string `json:"ebState1"`
	EBState2   string `json:"ebState2"`
	EDocState1 string `json:"eDocState1"`
	EDocState2 string `json:"eDocState2"`
	CusState1  string `json:"cusState1"`
	CusState2  string `json:"cusState2"`
	PayState1  string `json:"payState1"`
	PayState2  string `json:"payState2"`
}

// PageView is what a role page shows for one LC.
type PageView struct {
	Page          string        `json:"page"`
	LC            *ledger.LC    `json:"lc,omitempty"`
	StatusLabel   string        `json:"statusLabel,omitempty"`
	Disabled      string        `json:"disabled,omitempty"`
	LCFileName    string        `json:"lcFileName,omitempty"`
	BLFileName    string        `json:"blFileName,omitempty"`
	INSFileName   string        `json:"insFileName,omitempty"`
	Role          string        `json:"role"`
	Date          string        `json:"date"`
	State         *DisplayState `json:"st,omitempty"`
	CreateVisible string        `json:"createVisible,omitempty"`
}

// IsRolePage reports whether page is one of the role pages.
func IsRolePage(page string) bool {
	switch page {
	case PageImporterBank, PageExporterBank, PageExporter, PageCustoms:
		return true
	}
	return false
}

func shown(b bool) string {
	if b {
		return displayInline
	}
	return displayNone
}

// BuildPageView derives the view of page for lc. A nil lc gives the bare
// page. The importer bank sees the payment page once customs approved.
func BuildPageView(page string, lc *ledger.LC, role string, now time.Time) PageView {
	view := PageView{Page: page, Role: role, Date: now.Format(DateLayout)}
	if lc == nil {
		return view
	}

	view.LC = lc
	view.Disabled = "disabled"
	names := lc.DocumentNames
	if len(names) > 0 {
		view.LCFileName = names[0]
	}
	if len(names) > 1 {
		view.BLFileName = names[1]
	}
	if len(names) > 2 {
		view.INSFileName = names[2]
	}

	view.State = &DisplayState{
		EBState1:   shown(lc.ExporterBankApproved),
		EBState2:   shown(!lc.ExporterBankApproved),
		EDocState1: shown(lc.ExporterDocsUploaded),
		EDocState2: shown(!lc.ExporterDocsUploaded),
		CusState1:  shown(lc.CustomsApproved),
		CusState2:  shown(!lc.CustomsApproved),
		PayState1:  shown(lc.PaymentComplete),
		PayState2:  shown(!lc.PaymentComplete),
	}

	view.CreateVisible = displayNone
	if page == PageImporterBank {
		view.CreateVisible = displayInlineBlock
		if lc.CustomsApproved {
			view.Page = PageImporterBankPayment
		}
	}
	return view
}

// PagesController serves the role pages.
type PagesController struct {
	Deps
}

// Show serves /{page}. With ?shipmentId= the LC is remembered in the
// session for document downloads; an unknown LC sends the client back to
// the LC list.
func (c *PagesController) Show(ctx *framework.Context) error {
	page := ctx.Param("page")
	if !IsRolePage(page) {
		return ctx.NotFound("Page not found")
	}
	id := identity(ctx)

	shipmentID := ctx.Query("shipmentId")
	if shipmentID == "" {
		return ctx.JSON(http.StatusOK, BuildPageView(page, nil, id.Role, c.now()))
	}

	if sess := ctx.Session(); sess != nil {
		sess.Values[auth.SessionShipmentID] = shipmentID
		if err := ctx.SaveSession(); err != nil {
			return err
		}
	}

	lc, err := c.Ops.FetchLC(ctx.Context(), shipmentID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			ctx.Log().Info("LC not found, back to list", zap.String("shipment_id", shipmentID))
			return ctx.Redirect("/lcList")
		}
		return err
	}
	view := BuildPageView(page, &lc, id.Role, c.now())
	view.StatusLabel = statusLabel(ctx, lc.CurrentStatus)
	return ctx.JSON(http.StatusOK, view)
}

// Package controllers holds the portal's HTTP actions. Every response is
// JSON except document downloads and the spreadsheet export.
package controllers

import (
	"time"

	"github.com/shaurya/tradeledger/auth"
	"github.com/shaurya/tradeledger/chaincode"
	"github.com/shaurya/tradeledger/events"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
)

// DateLayout is how the portal shows today's date.
const DateLayout = "Monday, 2 January 2006"

// Deps are the services controllers share.
type Deps struct {
	Ops    *chaincode.Ops
	Events *events.Processor
	Now    func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) today() string { return d.now().Format(DateLayout) }

// identity returns the caller set by auth.Required.
func identity(ctx *framework.Context) auth.Identity {
	id, _ := ctx.CurrentUser().(auth.Identity)
	return id
}

// LCListView is the body of the LC list.
type LCListView struct {
	LCApplications []LCRow `json:"lcApplications"`
	Role           string  `json:"role"`
	Date           string  `json:"date"`
	Username       string  `json:"username"`
}

// LCRow is one LC plus its translated status.
type LCRow struct {
	ledger.LC
	StatusLabel string `json:"statusLabel"`
}

func (d Deps) lcList(ctx *framework.Context, username, role string) (LCListView, error) {
	lcs, err := d.Ops.AllLCs(ctx.Context())
	if err != nil {
		return LCListView{}, err
	}
	rows := make([]LCRow, 0, len(lcs))
	for _, lc := range lcs {
		rows = append(rows, LCRow{LC: lc, StatusLabel: statusLabel(ctx, lc.CurrentStatus)})
	}
	return LCListView{LCApplications: rows, Role: role, Date: d.today(), Username: username}, nil
}

func statusLabel(ctx *framework.Context, s ledger.Status) string {
	if s == "" {
		return ""
	}
	return ctx.T("status."+string(s), nil)
}

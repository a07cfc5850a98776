package controllers

import (
	"testing"
	"time"

	"github.com/shaurya/tradeledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func TestBuildPageView(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		lc         ledger.LC
		wantPage   string
		wantCreate string
		wantState  DisplayState
		wantFiles  [3]string
	}{
		{
			name:       "fresh LC for the importer bank",
			page:       PageImporterBank,
			lc:         ledger.LC{ShipmentID: "S1"},
			wantPage:   PageImporterBank,
			wantCreate: "inline-block",
			wantState: DisplayState{
				EBState1: "none", EBState2: "inline",
				EDocState1: "none", EDocState2: "inline",
				CusState1: "none", CusState2: "inline",
				PayState1: "none", PayState2: "inline",
			},
		},
		{
			name:       "customs approved switches the importer bank to payment",
			page:       PageImporterBank,
			lc:         ledger.LC{ShipmentID: "S2", ExporterBankApproved: true, ExporterDocsUploaded: true, CustomsApproved: true},
			wantPage:   PageImporterBankPayment,
			wantCreate: "inline-block",
			wantState: DisplayState{
				EBState1: "inline", EBState2: "none",
				EDocState1: "inline", EDocState2: "none",
				CusState1: "inline", CusState2: "none",
				PayState1: "none", PayState2: "inline",
			},
		},
		{
			name:       "customs page with documents",
			page:       PageCustoms,
			lc:         ledger.LC{ShipmentID: "S3", CustomsApproved: true, PaymentComplete: true, DocumentNames: []string{"lc", "bl", "ins", "extra"}},
			wantPage:   PageCustoms,
			wantCreate: "none",
			wantState: DisplayState{
				EBState1: "none", EBState2: "inline",
				EDocState1: "none", EDocState2: "inline",
				CusState1: "inline", CusState2: "none",
				PayState1: "inline", PayState2: "none",
			},
			wantFiles: [3]string{"lc", "bl", "ins"},
		},
		{
			name:       "one document",
			page:       PageExporter,
			lc:         ledger.LC{ShipmentID: "S4", DocumentNames: []string{"letter"}},
			wantPage:   PageExporter,
			wantCreate: "none",
			wantState: DisplayState{
				EBState1: "none", EBState2: "inline",
				EDocState1: "none", EDocState2: "inline",
				CusState1: "none", CusState2: "inline",
				PayState1: "none", PayState2: "inline",
			},
			wantFiles: [3]string{"letter", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := tt.lc
			view := BuildPageView(tt.page, &lc, "Customs", monday)
			assert.Equal(t, tt.wantPage, view.Page)
			assert.Equal(t, tt.wantCreate, view.CreateVisible)
			require.NotNil(t, view.State)
			assert.Equal(t, tt.wantState, *view.State)
			assert.Equal(t, tt.wantFiles, [3]string{view.LCFileName, view.BLFileName, view.INSFileName})
			assert.Equal(t, "disabled", view.Disabled)
			assert.Equal(t, "Monday, 19 October 2026", view.Date)
			assert.Equal(t, "Customs", view.Role)
		})
	}
}

func TestBuildPageViewWithoutLC(t *testing.T) {
	view := BuildPageView(PageExporterBank, nil, "Exporter Bank", monday)
	assert.Equal(t, PageExporterBank, view.Page)
	assert.Nil(t, view.LC)
	assert.Nil(t, view.State)
	assert.Empty(t, view.CreateVisible)
	assert.Equal(t, "Monday, 19 October 2026", view.Date)
}

func TestIsRolePage(t *testing.T) {
	for _, p := range []string{"importerBank", "exporterBank", "exporter", "customs"} {
		assert.True(t, IsRolePage(p), p)
	}
	for _, p := range []string{"importerBankPayment", "admin", ""} {
		assert.False(t, IsRolePage(p), p)
	}
}

func TestBuildWorkbook(t *testing.T) {
	lcs := []ledger.LC{
		{ShipmentID: "S1", ContentDescription: "Coffee", ContentValue: decimal.RequireFromString("1500.25"), CurrentStatus: ledger.StatusCreated},
		{ShipmentID: "S2", CurrentStatus: ledger.StatusPaymentComplete, DocumentNames: []string{"a", "b"}},
	}
	f, err := BuildWorkbook(lcs, func(s ledger.Status) string { return "label:" + string(s) })
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Shipment ID", rows[0][0])
	assert.Equal(t, "S1", rows[1][0])
	assert.Equal(t, "1500.25", rows[1][2])
	assert.Equal(t, "label:Created", rows[1][10])
	assert.Equal(t, "S2", rows[2][0])
	assert.Equal(t, "2", rows[2][11])
}

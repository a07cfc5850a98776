package controllers

import (
	"fmt"
	"net/http"

	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "LCs"
)

var exportHeader = []any{
	"Shipment ID", "Description", "Value", "Exporter", "Exporter Bank", "Importer",
	"Importer Bank", "Freight", "Port of Loading", "Port of Entry", "Status", "Documents",
}

// Export answers with every LC as an xlsx workbook.
func (c *LCsController) Export(ctx *framework.Context) error {
	lcs, err := c.Ops.AllLCs(ctx.Context())
	if err != nil {
		return err
	}
	f, err := BuildWorkbook(lcs, func(s ledger.Status) string { return statusLabel(ctx, s) })
	if err != nil {
		return ctx.InternalError(err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return ctx.InternalError(err)
	}
	ctx.Response.Header().Set("Content-Disposition", `attachment; filename="lcs.xlsx"`)
	return ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// BuildWorkbook writes one row per LC under a header row. label translates
// the status column.
func BuildWorkbook(lcs []ledger.LC, label func(ledger.Status) string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, lc := range lcs {
		value, _ := lc.ContentValue.Float64()
		row := []any{
			lc.ShipmentID, lc.ContentDescription, value, lc.ExporterCompany, lc.ExporterBank,
			lc.ImporterCompany, lc.ImporterBank, lc.FreightCompany, lc.PortOfLoading, lc.PortOfEntry,
			label(lc.CurrentStatus), len(lc.DocumentNames),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

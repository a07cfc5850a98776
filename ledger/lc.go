package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle label stored in LC.CurrentStatus.
type Status string

const (
	StatusCreated              Status = "Created"
	StatusExporterBankApproved Status = "ExporterBankApproved"
	StatusExporterBankRejected Status = "ExporterBankRejected"
	StatusExporterDocsUploaded Status = "ExporterDocsUploaded"
	StatusCustomsApproved      Status = "CustomsApproved"
	StatusCustomsRejected      Status = "CustomsRejected"
	StatusPaymentComplete      Status = "PaymentComplete"
)

// StatusField names the LC flag an updateStatus request flips.
type StatusField string

const (
	FieldExporterBankApproved StatusField = "ExporterBankApproved"
	FieldExporterDocsUploaded StatusField = "ExporterDocsUploaded"
	FieldCustomsApproved      StatusField = "CustomsApproved"
	FieldPaymentComplete      StatusField = "PaymentComplete"
)

// ParseStatusField validates a field name received from a client.
func ParseStatusField(s string) (StatusField, error) {
	switch f := StatusField(s); f {
	case FieldExporterBankApproved, FieldExporterDocsUploaded, FieldCustomsApproved, FieldPaymentComplete:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// LC is a letter of credit as stored on the ledger.
type LC struct {
	ShipmentID           string          `json:"shipmentId" validate:"required,max=64"`
	ContentDescription   string          `json:"contentDesc" validate:"max=1024"`
	ContentValue         decimal.Decimal `json:"contentValue"`
	ExporterCompany      string          `json:"exporterCompany" validate:"max=256"`
	ExporterBank         string          `json:"exporterBank" validate:"max=256"`
	ImporterCompany      string          `json:"importerCompany" validate:"max=256"`
	ImporterBank         string          `json:"importerBank" validate:"max=256"`
	FreightCompany       string          `json:"freightCompany" validate:"max=256"`
	PortOfLoading        string          `json:"portOfLoading" validate:"max=256"`
	PortOfEntry          string          `json:"portOfEntry" validate:"max=256"`
	CurrentStatus        Status          `json:"currentStatus"`
	DocumentNames        []string        `json:"documentNames"`
	ExporterBankApproved bool            `json:"exporterBankApproved"`
	ExporterDocsUploaded bool            `json:"exporterDocsUploaded"`
	CustomsApproved      bool            `json:"customsApproved"`
	PaymentComplete      bool            `json:"paymentComplete"`
}

// Apply flips one status flag and moves CurrentStatus accordingly.
func (lc *LC) Apply(field StatusField, value bool) error {
	switch field {
	case FieldExporterBankApproved:
		lc.ExporterBankApproved = value
		lc.CurrentStatus = StatusExporterBankApproved
		if !value {
			lc.CurrentStatus = StatusExporterBankRejected
		}
	case FieldExporterDocsUploaded:
		lc.ExporterDocsUploaded = value
		lc.CurrentStatus = StatusExporterDocsUploaded
	case FieldCustomsApproved:
		lc.CustomsApproved = value
		lc.CurrentStatus = StatusCustomsApproved
		if !value {
			lc.CurrentStatus = StatusCustomsRejected
		}
	case FieldPaymentComplete:
		lc.PaymentComplete = value
		lc.CurrentStatus = StatusPaymentComplete
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, field)
	}
	return nil
}

// reset puts a freshly submitted LC into its initial state.
func (lc *LC) reset() {
	lc.CurrentStatus = StatusCreated
	lc.ExporterBankApproved = false
	lc.ExporterDocsUploaded = false
	lc.CustomsApproved = false
	lc.PaymentComplete = false
}

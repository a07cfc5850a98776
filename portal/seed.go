package portal

import (
	"context"
	"errors"

	"github.com/shaurya/tradeledger/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DemoLCs are the letters of credit created by SeedDemo.
func DemoLCs() []ledger.LC {
	return []ledger.LC{
		{
			ShipmentID:         "DEMO-001",
			ContentDescription: "Organic cotton bales",
			ContentValue:       decimal.RequireFromString("125000.00"),
			ExporterCompany:    "Coromandel Textiles",
			ExporterBank:       "Bay Export Bank",
			ImporterCompany:    "Noord Apparel BV",
			ImporterBank:       "Holland Trade Bank",
			FreightCompany:     "Blue Line Shipping",
			PortOfLoading:      "Chennai",
			PortOfEntry:        "Rotterdam",
		},
		{
			ShipmentID:         "DEMO-002",
			ContentDescription: "Arabica coffee, green",
			ContentValue:       decimal.RequireFromString("48250.75"),
			ExporterCompany:    "Sidama Growers",
			ExporterBank:       "Rift Valley Bank",
			ImporterCompany:    "Hanse Roasters GmbH",
			ImporterBank:       "Nordbank Trade Finance",
			FreightCompany:     "Gulf Carriers",
			PortOfLoading:      "Djibouti",
			PortOfEntry:        "Hamburg",
		},
	}
}

// SeedDemo creates the demo LCs that are missing, through the mutation
// queue, and returns how many were created.
func (p *Portal) SeedDemo(ctx context.Context) (int, error) {
	created := 0
	for _, lc := range DemoLCs() {
		_, err := p.Ops.FetchLC(ctx, lc.ShipmentID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return created, err
		}
		if _, err := p.Ops.CreateLC(ctx, p.Ops.Admin(), lc); err != nil {
			return created, err
		}
		created++
		p.log.Info("Seeded LC", zap.String("shipment_id", lc.ShipmentID))
	}
	return created, nil
}

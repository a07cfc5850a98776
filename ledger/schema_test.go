package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLC(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantID  string
		value   string
		wantErr bool
	}{
		{name: "object", payload: `{"shipmentId":"S1","contentValue":1200.5}`, wantID: "S1", value: "1200.5"},
		{name: "string value", payload: `{"shipmentId":"S2","contentValue":"99.10"}`, wantID: "S2", value: "99.1"},
		{name: "json string", payload: `"{\"shipmentId\":\"S3\",\"portOfEntry\":\"Rotterdam\"}"`, wantID: "S3", value: "0"},
		{name: "missing id", payload: `{"contentDesc":"x"}`, wantErr: true},
		{name: "empty id", payload: `{"shipmentId":""}`, wantErr: true},
		{name: "wrong type", payload: `{"shipmentId":"S4","portOfEntry":7}`, wantErr: true},
		{name: "not json", payload: `shipment`, wantErr: true},
		{name: "bad decimal", payload: `{"shipmentId":"S5","contentValue":"lots"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, err := ParseLC([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLC)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, lc.ShipmentID)
			assert.True(t, lc.ContentValue.Equal(decimal.RequireFromString(tt.value)), lc.ContentValue.String())
		})
	}
}

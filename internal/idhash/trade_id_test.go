package idhash

import (
	"testing"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name        string
		mint        string
		strategy    string
		trigger     string
		txSignature string
		executedAt  int64
	}{
		{
			name:        "live take profit",
			mint:        "MintA111111111111111111111111111111111111",
			strategy:    "tp_sl",
			trigger:     "TAKE_PROFIT",
			txSignature: "5xSig",
			executedAt:  1704067234567,
		},
		{
			name:       "dry run stop loss",
			mint:       "MintB111111111111111111111111111111111111",
			strategy:   "tp_sl",
			trigger:    "STOP_LOSS",
			executedAt: 1704067300000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.mint, tt.strategy, tt.trigger, tt.txSignature, tt.executedAt)

			if len(got) != 64 {
				t.Errorf("ComputeTradeID() length = %d, want 64", len(got))
			}

			got2 := ComputeTradeID(tt.mint, tt.strategy, tt.trigger, tt.txSignature, tt.executedAt)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("mint", "tp_sl", "TAKE_PROFIT", "sig", 1000)

	variants := map[string]string{
		"mint":      ComputeTradeID("mint2", "tp_sl", "TAKE_PROFIT", "sig", 1000),
		"strategy":  ComputeTradeID("mint", "other", "TAKE_PROFIT", "sig", 1000),
		"trigger":   ComputeTradeID("mint", "tp_sl", "STOP_LOSS", "sig", 1000),
		"signature": ComputeTradeID("mint", "tp_sl", "TAKE_PROFIT", "", 1000),
		"time":      ComputeTradeID("mint", "tp_sl", "TAKE_PROFIT", "sig", 1001),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}

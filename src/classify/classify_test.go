package classify

import (
	"testing"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/models"
)

func TestCategory(t *testing.T) {
	tests := map[string]string{
		"groceries":     "groceries",
		"GROCERIES":     "groceries",
		"mondo":         "general",
		"p2p":           "transfers",
		"cash":          "general",
		"crypto":        "other",
		"":              "other",
		"eating_out":    "eating_out",
		"personal_care": "personal_care",
	}
	for in, want := range tests {
		if got := Category(in); got != want {
			t.Errorf("Category(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		tx       bank.Transaction
		potName  string
		wantType models.MovementType
		wantDesc string
		notify   bool
	}{
		{
			name:     "card spend",
			tx:       bank.Transaction{Amount: -1250, Category: "groceries", Description: "TESCO STORES 2231", MerchantName: "Tesco"},
			wantType: models.MovementSpend,
			wantDesc: "Tesco",
			notify:   true,
		},
		{
			name:     "salary",
			tx:       bank.Transaction{Amount: 150000, Category: "income", Description: "ACME LTD"},
			wantType: models.MovementIncome,
			wantDesc: "ACME LTD",
			notify:   true,
		},
		{
			name:     "into pot",
			tx:       bank.Transaction{Amount: -5000, Category: "savings", Description: "pot_0000abc", PotID: "pot_0000abc"},
			potName:  "Holiday",
			wantType: models.MovementTransfer,
			wantDesc: "Transfer to Holiday",
			notify:   true,
		},
		{
			name:     "out of pot",
			tx:       bank.Transaction{Amount: 5000, Category: "savings", Description: "pot_0000abc"},
			potName:  "Holiday",
			wantType: models.MovementTransfer,
			wantDesc: "Transfer from Holiday",
			notify:   false,
		},
		{
			name:     "p2p received",
			tx:       bank.Transaction{Amount: 2000, Category: "p2p", Description: "MONZO", CounterpartyName: "Sam Jones"},
			wantType: models.MovementTransfer,
			wantDesc: "Sam Jones",
			notify:   false,
		},
		{
			name:     "pot without local match keeps raw description",
			tx:       bank.Transaction{Amount: -100, Description: "pot_zzz", PotID: "pot_zzz"},
			wantType: models.MovementTransfer,
			wantDesc: "pot_zzz",
			notify:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.tx, tt.potName)
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", got.Description, tt.wantDesc)
			}
			if got.ShouldNotify() != tt.notify {
				t.Errorf("ShouldNotify = %v, want %v", got.ShouldNotify(), tt.notify)
			}
			if got.Amount.IsNegative() {
				t.Errorf("Amount = %s, want positive magnitude", got.Amount)
			}
		})
	}
}

func TestClassifyAmount(t *testing.T) {
	got := Classify(bank.Transaction{Amount: -1250}, "")
	if got.Amount.String() != "12.5" {
		t.Errorf("Amount = %s, want 12.5", got.Amount)
	}
}

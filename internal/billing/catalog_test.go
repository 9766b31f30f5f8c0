package billing

import (
	"testing"

	"devmint/internal/types"
)

func TestNewCatalog_ParsesMapping(t *testing.T) {
	catalog, err := NewCatalog(`{
		"pri_monthly": {"plan": "supporter", "cycle": "monthly"},
		"pri_yearly": {"plan": "supporter", "cycle": "yearly"}
	}`, "pri_donation")
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	desc, ok := catalog.Lookup("pri_monthly")
	if !ok {
		t.Fatal("expected pri_monthly in catalog")
	}
	if desc.Plan != "supporter" || desc.Cycle != types.CycleMonthly {
		t.Errorf("unexpected descriptor %+v", desc)
	}

	if _, ok := catalog.Lookup("pri_unknown"); ok {
		t.Error("expected unknown price to miss")
	}
	if catalog.DonationPriceID() != "pri_donation" {
		t.Errorf("unexpected donation price %q", catalog.DonationPriceID())
	}
	if !catalog.IsDonationPrice("pri_donation") || catalog.IsDonationPrice("pri_monthly") {
		t.Error("donation price classification is wrong")
	}
	if got := len(catalog.PlanPriceIDs()); got != 2 {
		t.Errorf("expected 2 plan price IDs, got %d", got)
	}
}

func TestNewCatalog_RejectsInvalidJSON(t *testing.T) {
	if _, err := NewCatalog(`{not json`, "pri_donation"); err == nil {
		t.Error("expected malformed JSON to be rejected")
	}
}

func TestNewCatalog_RejectsUnknownCycle(t *testing.T) {
	_, err := NewCatalog(`{"pri_weekly": {"plan": "supporter", "cycle": "weekly"}}`, "pri_donation")
	if err == nil {
		t.Error("expected unknown billing cycle to be rejected")
	}
}

func TestNewCatalog_RejectsDonationPriceAsPlan(t *testing.T) {
	_, err := NewCatalog(`{"pri_donation": {"plan": "supporter", "cycle": "monthly"}}`, "pri_donation")
	if err == nil {
		t.Error("expected the donation price to be excluded from the plan mapping")
	}
}

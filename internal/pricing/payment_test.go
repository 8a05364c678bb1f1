package pricing

import (
	"testing"

	"salesdesk/backend/internal/domain"
)

func TestPaymentTypeOptionsPerMode(t *testing.T) {
	banks := PaymentTypeOptions(domain.PaymentBank)
	if len(banks) != 4 || banks[0].Value != "SECURITYBANK" {
		t.Fatalf("unexpected bank options: %+v", banks)
	}

	ewallet := PaymentTypeOptions(domain.PaymentEwallet)
	if len(ewallet) != 1 || ewallet[0].Value != "PAYOUT" {
		t.Fatalf("unexpected ewallet options: %+v", ewallet)
	}

	cash := PaymentTypeOptions(domain.PaymentCash)
	if len(cash) != 1 || cash[0].Value != "N/A" {
		t.Fatalf("expected N/A fallback for cash, got %+v", cash)
	}
}

func TestSetSecondaryModeRejectsPrimaryCollision(t *testing.T) {
	split := NewPaymentSplit()

	msg := split.SetSecondaryMode(domain.PaymentCash)
	if msg != MsgSecondaryMatchesPrimary {
		t.Fatalf("expected collision message, got %q", msg)
	}
	if split.Secondary.Mode != domain.PaymentNA {
		t.Fatalf("expected secondary reverted to N/A, got %v", split.Secondary.Mode)
	}
	if split.Secondary.Type != "N/A" || split.Secondary.ReferenceNo != "N/A" {
		t.Fatalf("expected secondary dependents cleared, got %+v", split.Secondary)
	}
}

func TestSetSecondaryModeAcceptsDistinctMode(t *testing.T) {
	split := NewPaymentSplit()

	msg := split.SetSecondaryMode(domain.PaymentBank)
	if msg != "" {
		t.Fatalf("expected no message, got %q", msg)
	}
	if split.Secondary.Mode != domain.PaymentBank {
		t.Fatalf("expected bank secondary, got %v", split.Secondary.Mode)
	}
	if split.Secondary.Type != "SECURITYBANK" {
		t.Fatalf("expected first bank type as default, got %q", split.Secondary.Type)
	}
	if split.Secondary.ReferenceNo != "" {
		t.Fatalf("expected empty reference awaiting input, got %q", split.Secondary.ReferenceNo)
	}
}

func TestSetPrimaryModeResetsCollidingSecondary(t *testing.T) {
	split := NewPaymentSplit()
	if msg := split.SetSecondaryMode(domain.PaymentBank); msg != "" {
		t.Fatalf("setup failed: %q", msg)
	}

	msg := split.SetPrimaryMode(domain.PaymentBank)
	if msg != MsgSecondaryMatchesPrimary {
		t.Fatalf("expected collision message, got %q", msg)
	}
	if split.Primary.Mode != domain.PaymentBank {
		t.Fatalf("expected primary switched to bank, got %v", split.Primary.Mode)
	}
	if split.Secondary.Mode != domain.PaymentNA {
		t.Fatalf("expected secondary reset to N/A, got %v", split.Secondary.Mode)
	}
}

func TestSetPrimaryModeAppliesDefaults(t *testing.T) {
	split := NewPaymentSplit()

	if msg := split.SetPrimaryMode(domain.PaymentEwallet); msg != "" {
		t.Fatalf("expected no message, got %q", msg)
	}
	if split.Primary.Type != "PAYOUT" {
		t.Fatalf("expected payout default, got %q", split.Primary.Type)
	}
	if split.Primary.ReferenceNo != "" {
		t.Fatalf("expected empty reference for non-N/A type, got %q", split.Primary.ReferenceNo)
	}
}

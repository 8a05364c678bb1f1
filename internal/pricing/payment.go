package pricing

import "salesdesk/backend/internal/domain"

// MsgSecondaryMatchesPrimary is the recoverable validation message emitted
// whenever the secondary payment mode collides with the primary.
const MsgSecondaryMatchesPrimary = "secondary payment mode cannot match primary mode"

// PaymentTypeOption pairs a display label with the stored payment type value.
type PaymentTypeOption struct {
	Label string
	Value string
}

var defaultPaymentTypeOption = PaymentTypeOption{Label: "N/A", Value: "N/A"}

var paymentTypeOptionsByMode = map[domain.PaymentMode][]PaymentTypeOption{
	domain.PaymentBank: {
		{Label: "Security Bank", Value: "SECURITYBANK"},
		{Label: "BPI", Value: "BPI"},
		{Label: "BDO", Value: "BDO"},
		{Label: "GoTyme", Value: "GOTYME"},
	},
	domain.PaymentEwallet: {
		{Label: "Payout", Value: "PAYOUT"},
	},
}

// PaymentTypeOptions returns the selectable payment types for a mode. Modes
// without dedicated types get the single N/A option.
func PaymentTypeOptions(mode domain.PaymentMode) []PaymentTypeOption {
	if mode == domain.PaymentNA {
		return []PaymentTypeOption{defaultPaymentTypeOption}
	}
	if options, ok := paymentTypeOptionsByMode[mode]; ok {
		return options
	}
	return []PaymentTypeOption{defaultPaymentTypeOption}
}

// PaymentSplit tracks the primary and secondary payment legs of a sale and
// enforces that the two modes differ. Violations are recoverable UI state,
// reported as a message, never an error.
type PaymentSplit struct {
	Primary   domain.Payment
	Secondary domain.Payment
}

func NewPaymentSplit() PaymentSplit {
	return PaymentSplit{
		Primary:   domain.Payment{Mode: domain.PaymentCash, Type: "N/A", ReferenceNo: "N/A"},
		Secondary: naPayment(),
	}
}

func naPayment() domain.Payment {
	return domain.Payment{Mode: domain.PaymentNA, Type: "N/A", ReferenceNo: "N/A"}
}

// SetPrimaryMode switches the primary payment mode, resetting its type and
// reference defaults. If the new primary collides with the current secondary,
// the secondary is reset to N/A and the validation message is returned.
func (s *PaymentSplit) SetPrimaryMode(mode domain.PaymentMode) string {
	s.Primary.Mode = mode
	s.Primary.Type, s.Primary.ReferenceNo = defaultsForMode(mode)

	if s.Secondary.Mode != domain.PaymentNA && s.Secondary.Mode == mode {
		s.Secondary = naPayment()
		return MsgSecondaryMatchesPrimary
	}
	return ""
}

// SetSecondaryMode switches the secondary payment mode. A mode equal to the
// primary is rejected: the secondary reverts to N/A with its dependent fields
// cleared and the validation message is returned.
func (s *PaymentSplit) SetSecondaryMode(mode domain.PaymentMode) string {
	if mode != domain.PaymentNA && mode == s.Primary.Mode {
		s.Secondary = naPayment()
		return MsgSecondaryMatchesPrimary
	}

	s.Secondary.Mode = mode
	s.Secondary.Type, s.Secondary.ReferenceNo = defaultsForMode(mode)
	return ""
}

// defaultsForMode picks the first payment type for the mode; reference starts
// as N/A when the type is N/A and empty (to be filled in) otherwise.
func defaultsForMode(mode domain.PaymentMode) (paymentType string, referenceNo string) {
	options := PaymentTypeOptions(mode)
	paymentType = options[0].Value
	if paymentType == "N/A" {
		return paymentType, "N/A"
	}
	return paymentType, ""
}

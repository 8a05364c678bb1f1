package pricing

import "salesdesk/backend/internal/domain"

// Derived is a derived form value. Auto values are recomputed on every
// derivation pass; Manual values were edited directly by the user and stay
// untouched until the form is reset.
type Derived struct {
	Value  float64
	Manual bool
}

func Auto(value float64) Derived {
	return Derived{Value: value}
}

func Manual(value float64) Derived {
	return Derived{Value: value, Manual: true}
}

// FormState holds the raw and derived fields of the encoder form that feed
// the pricing computation.
type FormState struct {
	MemberType      domain.MemberType
	PackageType     domain.PackageType
	IsToBlister     bool
	Quantity        float64
	OriginalPrice   float64
	Discount        float64
	OneTimeDiscount float64
	PrimaryMode     domain.PaymentMode

	Price           Derived
	Sales           Derived
	SecondaryAmount Derived

	BottleCount  float64
	BlisterCount float64
}

// NewFormState builds the initial state for a member/package selection with
// catalog price and discount applied and every derived field automatic.
func NewFormState(member domain.MemberType, pkg domain.PackageType) FormState {
	state := FormState{
		MemberType:  member,
		PackageType: pkg,
		Quantity:    1,
		PrimaryMode: domain.PaymentCash,
	}
	return Derive(ApplyMemberPackageRules(state, member, pkg))
}

// ApplyMemberPackageRules reloads the catalog-driven inputs after a member or
// package change. Derived fields are left alone; callers re-derive after.
func ApplyMemberPackageRules(state FormState, member domain.MemberType, pkg domain.PackageType) FormState {
	state.MemberType = member
	state.PackageType = pkg
	state.OriginalPrice = PriceFor(pkg).OriginalPrice
	state.Discount = DiscountFor(member, pkg)
	state.IsToBlister = DefaultToBlister(pkg)
	return state
}

// Derive recomputes every automatic derived field from the current inputs.
// It is pure and idempotent: running it twice over the same state yields an
// identical state. Manual fields keep their value.
func Derive(state FormState) FormState {
	state.Quantity = clampFloor(state.Quantity)
	state.Discount = clampFloor(state.Discount)
	state.OneTimeDiscount = clampFloor(state.OneTimeDiscount)

	if !state.Price.Manual {
		state.Price = Auto(clampFloor(state.OriginalPrice - state.Discount))
	}

	if state.IsToBlister {
		state.BlisterCount = state.Quantity * 10
	} else {
		state.BlisterCount = 0
	}
	state.BottleCount = state.Quantity * PriceFor(state.PackageType).BottleMultiplier

	if !state.Sales.Manual {
		state.Sales = Auto(clampFloor(state.Price.Value*state.Quantity - state.OneTimeDiscount))
	}

	if !state.SecondaryAmount.Manual {
		if state.PrimaryMode == domain.PaymentEpoints {
			state.SecondaryAmount = Auto(state.Sales.Value)
		} else {
			state.SecondaryAmount = Auto(clamp(state.SecondaryAmount.Value, 0, state.Sales.Value))
		}
	}

	return state
}

func clampFloor(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

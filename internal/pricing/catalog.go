package pricing

import "salesdesk/backend/internal/domain"

// PackagePrice is the catalog entry for one package type.
type PackagePrice struct {
	OriginalPrice    float64
	BottleMultiplier float64
}

// The catalogs below are process-wide constants. Unknown enum values are a
// caller contract violation: inputs are validated in domain parsing before
// they reach these tables, so lookups here are total.

var packageCatalog = map[domain.PackageType]PackagePrice{
	domain.PackageSilver:   {OriginalPrice: 3500, BottleMultiplier: 1},
	domain.PackageGold:     {OriginalPrice: 10500, BottleMultiplier: 3},
	domain.PackagePlatinum: {OriginalPrice: 35000, BottleMultiplier: 10},
	domain.PackageRetail:   {OriginalPrice: 3800, BottleMultiplier: 1},
	domain.PackageBlister:  {OriginalPrice: 1299, BottleMultiplier: 1},
}

var discountMatrix = map[domain.MemberType]map[domain.PackageType]float64{
	domain.MemberDistributor: {
		domain.PackageSilver:   0,
		domain.PackageGold:     0,
		domain.PackagePlatinum: 0,
		domain.PackageRetail:   1520,
		domain.PackageBlister:  520,
	},
	domain.MemberStockist: {
		domain.PackageSilver:   50,
		domain.PackageGold:     150,
		domain.PackagePlatinum: 500,
		domain.PackageRetail:   1710,
		domain.PackageBlister:  585,
	},
	domain.MemberCenter: {
		domain.PackageSilver:   80,
		domain.PackageGold:     240,
		domain.PackagePlatinum: 800,
		domain.PackageRetail:   1900,
		domain.PackageBlister:  650,
	},
	domain.MemberNonMember: {
		domain.PackageSilver:   0,
		domain.PackageGold:     0,
		domain.PackagePlatinum: 0,
		domain.PackageRetail:   0,
		domain.PackageBlister:  0,
	},
}

// Silver and blister packages default to blister packaging on selection.
var defaultToBlister = map[domain.PackageType]bool{
	domain.PackageSilver:  true,
	domain.PackageBlister: true,
}

func PriceFor(pkg domain.PackageType) PackagePrice {
	return packageCatalog[pkg]
}

func DiscountFor(member domain.MemberType, pkg domain.PackageType) float64 {
	return discountMatrix[member][pkg]
}

func DefaultToBlister(pkg domain.PackageType) bool {
	return defaultToBlister[pkg]
}

package enums

import "fmt"

// BuyerType distinguishes consumer and business checkouts.
type BuyerType string

const (
	BuyerTypeIndividual BuyerType = "individual"
	BuyerTypeCompany    BuyerType = "company"
)

func (b BuyerType) String() string {
	return string(b)
}

func (b BuyerType) IsValid() bool {
	return b == BuyerTypeIndividual || b == BuyerTypeCompany
}

// ParseBuyerType converts raw input into a BuyerType, defaulting to individual
// when empty.
func ParseBuyerType(value string) (BuyerType, error) {
	switch value {
	case "", string(BuyerTypeIndividual):
		return BuyerTypeIndividual, nil
	case string(BuyerTypeCompany):
		return BuyerTypeCompany, nil
	default:
		return "", fmt.Errorf("invalid buyer type %q", value)
	}
}

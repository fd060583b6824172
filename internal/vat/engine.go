package vat

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/plombea/plombea-backend/pkg/enums"
)

// Determination is the authoritative tax outcome for a destination/buyer pair.
type Determination struct {
	Rule           enums.TaxRule
	Rate           decimal.Decimal
	Country        string
	VATNumberValid bool
}

// Input carries everything the engine needs to classify a sale.
type Input struct {
	Country   string
	BuyerType enums.BuyerType
	VATNumber string
}

var (
	franceRate  = decimal.RequireFromString("0.20")
	zeroRate    = decimal.Zero
	defaultRate = franceRate
)

// euStandardRates maps ISO 3166-1 alpha-2 codes to standard VAT rates.
var euStandardRates = map[string]decimal.Decimal{
	"AT": decimal.RequireFromString("0.20"),
	"BE": decimal.RequireFromString("0.21"),
	"BG": decimal.RequireFromString("0.20"),
	"HR": decimal.RequireFromString("0.25"),
	"CY": decimal.RequireFromString("0.19"),
	"CZ": decimal.RequireFromString("0.21"),
	"DK": decimal.RequireFromString("0.25"),
	"EE": decimal.RequireFromString("0.22"),
	"FI": decimal.RequireFromString("0.255"),
	"FR": franceRate,
	"DE": decimal.RequireFromString("0.19"),
	"GR": decimal.RequireFromString("0.24"),
	"HU": decimal.RequireFromString("0.27"),
	"IE": decimal.RequireFromString("0.23"),
	"IT": decimal.RequireFromString("0.22"),
	"LV": decimal.RequireFromString("0.21"),
	"LT": decimal.RequireFromString("0.21"),
	"LU": decimal.RequireFromString("0.17"),
	"MT": decimal.RequireFromString("0.18"),
	"NL": decimal.RequireFromString("0.21"),
	"PL": decimal.RequireFromString("0.23"),
	"PT": decimal.RequireFromString("0.23"),
	"RO": decimal.RequireFromString("0.19"),
	"SK": decimal.RequireFromString("0.23"),
	"SI": decimal.RequireFromString("0.22"),
	"ES": decimal.RequireFromString("0.21"),
	"SE": decimal.RequireFromString("0.25"),
}

// vatNumberPatterns validates intra-community VAT numbers per member state.
var vatNumberPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^ATU[0-9]{8}$`),
	"BE": regexp.MustCompile(`^BE[01][0-9]{9}$`),
	"BG": regexp.MustCompile(`^BG[0-9]{9,10}$`),
	"HR": regexp.MustCompile(`^HR[0-9]{11}$`),
	"CY": regexp.MustCompile(`^CY[0-9]{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^CZ[0-9]{8,10}$`),
	"DK": regexp.MustCompile(`^DK[0-9]{8}$`),
	"EE": regexp.MustCompile(`^EE[0-9]{9}$`),
	"FI": regexp.MustCompile(`^FI[0-9]{8}$`),
	"FR": regexp.MustCompile(`^FR[0-9A-Z]{2}[0-9]{9}$`),
	"DE": regexp.MustCompile(`^DE[0-9]{9}$`),
	"GR": regexp.MustCompile(`^EL[0-9]{9}$`),
	"HU": regexp.MustCompile(`^HU[0-9]{8}$`),
	"IE": regexp.MustCompile(`^IE[0-9][A-Z0-9+*][0-9]{5}[A-Z]{1,2}$`),
	"IT": regexp.MustCompile(`^IT[0-9]{11}$`),
	"LV": regexp.MustCompile(`^LV[0-9]{11}$`),
	"LT": regexp.MustCompile(`^LT([0-9]{9}|[0-9]{12})$`),
	"LU": regexp.MustCompile(`^LU[0-9]{8}$`),
	"MT": regexp.MustCompile(`^MT[0-9]{8}$`),
	"NL": regexp.MustCompile(`^NL[0-9]{9}B[0-9]{2}$`),
	"PL": regexp.MustCompile(`^PL[0-9]{10}$`),
	"PT": regexp.MustCompile(`^PT[0-9]{9}$`),
	"RO": regexp.MustCompile(`^RO[0-9]{2,10}$`),
	"SK": regexp.MustCompile(`^SK[0-9]{10}$`),
	"SI": regexp.MustCompile(`^SI[0-9]{8}$`),
	"ES": regexp.MustCompile(`^ES[A-Z0-9][0-9]{7}[A-Z0-9]$`),
	"SE": regexp.MustCompile(`^SE[0-9]{12}$`),
}

// Determine classifies the sale and returns the applicable rule and rate.
//
// Domestic French sales always carry French VAT, whatever the buyer claims
// to be. EU companies with a valid VAT number are reverse-charged at 0%.
// Other EU destinations pay their local standard rate, and everything
// outside the union ships VAT-free as an export. Unknown destinations fall
// back to the French consumer treatment.
func Determine(input Input) Determination {
	country := NormalizeCountry(input.Country)

	if country == "" {
		return Determination{Rule: enums.TaxRuleDomesticFR, Rate: defaultRate, Country: "FR"}
	}

	if country == "FR" {
		return Determination{Rule: enums.TaxRuleDomesticFR, Rate: franceRate, Country: country}
	}

	rate, isEU := euStandardRates[country]
	if !isEU {
		return Determination{Rule: enums.TaxRuleExport, Rate: zeroRate, Country: country}
	}

	if input.BuyerType == enums.BuyerTypeCompany {
		if ValidVATNumber(country, input.VATNumber) {
			return Determination{
				Rule:           enums.TaxRuleReverseCharge,
				Rate:           zeroRate,
				Country:        country,
				VATNumberValid: true,
			}
		}
	}

	return Determination{Rule: enums.TaxRuleEUStandard, Rate: rate, Country: country}
}

// ValidVATNumber checks the number against the destination country's format.
func ValidVATNumber(country, number string) bool {
	pattern, ok := vatNumberPatterns[NormalizeCountry(country)]
	if !ok {
		return false
	}
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(number, " ", ""), ".", ""))
	return pattern.MatchString(cleaned)
}

// NormalizeCountry uppercases and trims an ISO country code.
func NormalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// IsEU reports whether the country participates in the EU VAT area.
func IsEU(country string) bool {
	_, ok := euStandardRates[NormalizeCountry(country)]
	return ok
}

// TaxCents applies the rate to a taxable amount, rounding half-up to whole cents.
func TaxCents(taxableCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(taxableCents).Mul(rate).Round(0).IntPart()
}

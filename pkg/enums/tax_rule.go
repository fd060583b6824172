package enums

// TaxRule is the human-readable code explaining how VAT was computed.
type TaxRule string

const (
	// TaxRuleDomesticFR is the 20% home-jurisdiction rule, applied to every
	// French destination regardless of buyer type.
	TaxRuleDomesticFR TaxRule = "B2C_FRANCE"
	// TaxRuleEUStandard charges the destination country's standard rate.
	TaxRuleEUStandard TaxRule = "B2C_EU"
	// TaxRuleReverseCharge shifts liability to a VAT-registered business buyer
	// in another member state; no VAT is charged.
	TaxRuleReverseCharge TaxRule = "B2B_REVERSE_CHARGE"
	// TaxRuleExport applies to non-EU destinations; no VAT is charged.
	TaxRuleExport TaxRule = "EXPORT"
)

func (r TaxRule) String() string {
	return string(r)
}

package types

import "strings"

// Address is stored as jsonb on carts, checkout sessions, and orders.
type Address struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Company    *string `json:"company,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// CountryCode returns the normalized two-letter country code.
func (a Address) CountryCode() string {
	return strings.ToUpper(strings.TrimSpace(a.Country))
}

// Complete reports whether the mandatory address fields are present.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.FirstName) != "" &&
		strings.TrimSpace(a.LastName) != "" &&
		strings.TrimSpace(a.Line1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		a.CountryCode() != ""
}

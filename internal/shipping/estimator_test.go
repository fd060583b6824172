package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalWeightGramsDefaultsPerUnit(t *testing.T) {
	items := []Item{
		{WeightGrams: 0, Quantity: 2},   // 2 x 500g default
		{WeightGrams: 1200, Quantity: 1},
		{WeightGrams: 300, Quantity: 0}, // quantity clamps to 1
	}
	assert.Equal(t, 2500, TotalWeightGrams(items))
}

func TestZoneFor(t *testing.T) {
	assert.Equal(t, ZoneFrance, ZoneFor("FR"))
	assert.Equal(t, ZoneFrance, ZoneFor(" fr "))
	assert.Equal(t, ZoneFrance, ZoneFor(""))
	assert.Equal(t, ZoneEU, ZoneFor("DE"))
	assert.Equal(t, ZoneEU, ZoneFor("es"))
	assert.Equal(t, ZoneWorld, ZoneFor("US"))
	assert.Equal(t, ZoneWorld, ZoneFor("GB"))
}

func TestEstimateForMatchesWeightBand(t *testing.T) {
	// 3 x 500g default = 1500g, first France band.
	est := EstimateFor("FR", []Item{{Quantity: 3}})
	assert.Equal(t, "Colissimo", est.Method)
	assert.Equal(t, ZoneFrance, est.Zone)
	assert.Equal(t, int64(690), est.PriceCents)
	assert.Equal(t, 2, est.MinDays)
	assert.Equal(t, 4, est.MaxDays)

	// 8kg to Germany lands in the 10kg EU band.
	est = EstimateFor("DE", []Item{{WeightGrams: 4000, Quantity: 2}})
	assert.Equal(t, ZoneEU, est.Zone)
	assert.Equal(t, int64(2690), est.PriceCents)
}

func TestEstimateForFallsBackWhenUnpriceable(t *testing.T) {
	// Empty cart.
	est := EstimateFor("FR", nil)
	assert.Equal(t, "Standard", est.Method)
	assert.Equal(t, ZoneFrance, est.Zone)
	assert.Equal(t, int64(1490), est.PriceCents)
	assert.Equal(t, 3, est.MinDays)
	assert.Equal(t, 7, est.MaxDays)

	// Heavier than the last France band.
	est = EstimateFor("FR", []Item{{WeightGrams: 31_000, Quantity: 1}})
	assert.Equal(t, "Standard", est.Method)
	assert.Equal(t, ZoneFrance, est.Zone)
	assert.Equal(t, int64(1490), est.PriceCents)

	// World shipments above 10kg fall back too, and the quote still names
	// the destination zone.
	est = EstimateFor("US", []Item{{WeightGrams: 11_000, Quantity: 1}})
	assert.Equal(t, "Standard", est.Method)
	assert.Equal(t, ZoneWorld, est.Zone)
}

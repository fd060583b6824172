package shipping

import (
	"strings"

	"github.com/plombea/plombea-backend/internal/vat"
	"github.com/plombea/plombea-backend/pkg/db/models"
)

// Zone buckets destinations for the rate table.
type Zone string

const (
	ZoneFrance Zone = "FR"
	ZoneEU     Zone = "EU"
	ZoneWorld  Zone = "WORLD"
)

// Estimate is a priced shipping option for a cart and destination.
type Estimate struct {
	Method     string `json:"method"`
	Zone       Zone   `json:"zone"`
	PriceCents int64  `json:"priceCents"`
	MinDays    int    `json:"minDays"`
	MaxDays    int    `json:"maxDays"`
}

// Item is one shippable line: a unit weight and a quantity.
type Item struct {
	WeightGrams int
	Quantity    int
}

type rateBand struct {
	maxGrams   int
	priceCents int64
}

type zoneTable struct {
	bands   []rateBand
	minDays int
	maxDays int
}

// fallbackEstimate is returned whenever the table cannot price a shipment.
// The zone is stamped per destination before the quote goes out.
var fallbackEstimate = Estimate{
	Method:     "Standard",
	PriceCents: 1490,
	MinDays:    3,
	MaxDays:    7,
}

func fallbackFor(zone Zone) Estimate {
	est := fallbackEstimate
	est.Zone = zone
	return est
}

var rateTables = map[Zone]zoneTable{
	ZoneFrance: {
		bands: []rateBand{
			{maxGrams: 2_000, priceCents: 690},
			{maxGrams: 5_000, priceCents: 990},
			{maxGrams: 10_000, priceCents: 1490},
			{maxGrams: 30_000, priceCents: 2490},
		},
		minDays: 2,
		maxDays: 4,
	},
	ZoneEU: {
		bands: []rateBand{
			{maxGrams: 2_000, priceCents: 1290},
			{maxGrams: 5_000, priceCents: 1890},
			{maxGrams: 10_000, priceCents: 2690},
			{maxGrams: 30_000, priceCents: 4490},
		},
		minDays: 3,
		maxDays: 7,
	},
	ZoneWorld: {
		bands: []rateBand{
			{maxGrams: 2_000, priceCents: 2490},
			{maxGrams: 5_000, priceCents: 3990},
			{maxGrams: 10_000, priceCents: 5990},
		},
		minDays: 7,
		maxDays: 15,
	},
}

// ZoneFor maps a destination country onto the rate table zones.
func ZoneFor(country string) Zone {
	code := strings.ToUpper(strings.TrimSpace(country))
	switch {
	case code == "FR" || code == "":
		return ZoneFrance
	case vat.IsEU(code):
		return ZoneEU
	default:
		return ZoneWorld
	}
}

// TotalWeightGrams sums line weights, assuming the default unit weight when
// a line has none.
func TotalWeightGrams(items []Item) int {
	total := 0
	for _, item := range items {
		weight := item.WeightGrams
		if weight <= 0 {
			weight = models.DefaultItemWeightGrams
		}
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		total += weight * qty
	}
	return total
}

// Estimate prices a shipment by zone and total weight. Shipments the table
// cannot price fall back to the fixed standard rate.
func EstimateFor(country string, items []Item) Estimate {
	zone := ZoneFor(country)
	if len(items) == 0 {
		return fallbackFor(zone)
	}

	table, ok := rateTables[zone]
	if !ok {
		return fallbackFor(zone)
	}

	weight := TotalWeightGrams(items)
	for _, band := range table.bands {
		if weight <= band.maxGrams {
			return Estimate{
				Method:     "Colissimo",
				Zone:       zone,
				PriceCents: band.priceCents,
				MinDays:    table.minDays,
				MaxDays:    table.maxDays,
			}
		}
	}

	// Heavier than the last band: freight is quoted manually, so the
	// storefront shows the standard fallback.
	return fallbackFor(zone)
}

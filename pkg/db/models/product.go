package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/plombea/plombea-backend/pkg/enums"
)

// DefaultItemWeightGrams is assumed whenever a listing has no explicit weight.
const DefaultItemWeightGrams = 500

// Product represents a catalog listing.
type Product struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Slug           string            `gorm:"column:slug;not null;uniqueIndex"`
	SKU            string            `gorm:"column:sku;not null;default:''"`
	Name           string            `gorm:"column:name;not null"`
	Description    string            `gorm:"column:description;not null;default:''"`
	Brand          string            `gorm:"column:brand;not null;default:''"`
	Category       string            `gorm:"column:category;not null;default:''"`
	PriceCents     int64             `gorm:"column:price_cents;not null"`
	SalePriceCents *int64            `gorm:"column:sale_price_cents"`
	Currency       enums.Currency    `gorm:"column:currency;not null;default:'EUR'"`
	WeightGrams    int               `gorm:"column:weight_grams;not null;default:500"`
	Dimensions     string            `gorm:"column:dimensions;not null;default:''"`
	Material       string            `gorm:"column:material;not null;default:''"`
	Images         pq.StringArray    `gorm:"column:images;type:text[]"`
	Bullets        pq.StringArray    `gorm:"column:bullets;type:text[]"`
	ReferralLinks  map[string]string `gorm:"column:referral_links;type:jsonb;serializer:json"`
	Active         bool              `gorm:"column:active;not null;default:true"`
	Stock          int               `gorm:"column:stock;not null;default:0"`
	ManageStock    bool              `gorm:"column:manage_stock;not null;default:false"`
	Variants       []ProductVariant  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// EffectiveWeightGrams returns the listing weight, falling back to the default.
func (p Product) EffectiveWeightGrams() int {
	if p.WeightGrams > 0 {
		return p.WeightGrams
	}
	return DefaultItemWeightGrams
}

// EffectivePriceCents returns the sale price when one is set and actually
// lower than the list price, otherwise the list price.
func (p Product) EffectivePriceCents() int64 {
	if p.SalePriceCents != nil && *p.SalePriceCents > 0 && *p.SalePriceCents < p.PriceCents {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

// MainImage returns the first gallery image, empty when none is set.
func (p Product) MainImage() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// ProductVariant is an optional size/finish declination of a product.
type ProductVariant struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU         string    `gorm:"column:sku;not null;uniqueIndex"`
	Label       string    `gorm:"column:label;not null"`
	PriceCents  *int64    `gorm:"column:price_cents"`
	WeightGrams *int      `gorm:"column:weight_grams"`
	Stock       int       `gorm:"column:stock;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductVariant) TableName() string { return "product_variants" }

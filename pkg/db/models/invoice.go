package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice links a completed order to its PDF stored in the bucket.
type Invoice struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Number      string    `gorm:"column:number;not null;uniqueIndex"`
	ObjectPath  string    `gorm:"column:object_path;not null"`
	ContentType string    `gorm:"column:content_type;not null;default:'application/pdf'"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Invoice) TableName() string { return "invoices" }

package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base holds the GORM handle shared by the domain repositories. Embedding
// it gives a repository context-aware access to the connection.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB binds the connection to ctx so query cancellation follows the request.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

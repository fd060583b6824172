package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/pkg/db/models"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/storage/gcs"
)

// LogoObjectKey is the fixed bucket key serving the shop logo.
const LogoObjectKey = "assets/logo.png"

const invoiceContentType = "application/pdf"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type objectStore interface {
	Upload(ctx context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// Service stores invoice PDFs and links them to orders.
type Service interface {
	Upload(ctx context.Context, orderNumber string, pdf []byte) (*models.Invoice, error)
	Download(ctx context.Context, orderNumber string) (*models.Invoice, []byte, error)
	UploadProductImage(ctx context.Context, productID uuid.UUID, contentType string, data []byte) (string, error)
	UploadLogo(ctx context.Context, data []byte) (string, error)
}

type service struct {
	db     *gorm.DB
	orders *orders.Repository
	tx     txRunner
	bucket objectStore
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the invoice service backed by the provided stack.
func NewService(db *gorm.DB, orderRepo *orders.Repository, tx txRunner, bucket objectStore, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if bucket == nil {
		return nil, fmt.Errorf("object store required")
	}
	return &service{db: db, orders: orderRepo, tx: tx, bucket: bucket, logg: logg, now: time.Now}, nil
}

// Upload stores the PDF in the bucket first, then records the invoice row and
// links it to the order. An order carries at most one invoice.
func (s *service) Upload(ctx context.Context, orderNumber string, pdf []byte) (*models.Invoice, error) {
	if len(pdf) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice pdf is empty")
	}
	order, err := s.orders.GetByNumber(ctx, strings.TrimSpace(orderNumber))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.InvoiceID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an invoice")
	}

	number := invoiceNumber(order.OrderNumber)
	objectPath := fmt.Sprintf("invoices/%s.pdf", number)

	if _, err := s.bucket.Upload(ctx, objectPath, invoiceContentType, pdf); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload invoice")
	}

	invoice := &models.Invoice{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Number:      number,
		ObjectPath:  objectPath,
		ContentType: invoiceContentType,
		SizeBytes:   int64(len(pdf)),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := tx.Create(invoice).Error; txErr != nil {
			return txErr
		}
		order.InvoiceID = &invoice.ID
		return s.orders.WithTx(tx).Update(ctx, order)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store invoice")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderNumber(ctx, order.OrderNumber), "invoice uploaded")
	}
	return invoice, nil
}

// Download returns the invoice row and its PDF bytes.
func (s *service) Download(ctx context.Context, orderNumber string) (*models.Invoice, []byte, error) {
	order, err := s.orders.GetByNumber(ctx, strings.TrimSpace(orderNumber))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.InvoiceID == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no invoice")
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, "id = ?", *order.InvoiceID).Error; err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	data, err := s.bucket.Download(ctx, invoice.ObjectPath)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice file missing from storage")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download invoice")
	}
	return &invoice, data, nil
}

// UploadProductImage stores a catalog image and returns its object path.
func (s *service) UploadProductImage(ctx context.Context, productID uuid.UUID, contentType string, data []byte) (string, error) {
	if productID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "image data is empty")
	}
	objectPath := fmt.Sprintf("products/%s/%d", productID, s.now().UnixMilli())
	if _, err := s.bucket.Upload(ctx, objectPath, contentType, data); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload product image")
	}
	return objectPath, nil
}

// UploadLogo replaces the shop logo at its fixed key.
func (s *service) UploadLogo(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "logo data is empty")
	}
	if _, err := s.bucket.Upload(ctx, LogoObjectKey, "image/png", data); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload logo")
	}
	return LogoObjectKey, nil
}

// invoiceNumber derives the invoice number from the order number so the two
// stay traceable: ORD-123 -> FAC-123.
func invoiceNumber(orderNumber string) string {
	return "FAC-" + strings.TrimPrefix(orderNumber, "ORD-")
}

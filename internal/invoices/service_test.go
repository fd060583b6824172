package invoices

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/storage/gcs"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubBucket struct {
	objects   map[string][]byte
	uploadErr error
}

func newStubBucket() *stubBucket {
	return &stubBucket{objects: map[string][]byte{}}
}

func (b *stubBucket) Upload(_ context.Context, objectName, contentType string, data []byte) (*gcs.ObjectInfo, error) {
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	b.objects[objectName] = data
	return &gcs.ObjectInfo{Name: objectName, ContentType: contentType}, nil
}

func (b *stubBucket) Download(_ context.Context, objectName string) ([]byte, error) {
	data, ok := b.objects[objectName]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return data, nil
}

type fixture struct {
	svc    Service
	bucket *stubBucket
	db     *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.OrderStatusEvent{}, &models.Invoice{}))

	bucket := newStubBucket()
	svc, err := NewService(db, orders.NewRepository(db), &testTxRunner{db: db}, bucket, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, bucket: bucket, db: db}
}

func seedOrder(t *testing.T, db *gorm.DB, number string) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		Email:       "client@chantier.fr",
		Status:      enums.OrderStatusCompleted,
		TotalCents:  3228,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestUploadStoresPDFAndLinksOrder(t *testing.T) {
	f := newFixture(t)
	seedOrder(t, f.db, "ORD-1756400000000")

	pdf := []byte("%PDF-1.7 facture")
	invoice, err := f.svc.Upload(context.Background(), "ORD-1756400000000", pdf)
	require.NoError(t, err)

	assert.Equal(t, "FAC-1756400000000", invoice.Number)
	assert.Equal(t, "invoices/FAC-1756400000000.pdf", invoice.ObjectPath)
	assert.Equal(t, int64(len(pdf)), invoice.SizeBytes)
	assert.Equal(t, pdf, f.bucket.objects[invoice.ObjectPath])

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "order_number = ?", "ORD-1756400000000").Error)
	require.NotNil(t, reloaded.InvoiceID)
	assert.Equal(t, invoice.ID, *reloaded.InvoiceID)
}

func TestUploadRejectsSecondInvoice(t *testing.T) {
	f := newFixture(t)
	seedOrder(t, f.db, "ORD-1")

	_, err := f.svc.Upload(context.Background(), "ORD-1", []byte("%PDF-1.7"))
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), "ORD-1", []byte("%PDF-1.7 bis"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestUploadUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), "ORD-absent", []byte("%PDF-1.7"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestUploadBucketFailureLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	seedOrder(t, f.db, "ORD-2")
	f.bucket.uploadErr = errors.New("bucket unreachable")

	_, err := f.svc.Upload(context.Background(), "ORD-2", []byte("%PDF-1.7"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "order_number = ?", "ORD-2").Error)
	assert.Nil(t, reloaded.InvoiceID)
}

func TestDownloadRoundTrip(t *testing.T) {
	f := newFixture(t)
	seedOrder(t, f.db, "ORD-3")

	pdf := []byte("%PDF-1.7 contenu")
	_, err := f.svc.Upload(context.Background(), "ORD-3", pdf)
	require.NoError(t, err)

	invoice, data, err := f.svc.Download(context.Background(), "ORD-3")
	require.NoError(t, err)
	assert.Equal(t, "FAC-3", invoice.Number)
	assert.Equal(t, pdf, data)
}

func TestDownloadWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	seedOrder(t, f.db, "ORD-4")

	_, _, err := f.svc.Download(context.Background(), "ORD-4")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestUploadProductImage(t *testing.T) {
	f := newFixture(t)

	path, err := f.svc.UploadProductImage(context.Background(), uuid.New(), "image/jpeg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Contains(t, path, "products/")
	assert.NotEmpty(t, f.bucket.objects[path])

	_, err = f.svc.UploadProductImage(context.Background(), uuid.Nil, "image/jpeg", []byte{0xff})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestUploadLogoUsesFixedKey(t *testing.T) {
	f := newFixture(t)

	key, err := f.svc.UploadLogo(context.Background(), []byte{0x89, 0x50})
	require.NoError(t, err)
	assert.Equal(t, LogoObjectKey, key)
	assert.NotEmpty(t, f.bucket.objects[LogoObjectKey])
}

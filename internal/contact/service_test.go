package contact

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (e *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	e.events = append(e.events, event)
	return nil
}

type stubDoer struct {
	status   int
	err      error
	requests int
}

func (d *stubDoer) Do(_ *http.Request) (*http.Response, error) {
	d.requests++
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

type fixture struct {
	svc     *service
	emitter *stubEmitter
	doer    *stubDoer
	db      *gorm.DB
}

func newFixture(t *testing.T, relayURL string) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ContactMessage{}))

	emitter := &stubEmitter{}
	svc, err := NewService(db, &testTxRunner{db: db}, emitter, config.ContactConfig{
		RelayURL: relayURL,
		Timeout:  time.Second,
	}, nil)
	require.NoError(t, err)

	doer := &stubDoer{status: http.StatusOK}
	impl := svc.(*service)
	impl.client = doer
	return &fixture{svc: impl, emitter: emitter, doer: doer, db: db}
}

func validInput() SubmitInput {
	return SubmitInput{
		Name:    "Jean Martin",
		Email:   "jean@chantier.fr",
		Subject: "Devis",
		Message: "Bonjour, je cherche un raccord 32mm.",
	}
}

func TestSubmitPersistsRelaysAndEmits(t *testing.T) {
	f := newFixture(t, "https://mail.example.test/relay")

	row, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, row.Relayed)
	assert.Equal(t, 1, f.doer.requests)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, enums.EventContactSubmitted, f.emitter.events[0].EventType)

	var stored models.ContactMessage
	require.NoError(t, f.db.First(&stored, "id = ?", row.ID).Error)
	assert.True(t, stored.Relayed)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.svc.Submit(context.Background(), SubmitInput{Email: "jean@chantier.fr", Message: "hi"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = f.svc.Submit(context.Background(), SubmitInput{Name: "Jean", Email: "pas-un-email", Message: "hi"})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSubmitSurvivesRelayFailure(t *testing.T) {
	f := newFixture(t, "https://mail.example.test/relay")
	f.doer.status = http.StatusBadGateway

	row, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.False(t, row.Relayed)

	// The message is stored and the mail event still queued for the worker.
	require.Len(t, f.emitter.events, 1)
}

func TestSubmitTreatsTruncatedResponseAsDelivered(t *testing.T) {
	f := newFixture(t, "https://mail.example.test/relay")
	f.doer.err = io.ErrUnexpectedEOF

	row, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, row.Relayed)
}

func TestSubmitWithoutRelayEndpoint(t *testing.T) {
	f := newFixture(t, "")

	row, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.False(t, row.Relayed)
	assert.Zero(t, f.doer.requests)
}

func TestProbablyDelivered(t *testing.T) {
	assert.True(t, probablyDelivered(io.ErrUnexpectedEOF))
	assert.True(t, probablyDelivered(io.EOF))
	assert.False(t, probablyDelivered(context.DeadlineExceeded))
	assert.False(t, probablyDelivered(nil))
}

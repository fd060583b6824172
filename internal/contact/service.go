package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/outbox"
	"github.com/plombea/plombea-backend/pkg/outbox/payloads"
)

const maxMessageLength = 4000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SubmitInput is the contact form payload.
type SubmitInput struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Service persists contact messages and relays them to the mail endpoint.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.ContactMessage, error)
}

type service struct {
	db     *gorm.DB
	tx     txRunner
	events eventEmitter
	client httpDoer
	cfg    config.ContactConfig
	logg   *logger.Logger
}

// NewService builds the contact service backed by the provided stack.
func NewService(db *gorm.DB, tx txRunner, events eventEmitter, cfg config.ContactConfig, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		db:     db,
		tx:     tx,
		events: events,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		logg:   logg,
	}, nil
}

// Submit stores the message, queues the mail event, and fires the relay. The
// relay is best effort: its failure never fails the submission.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.ContactMessage, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	message := strings.TrimSpace(input.Message)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}
	if len(message) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is too long")
	}

	row := &models.ContactMessage{
		ID:      uuid.New(),
		Name:    name,
		Email:   email,
		Subject: strings.TrimSpace(input.Subject),
		Message: message,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := tx.Create(row).Error; txErr != nil {
			return txErr
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContactSubmitted,
			AggregateType: enums.AggregateContact,
			AggregateID:   row.ID,
			Version:       1,
			Data: payloads.ContactSubmittedEvent{
				MessageID: row.ID,
				Name:      row.Name,
				Email:     row.Email,
				Subject:   row.Subject,
				Message:   row.Message,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store contact message")
	}

	if s.relay(ctx, row) {
		row.Relayed = true
		if err := s.db.WithContext(ctx).Model(row).Update("relayed", true).Error; err != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to flag contact message as relayed", err)
		}
	}
	return row, nil
}

// relay posts the message to the configured endpoint and reports whether it
// probably got through. Transport errors that occur after the body was sent
// (truncated response reads, closed connections) count as delivered: the
// upstream accepts fire-and-forget posts and regularly drops the response.
func (s *service) relay(ctx context.Context, row *models.ContactMessage) bool {
	endpoint := strings.TrimSpace(s.cfg.RelayURL)
	if endpoint == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{
		"name":    row.Name,
		"email":   row.Email,
		"subject": row.Subject,
		"message": row.Message,
	})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if probablyDelivered(err) {
			if s.logg != nil {
				s.logg.Warn(ctx, "contact relay dropped the response after accepting the body")
			}
			return true
		}
		if s.logg != nil {
			s.logg.Error(ctx, "contact relay failed", err)
		}
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// probablyDelivered classifies transport errors that the relay endpoint is
// known to produce after it has already consumed the request body.
func probablyDelivered(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/outbox"
	"github.com/plombea/plombea-backend/pkg/outbox/payloads"
	"github.com/plombea/plombea-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Page is one page of orders.
type Page struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// ListParams carries pagination and the optional admin status filter.
type ListParams struct {
	Status string
	Cursor string
	Limit  int
}

// StatusUpdateInput is the admin status patch payload. Conditional fields are
// applied when present: carrier/tracking on shipped or completed, the admin
// comment on canceled, the invoice reference on completed.
type StatusUpdateInput struct {
	Status         enums.OrderStatus
	Carrier        *string
	TrackingNumber *string
	AdminComment   *string
	InvoiceID      *uuid.UUID
}

// Service exposes order reads for customers and lifecycle writes for admins.
type Service interface {
	ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*Page, error)
	GetMine(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error)
	ListAll(ctx context.Context, params ListParams) (*Page, error)
	Get(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateStatus(ctx context.Context, actorID uuid.UUID, orderNumber string, input StatusUpdateInput) (*models.Order, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	events eventEmitter
	logg   *logger.Logger
}

// NewService builds the orders service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{repo: repo, tx: tx, events: events, logg: logg}, nil
}

// NewOrderNumber builds a time-based public order number.
func NewOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%d", at.UnixMilli())
}

// ListMine returns the caller's orders.
func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*Page, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildPage(rows, limit), nil
}

// GetMine returns one order, enforcing ownership. A foreign order number is
// reported as not found rather than forbidden.
func (s *service) GetMine(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	order, err := s.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// ListAll returns orders for the back office, optionally filtered by status.
func (s *service) ListAll(ctx context.Context, params ListParams) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	var status *enums.OrderStatus
	if raw := strings.TrimSpace(params.Status); raw != "" {
		parsed, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		status = &parsed
	}

	rows, err := s.repo.ListAll(ctx, status, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildPage(rows, limit), nil
}

// Get loads one order by number.
func (s *service) Get(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// UpdateStatus moves an order to the requested status. Any target status is
// accepted; the transition is recorded in the audit trail and a domain event
// is queued in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, actorID uuid.UUID, orderNumber string, input StatusUpdateInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	order, err := s.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = input.Status

	switch input.Status {
	case enums.OrderStatusShipped, enums.OrderStatusCompleted:
		if input.Carrier != nil {
			order.Carrier = input.Carrier
		}
		if input.TrackingNumber != nil {
			order.TrackingNumber = input.TrackingNumber
		}
		if input.Status == enums.OrderStatusCompleted && input.InvoiceID != nil {
			order.InvoiceID = input.InvoiceID
		}
	case enums.OrderStatusCanceled:
		if input.AdminComment != nil {
			order.AdminComment = input.AdminComment
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if txErr := txRepo.Update(ctx, order); txErr != nil {
			return txErr
		}

		event := models.OrderStatusEvent{
			ID:         uuid.New(),
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   input.Status,
			ActorID:    &actorID,
			Comment:    input.AdminComment,
		}
		if txErr := txRepo.AppendStatusEvent(ctx, &event); txErr != nil {
			return txErr
		}
		order.StatusEvents = append(order.StatusEvents, event)

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: enums.UserRoleAdmin.String()},
			Version:       1,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				FromStatus:     from.String(),
				ToStatus:       input.Status.String(),
				Carrier:        order.Carrier,
				TrackingNumber: order.TrackingNumber,
				Comment:        input.AdminComment,
				ChangedAt:      time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_number": order.OrderNumber,
			"from_status":  from.String(),
			"to_status":    input.Status.String(),
		})
		s.logg.Info(logCtx, "order status updated")
	}
	return order, nil
}

func buildPage(rows []models.Order, limit int) *Page {
	page := &Page{Orders: rows}
	if len(rows) > limit {
		page.Orders = rows[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page
}

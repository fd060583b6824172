package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/internal/cart"
	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/internal/shipping"
	"github.com/plombea/plombea-backend/internal/vat"
	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/outbox"
	"github.com/plombea/plombea-backend/pkg/outbox/payloads"
	stripeclient "github.com/plombea/plombea-backend/pkg/stripe"
	"github.com/plombea/plombea-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartViewer interface {
	Get(ctx context.Context, owner cart.Owner) (*cart.View, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Totals is the authoritative priced outcome for a session.
type Totals struct {
	SubtotalCents int64             `json:"subtotalCents"`
	ShippingCents int64             `json:"shippingCents"`
	TaxCents      int64             `json:"taxCents"`
	TotalCents    int64             `json:"totalCents"`
	TaxRule       enums.TaxRule     `json:"taxRule"`
	TaxRate       string            `json:"taxRate"`
	TaxCountry    string            `json:"taxCountry"`
	Shipping      shipping.Estimate `json:"shipping"`
	WeightGrams   int               `json:"weightGrams"`
	ItemCount     int               `json:"itemCount"`

	rate decimal.Decimal
}

// BillingInput is the first wizard step payload.
type BillingInput struct {
	Email         string
	BuyerType     enums.BuyerType
	CompanyName   string
	VATNumber     string
	Address       types.Address
	ShipToBilling bool
}

// ShippingInput is the second wizard step payload. The address is ignored when
// the session ships to the billing address.
type ShippingInput struct {
	Address types.Address
}

// PaymentIntentResult carries what the client needs to confirm the charge.
type PaymentIntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	OrderNumber     string `json:"orderNumber"`
	Totals          Totals `json:"totals"`
}

// ConfirmResult reports the persisted order after a confirmed payment.
type ConfirmResult struct {
	Order *models.Order `json:"order"`
}

// Service drives the three-step checkout wizard.
type Service interface {
	Start(ctx context.Context, owner cart.Owner) (*models.CheckoutSession, error)
	Get(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*models.CheckoutSession, error)
	SubmitBilling(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, input BillingInput) (*models.CheckoutSession, error)
	SubmitShipping(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, input ShippingInput) (*models.CheckoutSession, *Totals, error)
	Back(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, step enums.CheckoutStep) (*models.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*PaymentIntentResult, error)
	Confirm(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*ConfirmResult, error)
}

type service struct {
	repo    *Repository
	orders  *orders.Repository
	carts   cartViewer
	tx      txRunner
	intents stripeclient.PaymentIntentClient
	events  eventEmitter
	cfg     config.CheckoutConfig
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the checkout service backed by the provided stack.
func NewService(
	repo *Repository,
	orderRepo *orders.Repository,
	carts cartViewer,
	tx txRunner,
	intents stripeclient.PaymentIntentClient,
	events eventEmitter,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment intent client required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = string(enums.CurrencyEUR)
	}
	return &service{
		repo:    repo,
		orders:  orderRepo,
		carts:   carts,
		tx:      tx,
		intents: intents,
		events:  events,
		cfg:     cfg,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Start opens a wizard session for the owner's cart, reusing an open one when
// it has not expired.
func (s *service) Start(ctx context.Context, owner cart.Owner) (*models.CheckoutSession, error) {
	view, err := s.purchasableCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOpenByCart(ctx, view.CartID)
	if err == nil && !existing.Expired(s.now()) {
		return existing, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}

	session := &models.CheckoutSession{
		ID:            uuid.New(),
		CartID:        view.CartID,
		UserID:        owner.UserID,
		Step:          enums.CheckoutStepBilling,
		BuyerType:     enums.BuyerTypeIndividual,
		ShipToBilling: true,
		ExpiresAt:     s.now().Add(s.cfg.SessionTTL),
	}
	if owner.UserID == nil {
		key := strings.TrimSpace(owner.GuestKey)
		session.GuestKey = &key
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return session, nil
}

// Get loads a session after checking ownership and expiry.
func (s *service) Get(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	return s.loadSession(ctx, owner, sessionID)
}

// SubmitBilling validates the billing step and advances to shipping.
func (s *service) SubmitBilling(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, input BillingInput) (*models.CheckoutSession, error) {
	session, err := s.loadSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if !input.BuyerType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid buyer type")
	}
	address := input.Address
	if input.BuyerType == enums.BuyerTypeCompany {
		company := strings.TrimSpace(input.CompanyName)
		if company == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "company name is required for business buyers")
		}
		address.Company = &company
	}
	if !address.Complete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing address is incomplete")
	}

	session.Email = email
	session.BuyerType = input.BuyerType
	session.BillingAddress = &address
	session.ShipToBilling = input.ShipToBilling
	if number := strings.TrimSpace(input.VATNumber); number != "" {
		session.VATNumber = &number
	} else {
		session.VATNumber = nil
	}
	session.Step = enums.CheckoutStepShipping

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return session, nil
}

// SubmitShipping validates the shipping step and advances to payment, running
// the authoritative VAT and shipping recomputation for the confirmed
// destination.
func (s *service) SubmitShipping(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, input ShippingInput) (*models.CheckoutSession, *Totals, error) {
	session, err := s.loadSession(ctx, owner, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Step.Position() < enums.CheckoutStepShipping.Position() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "billing step must be completed first")
	}

	if session.ShipToBilling {
		session.ShippingAddress = session.BillingAddress
	} else {
		if !input.Address.Complete() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete")
		}
		address := input.Address
		session.ShippingAddress = &address
	}

	view, err := s.purchasableCart(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	totals := s.computeTotals(session, view)
	session.ShippingMethod = &totals.Shipping.Method
	session.Step = enums.CheckoutStepPayment

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return session, &totals, nil
}

// Back moves the wizard to an earlier step. Forward jumps are rejected.
func (s *service) Back(ctx context.Context, owner cart.Owner, sessionID uuid.UUID, step enums.CheckoutStep) (*models.CheckoutSession, error) {
	session, err := s.loadSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if !step.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout step")
	}
	if step.Position() > session.Step.Position() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot skip ahead in the checkout")
	}
	session.Step = step
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return session, nil
}

// CreatePaymentIntent recomputes the totals one last time and opens a Stripe
// payment intent for them, stamping the order number into the intent metadata.
func (s *service) CreatePaymentIntent(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*PaymentIntentResult, error) {
	session, err := s.loadSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != enums.CheckoutStepPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping step must be completed first")
	}
	if session.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping address missing from session")
	}

	view, err := s.purchasableCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	totals := s.computeTotals(session, view)
	orderNumber := orders.NewOrderNumber(s.now())

	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(totals.TotalCents),
		Currency: stripeapi.String(strings.ToLower(s.cfg.DefaultCurrency)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
		ReceiptEmail: stripeapi.String(session.Email),
	}
	params.AddMetadata("order_number", orderNumber)
	params.AddMetadata("checkout_session_id", session.ID.String())
	params.AddMetadata("tax_rule", totals.TaxRule.String())
	params.AddMetadata("tax_rate", totals.TaxRate)
	params.AddMetadata("tax_amount_cents", fmt.Sprintf("%d", totals.TaxCents))
	params.AddMetadata("tax_country", totals.TaxCountry)
	params.AddMetadata("item_count", fmt.Sprintf("%d", totals.ItemCount))
	params.AddMetadata("total_weight_grams", fmt.Sprintf("%d", totals.WeightGrams))

	intent, err := s.intents.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	session.PaymentIntentID = &intent.ID
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}

	return &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		OrderNumber:     orderNumber,
		Totals:          totals,
	}, nil
}

// Confirm checks the payment intent with Stripe and persists the order with
// frozen line snapshots, clearing the cart. A persistence failure after a
// successful charge is surfaced as a partial failure carrying the payment
// reference; nothing is compensated automatically.
func (s *service) Confirm(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*ConfirmResult, error) {
	session, err := s.loadSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if session.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment intent on session")
	}

	intent, err := s.intents.Get(ctx, *session.PaymentIntentID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent.Status != stripeapi.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not succeeded").
			WithDetails(map[string]string{"paymentStatus": string(intent.Status)})
	}

	view, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	totals := s.computeTotals(session, view)

	orderNumber := intent.Metadata["order_number"]
	if orderNumber == "" {
		orderNumber = orders.NewOrderNumber(s.now())
	}

	order := s.buildOrder(session, view, totals, orderNumber, intent.ID)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if txErr := s.orders.WithTx(tx).Create(ctx, order); txErr != nil {
			return txErr
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(session),
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Email:       order.Email,
				TotalCents:  order.TotalCents,
				Currency:    order.Currency.String(),
				TaxRule:     order.TaxRule.String(),
				CreatedAt:   s.now().UTC(),
			},
		})
	})
	if err != nil {
		// The charge went through but the order did not land. Report the
		// payment reference so support can reconcile by hand.
		return nil, pkgerrors.Wrap(pkgerrors.CodePartial, err, "payment captured but order persistence failed").
			WithDetails(map[string]string{
				"paymentIntentId": intent.ID,
				"orderNumber":     orderNumber,
			})
	}

	completedAt := s.now()
	session.CompletedAt = &completedAt
	if err := s.repo.Update(ctx, session); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to close checkout session", err)
	}
	if err := s.carts.Clear(ctx, owner); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to clear cart after checkout", err)
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderNumber(ctx, order.OrderNumber), "order created")
	}
	return &ConfirmResult{Order: order}, nil
}

func (s *service) loadSession(ctx context.Context, owner cart.Owner, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if !ownerMatches(session, owner) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if session.CompletedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already completed")
	}
	if session.Expired(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired")
	}
	return session, nil
}

func ownerMatches(session *models.CheckoutSession, owner cart.Owner) bool {
	if owner.UserID != nil && *owner.UserID != uuid.Nil {
		return session.UserID != nil && *session.UserID == *owner.UserID
	}
	key := strings.TrimSpace(owner.GuestKey)
	return key != "" && session.GuestKey != nil && *session.GuestKey == key
}

// purchasableCart loads the priced cart and rejects empty carts or carts with
// lines the catalog can no longer serve.
func (s *service) purchasableCart(ctx context.Context, owner cart.Owner) (*cart.View, error) {
	view, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(view.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range view.Lines {
		if line.Unavailable {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart contains unavailable items").
				WithDetails(map[string]string{"productId": line.ProductID.String()})
		}
	}
	return view, nil
}

// computeTotals runs the VAT engine and shipping estimator against the
// confirmed destination. The shipping country drives both.
func (s *service) computeTotals(session *models.CheckoutSession, view *cart.View) Totals {
	country := ""
	if session.ShippingAddress != nil {
		country = session.ShippingAddress.CountryCode()
	} else if session.BillingAddress != nil {
		country = session.BillingAddress.CountryCode()
	}

	vatNumber := ""
	if session.VATNumber != nil {
		vatNumber = *session.VATNumber
	}
	det := vat.Determine(vat.Input{
		Country:   country,
		BuyerType: session.BuyerType,
		VATNumber: vatNumber,
	})

	items := make([]shipping.Item, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, shipping.Item{WeightGrams: line.WeightGrams, Quantity: line.Quantity})
	}
	estimate := shipping.EstimateFor(country, items)

	// VAT applies to the goods subtotal only; shipping is added untaxed.
	taxCents := vat.TaxCents(view.SubtotalCents, det.Rate)

	return Totals{
		SubtotalCents: view.SubtotalCents,
		ShippingCents: estimate.PriceCents,
		TaxCents:      taxCents,
		TotalCents:    view.SubtotalCents + estimate.PriceCents + taxCents,
		TaxRule:       det.Rule,
		TaxRate:       det.Rate.String(),
		TaxCountry:    det.Country,
		Shipping:      estimate,
		WeightGrams:   shipping.TotalWeightGrams(items),
		ItemCount:     view.ItemCount,
		rate:          det.Rate,
	}
}

func (s *service) buildOrder(session *models.CheckoutSession, view *cart.View, totals Totals, orderNumber, intentID string) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     orderNumber,
		UserID:          session.UserID,
		Email:           session.Email,
		Status:          enums.OrderStatusPaid,
		Currency:        enums.Currency(strings.ToUpper(s.cfg.DefaultCurrency)),
		SubtotalCents:   totals.SubtotalCents,
		ShippingCents:   totals.ShippingCents,
		TaxCents:        totals.TaxCents,
		TotalCents:      totals.TotalCents,
		TaxRule:         totals.TaxRule,
		TaxRate:         totals.rate,
		VATNumber:       session.VATNumber,
		BuyerType:       session.BuyerType,
		ShippingMethod:  totals.Shipping.Method,
		ShippingMinDays: totals.Shipping.MinDays,
		ShippingMaxDays: totals.Shipping.MaxDays,
		PaymentIntentID: &intentID,
	}
	if session.BillingAddress != nil {
		order.BillingAddress = *session.BillingAddress
	}
	if session.ShippingAddress != nil {
		order.ShippingAddress = *session.ShippingAddress
	}
	for _, line := range view.Lines {
		item := models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitCents:   line.UnitCents,
			WeightGrams: line.WeightGrams,
		}
		if line.SKU != "" {
			sku := line.SKU
			item.SKU = &sku
		}
		order.Items = append(order.Items, item)
	}
	return order
}

func actorFor(session *models.CheckoutSession) *outbox.ActorRef {
	if session.UserID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *session.UserID, Role: enums.UserRoleUser.String()}
}

package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
)

const maxLineQuantity = 999

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CartAddGuardKey(cartKey, productID, variantID string) string
	CartMergeMarkerKey(userID, guestKey string) string
}

// Owner identifies who a cart belongs to: an authenticated user or a guest key.
type Owner struct {
	UserID   *uuid.UUID
	GuestKey string
}

func (o Owner) valid() bool {
	return (o.UserID != nil && *o.UserID != uuid.Nil) || strings.TrimSpace(o.GuestKey) != ""
}

func (o Owner) cacheKey() string {
	if o.UserID != nil && *o.UserID != uuid.Nil {
		return "user:" + o.UserID.String()
	}
	return "guest:" + strings.TrimSpace(o.GuestKey)
}

// Line is one priced cart line with its product snapshot.
type Line struct {
	ItemID      uuid.UUID  `json:"itemId"`
	ProductID   uuid.UUID  `json:"productId"`
	VariantID   *uuid.UUID `json:"variantId,omitempty"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	SKU         string     `json:"sku,omitempty"`
	Image       string     `json:"image,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitCents   int64      `json:"unitCents"`
	LineCents   int64      `json:"lineCents"`
	WeightGrams int        `json:"weightGrams"`
	Unavailable bool       `json:"unavailable,omitempty"`
}

// View is a priced snapshot of a cart.
type View struct {
	CartID        uuid.UUID `json:"cartId"`
	Lines         []Line    `json:"lines"`
	SubtotalCents int64     `json:"subtotalCents"`
	ItemCount     int       `json:"itemCount"`
}

// AddInput adds or increments one line.
type AddInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service exposes cart operations for guests and authenticated users.
type Service interface {
	Get(ctx context.Context, owner Owner) (*View, error)
	AddItem(ctx context.Context, owner Owner, input AddInput) (*View, error)
	UpdateItem(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*View, error)
	Clear(ctx context.Context, owner Owner) error
	MergeGuestCart(ctx context.Context, userID uuid.UUID, guestKey string) (*View, error)
}

type service struct {
	repo     *Repository
	tx       txRunner
	products productLoader
	guard    guardStore
	cfg      config.CheckoutConfig
	logg     *logger.Logger
}

// NewService builds the cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, products productLoader, guard guardStore, cfg config.CheckoutConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if guard == nil {
		return nil, fmt.Errorf("guard store required")
	}
	if cfg.AddGuardTTL <= 0 {
		cfg.AddGuardTTL = 10 * time.Second
	}
	if cfg.MergeMarkerTTL <= 0 {
		cfg.MergeMarkerTTL = 24 * time.Hour
	}
	return &service{repo: repo, tx: tx, products: products, guard: guard, cfg: cfg, logg: logg}, nil
}

// Get returns the priced cart for the owner, empty when none exists yet.
func (s *service) Get(ctx context.Context, owner Owner) (*View, error) {
	if !owner.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	cart, err := s.findCart(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &View{Lines: []Line{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.priceCart(ctx, cart)
}

// AddItem adds a line, or increments the quantity when the (product, variant)
// pair is already in the cart. A short lived guard absorbs double submissions
// of the same add.
func (s *service) AddItem(ctx context.Context, owner Owner, input AddInput) (*View, error) {
	if !owner.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	quantity := clampQuantity(input.Quantity)

	variantKey := ""
	if input.VariantID != nil {
		variantKey = input.VariantID.String()
	}
	guardKey := s.guard.CartAddGuardKey(owner.cacheKey(), input.ProductID.String(), variantKey)
	acquired, err := s.guard.SetNX(ctx, guardKey, "1", s.cfg.AddGuardTTL)
	if err != nil {
		// A guard outage must not block purchases.
		if s.logg != nil {
			s.logg.Warn(ctx, "cart add guard unavailable")
		}
	} else if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "add already in progress for this item")
	}
	defer func() {
		_ = s.guard.Del(context.WithoutCancel(ctx), guardKey)
	}()

	product, err := s.products.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	var variant *models.ProductVariant
	if input.VariantID != nil {
		if variant, err = s.products.GetVariant(ctx, input.ProductID, *input.VariantID); err != nil {
			return nil, err
		}
	}

	var cart *models.Cart
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, txErr := s.findOrCreateCart(ctx, txRepo, owner)
		if txErr != nil {
			return txErr
		}

		var line *models.CartItem
		for i := range current.Items {
			if current.Items[i].SameLine(input.ProductID, input.VariantID) {
				line = &current.Items[i]
				break
			}
		}
		desired := quantity
		if line != nil {
			desired = clampQuantity(line.Quantity + quantity)
		}
		if txErr := checkStock(product, variant, desired); txErr != nil {
			return txErr
		}
		if line != nil {
			line.Quantity = desired
			if txErr := txRepo.UpsertItem(ctx, line); txErr != nil {
				return txErr
			}
		} else {
			item := models.CartItem{
				ID:        uuid.New(),
				CartID:    current.ID,
				ProductID: input.ProductID,
				VariantID: input.VariantID,
				Quantity:  desired,
			}
			if txErr := txRepo.UpsertItem(ctx, &item); txErr != nil {
				return txErr
			}
			current.Items = append(current.Items, item)
		}
		cart = current
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.priceCart(ctx, cart)
}

// UpdateItem sets a line quantity.
func (s *service) UpdateItem(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*View, error) {
	if !owner.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	quantity = clampQuantity(quantity)

	var cart *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, txErr := s.findCartWith(ctx, txRepo, owner)
		if txErr != nil {
			return txErr
		}
		for i := range current.Items {
			if current.Items[i].ID == itemID {
				product, txErr := s.products.GetProduct(ctx, current.Items[i].ProductID)
				if txErr != nil {
					return txErr
				}
				var variant *models.ProductVariant
				if current.Items[i].VariantID != nil {
					if variant, txErr = s.products.GetVariant(ctx, product.ID, *current.Items[i].VariantID); txErr != nil {
						return txErr
					}
				}
				if txErr := checkStock(product, variant, quantity); txErr != nil {
					return txErr
				}
				current.Items[i].Quantity = quantity
				if txErr := txRepo.UpsertItem(ctx, &current.Items[i]); txErr != nil {
					return txErr
				}
				cart = current
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.priceCart(ctx, cart)
}

// RemoveItem deletes one line from the cart.
func (s *service) RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*View, error) {
	if !owner.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}

	var cart *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, txErr := s.findCartWith(ctx, txRepo, owner)
		if txErr != nil {
			return txErr
		}
		found := false
		kept := current.Items[:0]
		for _, item := range current.Items {
			if item.ID == itemID {
				found = true
				continue
			}
			kept = append(kept, item)
		}
		if !found {
			return gorm.ErrRecordNotFound
		}
		if txErr := txRepo.DeleteItem(ctx, current.ID, itemID); txErr != nil {
			return txErr
		}
		current.Items = kept
		cart = current
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.priceCart(ctx, cart)
}

// Clear removes every line. Clearing an absent cart is a no-op.
func (s *service) Clear(ctx context.Context, owner Owner) error {
	if !owner.valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	cart, err := s.findCart(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := s.repo.ClearItems(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// MergeGuestCart folds a guest cart into the user cart after login. The guest
// quantity wins when both carts hold the same (product, variant) line. A
// marker makes the merge run once per (user, guest key) pair even when the
// client replays the login flow.
func (s *service) MergeGuestCart(ctx context.Context, userID uuid.UUID, guestKey string) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	guestKey = strings.TrimSpace(guestKey)
	if guestKey == "" {
		return s.Get(ctx, Owner{UserID: &userID})
	}

	markerKey := s.guard.CartMergeMarkerKey(userID.String(), guestKey)
	fresh, err := s.guard.SetNX(ctx, markerKey, "1", s.cfg.MergeMarkerTTL)
	markerSet := err == nil
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "cart merge marker unavailable")
		}
	} else if !fresh {
		return s.Get(ctx, Owner{UserID: &userID})
	}

	// A failed merge must not leave the once-only marker behind, or every
	// retry within the marker TTL would skip the merge and the guest lines
	// would be lost.
	releaseMarker := func() {
		if !markerSet {
			return
		}
		if delErr := s.guard.Del(ctx, markerKey); delErr != nil && s.logg != nil {
			s.logg.Warn(ctx, "cart merge marker not released")
		}
	}

	guestCart, err := s.repo.FindByGuestKey(ctx, guestKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.Get(ctx, Owner{UserID: &userID})
		}
		releaseMarker()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}

	var merged *models.Cart
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		userCart, txErr := s.findOrCreateCart(ctx, txRepo, Owner{UserID: &userID})
		if txErr != nil {
			return txErr
		}

		for _, guestItem := range guestCart.Items {
			var target *models.CartItem
			for i := range userCart.Items {
				if userCart.Items[i].SameLine(guestItem.ProductID, guestItem.VariantID) {
					target = &userCart.Items[i]
					break
				}
			}
			if target != nil {
				// Last write wins: the guest quantity replaces the stored one.
				target.Quantity = clampQuantity(guestItem.Quantity)
				if txErr := txRepo.UpsertItem(ctx, target); txErr != nil {
					return txErr
				}
				continue
			}
			item := models.CartItem{
				ID:        uuid.New(),
				CartID:    userCart.ID,
				ProductID: guestItem.ProductID,
				VariantID: guestItem.VariantID,
				Quantity:  clampQuantity(guestItem.Quantity),
			}
			if txErr := txRepo.UpsertItem(ctx, &item); txErr != nil {
				return txErr
			}
			userCart.Items = append(userCart.Items, item)
		}

		if txErr := txRepo.DeleteCart(ctx, guestCart.ID); txErr != nil {
			return txErr
		}
		merged = userCart
		return nil
	})
	if err != nil {
		releaseMarker()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest cart")
	}
	return s.priceCart(ctx, merged)
}

func (s *service) findCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	return s.findCartWith(ctx, s.repo, owner)
}

func (s *service) findCartWith(ctx context.Context, repo *Repository, owner Owner) (*models.Cart, error) {
	if owner.UserID != nil && *owner.UserID != uuid.Nil {
		return repo.FindByUser(ctx, *owner.UserID)
	}
	return repo.FindByGuestKey(ctx, strings.TrimSpace(owner.GuestKey))
}

func (s *service) findOrCreateCart(ctx context.Context, repo *Repository, owner Owner) (*models.Cart, error) {
	cart, err := s.findCartWith(ctx, repo, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &models.Cart{ID: uuid.New()}
	if owner.UserID != nil && *owner.UserID != uuid.Nil {
		fresh.UserID = owner.UserID
	} else {
		key := strings.TrimSpace(owner.GuestKey)
		fresh.GuestKey = &key
	}
	if err := repo.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// priceCart resolves every line against the live catalog. Lines whose product
// vanished or went inactive are kept but flagged, priced at zero.
func (s *service) priceCart(ctx context.Context, cart *models.Cart) (*View, error) {
	view := &View{CartID: cart.ID, Lines: make([]Line, 0, len(cart.Items))}
	for _, item := range cart.Items {
		line := Line{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				line.Unavailable = true
				view.Lines = append(view.Lines, line)
				continue
			}
			return nil, err
		}

		line.Slug = product.Slug
		line.Name = product.Name
		line.SKU = product.SKU
		line.Image = product.MainImage()
		line.UnitCents = product.EffectivePriceCents()
		line.WeightGrams = product.EffectiveWeightGrams()
		line.Unavailable = !product.Active

		if item.VariantID != nil {
			variant, err := s.products.GetVariant(ctx, item.ProductID, *item.VariantID)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					line.Unavailable = true
					view.Lines = append(view.Lines, line)
					continue
				}
				return nil, err
			}
			line.SKU = variant.SKU
			if variant.PriceCents != nil {
				line.UnitCents = *variant.PriceCents
			}
			if variant.WeightGrams != nil && *variant.WeightGrams > 0 {
				line.WeightGrams = *variant.WeightGrams
			}
		}

		if !line.Unavailable {
			line.LineCents = line.UnitCents * int64(line.Quantity)
			view.SubtotalCents += line.LineCents
			view.ItemCount += line.Quantity
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// checkStock rejects a quantity beyond the tracked stock. Products that do not
// opt into stock management are never limited.
func checkStock(product *models.Product, variant *models.ProductVariant, quantity int) error {
	if product == nil || !product.ManageStock {
		return nil
	}
	available := product.Stock
	if variant != nil {
		available = variant.Stock
	}
	if quantity > available {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
			WithDetails(map[string]any{"available": available})
	}
	return nil
}

func clampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	if quantity > maxLineQuantity {
		return maxLineQuantity
	}
	return quantity
}

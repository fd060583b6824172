package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/api/responses"
	"github.com/plombea/plombea-backend/api/validators"
	"github.com/plombea/plombea-backend/internal/catalog"
	"github.com/plombea/plombea-backend/internal/invoices"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
)

const maxImageUploadBytes = 5 << 20

type productRequest struct {
	Slug           string            `json:"slug" validate:"required"`
	SKU            string            `json:"sku"`
	Name           string            `json:"name" validate:"required"`
	Description    string            `json:"description"`
	Brand          string            `json:"brand"`
	Category       string            `json:"category"`
	PriceCents     int64             `json:"price_cents" validate:"required,min=1"`
	SalePriceCents *int64            `json:"sale_price_cents,omitempty" validate:"omitempty,min=1"`
	WeightGrams    int               `json:"weight_grams" validate:"omitempty,min=0"`
	Dimensions     string            `json:"dimensions"`
	Material       string            `json:"material"`
	Images         []string          `json:"images,omitempty"`
	BulletPoints   []string          `json:"bullet_points,omitempty"`
	ReferralLinks  map[string]string `json:"referral_links,omitempty"`
	Stock          int               `json:"stock" validate:"omitempty,min=0"`
	ManageStock    bool              `json:"manage_stock"`
	Active         *bool             `json:"active,omitempty"`
}

func (r productRequest) toInput() catalog.ProductInput {
	return catalog.ProductInput{
		Slug:           strings.TrimSpace(r.Slug),
		SKU:            strings.TrimSpace(r.SKU),
		Name:           strings.TrimSpace(r.Name),
		Description:    r.Description,
		Brand:          strings.TrimSpace(r.Brand),
		Category:       strings.TrimSpace(r.Category),
		PriceCents:     r.PriceCents,
		SalePriceCents: r.SalePriceCents,
		WeightGrams:    r.WeightGrams,
		Dimensions:     strings.TrimSpace(r.Dimensions),
		Material:       strings.TrimSpace(r.Material),
		Images:         r.Images,
		Bullets:        r.BulletPoints,
		ReferralLinks:  r.ReferralLinks,
		Stock:          r.Stock,
		ManageStock:    r.ManageStock,
		Active:         r.Active,
	}
}

// AdminProductCreate handles catalog listing creation.
func AdminProductCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.CreateProduct(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// AdminProductUpdate replaces a listing's editable fields.
func AdminProductUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.UpdateProduct(r.Context(), id, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminProductDeactivate hides a listing from the storefront.
func AdminProductDeactivate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeactivateProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

// AdminProductImageUpload stores a raw image body and returns its object path.
func AdminProductImageUpload(store invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contentType := r.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "an image content type is required"))
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUploadBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload"))
			return
		}
		if len(data) > maxImageUploadBytes {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image exceeds the size limit"))
			return
		}

		path, err := store.UploadProductImage(r.Context(), id, contentType, data)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"objectPath": path})
	}
}

// AdminLogoUpload replaces the shop logo and returns its object path.
func AdminLogoUpload(store invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "an image content type is required"))
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUploadBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload"))
			return
		}
		if len(data) > maxImageUploadBytes {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image exceeds the size limit"))
			return
		}

		path, err := store.UploadLogo(r.Context(), data)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"objectPath": path})
	}
}

func productIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return id, nil
}

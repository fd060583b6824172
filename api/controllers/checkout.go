package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/api/responses"
	"github.com/plombea/plombea-backend/api/validators"
	checkoutsvc "github.com/plombea/plombea-backend/internal/checkout"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/types"
)

// CheckoutStart opens (or resumes) a checkout session for the current cart.
func CheckoutStart(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Start(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutFetch returns the owner's session with its current step.
func CheckoutFetch(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), owner, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

type billingRequest struct {
	Email         string        `json:"email" validate:"required,email"`
	BuyerType     string        `json:"buyer_type" validate:"omitempty,oneof=individual company"`
	CompanyName   string        `json:"company_name"`
	VATNumber     string        `json:"vat_number"`
	Address       types.Address `json:"address" validate:"required"`
	ShipToBilling *bool         `json:"ship_to_billing,omitempty"`
}

// CheckoutSubmitBilling records the billing step and advances the wizard.
func CheckoutSubmitBilling(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload billingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerType, err := enums.ParseBuyerType(strings.TrimSpace(payload.BuyerType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer type"))
			return
		}

		shipToBilling := true
		if payload.ShipToBilling != nil {
			shipToBilling = *payload.ShipToBilling
		}

		session, err := svc.SubmitBilling(r.Context(), owner, sessionID, checkoutsvc.BillingInput{
			Email:         payload.Email,
			BuyerType:     buyerType,
			CompanyName:   payload.CompanyName,
			VATNumber:     payload.VATNumber,
			Address:       payload.Address,
			ShipToBilling: shipToBilling,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

type shippingRequest struct {
	Address types.Address `json:"address"`
}

// CheckoutSubmitShipping records the delivery address and prices the order.
func CheckoutSubmitShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, totals, err := svc.SubmitShipping(r.Context(), owner, sessionID, checkoutsvc.ShippingInput{
			Address: payload.Address,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"session": session,
			"totals":  totals,
		})
	}
}

type backRequest struct {
	Step string `json:"step" validate:"required,oneof=billing shipping payment"`
}

// CheckoutBack rewinds the wizard to an earlier step.
func CheckoutBack(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload backRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		step, err := enums.ParseCheckoutStep(payload.Step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid step"))
			return
		}

		session, err := svc.Back(r.Context(), owner, sessionID, step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// CheckoutPaymentIntent creates the payment intent for the priced session.
func CheckoutPaymentIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePaymentIntent(r.Context(), owner, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutConfirm verifies the charge with the payment provider and persists
// the order.
func CheckoutConfirm(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID, err := checkoutSessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), owner, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func checkoutSessionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout session id")
	}
	return id, nil
}

package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/api/responses"
	"github.com/plombea/plombea-backend/api/validators"
	"github.com/plombea/plombea-backend/internal/invoices"
	"github.com/plombea/plombea-backend/internal/orders"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
)

const maxInvoiceUploadBytes = 10 << 20

// AdminOrderList returns every order, optionally filtered by status.
func AdminOrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := orderListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListAll(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminOrderDetail returns any order by number, with items and audit trail.
func AdminOrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type statusUpdateRequest struct {
	Status         string  `json:"status" validate:"required"`
	Carrier        *string `json:"carrier,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	AdminComment   *string `json:"admin_comment,omitempty"`
	InvoiceID      *string `json:"invoice_id,omitempty" validate:"omitempty,uuid"`
}

// AdminOrderUpdateStatus patches an order's lifecycle status and the fields
// that travel with it.
func AdminOrderUpdateStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		number, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		input := orders.StatusUpdateInput{
			Status:         status,
			Carrier:        payload.Carrier,
			TrackingNumber: payload.TrackingNumber,
			AdminComment:   payload.AdminComment,
		}
		if payload.InvoiceID != nil {
			invoiceID, err := uuid.Parse(*payload.InvoiceID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id"))
				return
			}
			input.InvoiceID = &invoiceID
		}

		order, err := svc.UpdateStatus(r.Context(), actorID, number, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminInvoiceUpload stores a PDF invoice for the order and links it.
func AdminInvoiceUpload(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice must be a pdf"))
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxInvoiceUploadBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload"))
			return
		}
		if len(data) > maxInvoiceUploadBytes {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice exceeds the size limit"))
			return
		}

		invoice, err := svc.Upload(r.Context(), number, data)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

// AdminInvoiceDownload streams the stored invoice PDF back.
func AdminInvoiceDownload(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, data, err := svc.Download(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", invoice.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+invoice.Number+`.pdf"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

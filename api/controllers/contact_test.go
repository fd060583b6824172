package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plombea/plombea-backend/internal/contact"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/types"
)

type stubContactService struct {
	row      *models.ContactMessage
	lastSent contact.SubmitInput
	err      error
}

func (s *stubContactService) Submit(_ context.Context, input contact.SubmitInput) (*models.ContactMessage, error) {
	s.lastSent = input
	return s.row, s.err
}

func TestContactSubmit(t *testing.T) {
	svc := &stubContactService{row: &models.ContactMessage{ID: uuid.New(), Relayed: true}}
	handler := ContactSubmit(svc, nil)

	body := []byte(`{"name":"Marc","email":"marc@chantier.fr","subject":"Devis","message":"Besoin de raccords 32mm."}`)
	req := httptest.NewRequest(http.MethodPost, "/contact", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "marc@chantier.fr", svc.lastSent.Email)
	assert.Equal(t, "Devis", svc.lastSent.Subject)

	var envelope types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, true, data["relayed"])
}

func TestContactSubmitValidatesEmail(t *testing.T) {
	handler := ContactSubmit(&stubContactService{}, nil)

	body := []byte(`{"name":"Marc","email":"not-an-email","message":"Bonjour"}`)
	req := httptest.NewRequest(http.MethodPost, "/contact", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

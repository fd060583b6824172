package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plombea/plombea-backend/api/middleware"
	"github.com/plombea/plombea-backend/api/responses"
	"github.com/plombea/plombea-backend/api/validators"
	authsvc "github.com/plombea/plombea-backend/internal/auth"
	"github.com/plombea/plombea-backend/internal/cart"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	pkgerrors "github.com/plombea/plombea-backend/pkg/errors"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/types"
)

type userResponse struct {
	ID                     string         `json:"id"`
	Email                  string         `json:"email"`
	FirstName              string         `json:"firstName"`
	LastName               string         `json:"lastName"`
	Role                   string         `json:"role"`
	BuyerType              string         `json:"buyerType"`
	CompanyName            *string        `json:"companyName,omitempty"`
	VATNumber              *string        `json:"vatNumber,omitempty"`
	Country                string         `json:"country"`
	Phone                  *string        `json:"phone,omitempty"`
	TOTPEnabled            bool           `json:"totpEnabled"`
	EmailVerified          bool           `json:"emailVerified"`
	DefaultBillingAddress  *types.Address `json:"defaultBillingAddress,omitempty"`
	DefaultShippingAddress *types.Address `json:"defaultShippingAddress,omitempty"`
	CreatedAt              time.Time      `json:"createdAt"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:                     user.ID.String(),
		Email:                  user.Email,
		FirstName:              user.FirstName,
		LastName:               user.LastName,
		Role:                   string(user.Role),
		BuyerType:              string(user.BuyerType),
		CompanyName:            user.CompanyName,
		VATNumber:              user.VATNumber,
		Country:                user.Country,
		Phone:                  user.Phone,
		TOTPEnabled:            user.TOTPEnabled,
		EmailVerified:          user.EmailVerified,
		DefaultBillingAddress:  user.DefaultBillingAddress,
		DefaultShippingAddress: user.DefaultShippingAddress,
		CreatedAt:              user.CreatedAt,
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	BuyerType   string `json:"buyer_type" validate:"omitempty,oneof=individual company"`
	CompanyName string `json:"company_name"`
	VATNumber   string `json:"vat_number"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
}

// AuthRegister creates an account and signs the new user in.
func AuthRegister(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerType, err := enums.ParseBuyerType(strings.TrimSpace(payload.BuyerType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer type"))
			return
		}

		user, tokens, err := svc.Register(r.Context(), authsvc.RegisterInput{
			Email:       payload.Email,
			Password:    payload.Password,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			BuyerType:   buyerType,
			CompanyName: payload.CompanyName,
			VATNumber:   payload.VATNumber,
			Country:     payload.Country,
			Phone:       payload.Phone,
			IP:          middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"user":   toUserResponse(user),
			"tokens": tokens,
		})
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code"`
}

// AuthLogin authenticates credentials and, when the request also carries a
// guest cart key, folds the anonymous cart into the user's cart.
func AuthLogin(svc authsvc.Service, carts cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, tokens, err := svc.Login(r.Context(), authsvc.LoginInput{
			Email:    payload.Email,
			Password: payload.Password,
			TOTPCode: payload.TOTPCode,
			IP:       middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if guestKey := middleware.GuestKeyFromContext(r.Context()); guestKey != "" && carts != nil {
			if _, mergeErr := carts.MergeGuestCart(r.Context(), user.ID, guestKey); mergeErr != nil && logg != nil {
				logg.Error(r.Context(), "guest cart merge failed on login", mergeErr)
			}
		}

		responses.WriteSuccess(w, map[string]any{
			"user":   toUserResponse(user),
			"tokens": tokens,
		})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthRefresh rotates the refresh token and mints a new access token. The
// expired access token still travels in the Authorization header.
func AuthRefresh(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(accessToken), "bearer ") {
			accessToken = strings.TrimSpace(accessToken[7:])
		}
		if accessToken == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var payload refreshRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tokens, err := svc.Refresh(r.Context(), accessToken, payload.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tokens)
	}
}

// AuthLogout revokes the server-side session behind the presented token.
func AuthLogout(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}

		if err := svc.Logout(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthPasswordResetRequest issues a reset token. The response never reveals
// whether the email exists.
func AuthPasswordResetRequest(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload emailRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RequestPasswordReset(r.Context(), payload.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "sent"})
	}
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// AuthPasswordResetConfirm consumes a reset token and replaces the password.
func AuthPasswordResetConfirm(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload passwordResetConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ConfirmPasswordReset(r.Context(), payload.Token, payload.NewPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "password_updated"})
	}
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// AuthVerifyEmail flips the account's verified flag via a one-time token.
func AuthVerifyEmail(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload tokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.VerifyEmail(r.Context(), payload.Token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "verified"})
	}
}

// AuthResendVerification issues a fresh verification token.
func AuthResendVerification(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload emailRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResendEmailVerification(r.Context(), payload.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "sent"})
	}
}

type totpCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// AuthEnable2FA provisions a TOTP secret pending verification.
func AuthEnable2FA(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		secret, err := svc.Enable2FA(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"secret": secret})
	}
}

// AuthVerify2FA activates TOTP after the first valid code.
func AuthVerify2FA(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload totpCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Verify2FA(r.Context(), userID, payload.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "enabled"})
	}
}

// AuthDisable2FA turns TOTP off after one last valid code.
func AuthDisable2FA(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload totpCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Disable2FA(r.Context(), userID, payload.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "disabled"})
	}
}

// ProfileFetch returns the authenticated user's account.
func ProfileFetch(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Profile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toUserResponse(user))
	}
}

type profileUpdateRequest struct {
	FirstName              string         `json:"first_name"`
	LastName               string         `json:"last_name"`
	Phone                  *string        `json:"phone,omitempty"`
	Country                string         `json:"country"`
	BuyerType              string         `json:"buyer_type" validate:"omitempty,oneof=individual company"`
	CompanyName            *string        `json:"company_name,omitempty"`
	VATNumber              *string        `json:"vat_number,omitempty"`
	DefaultBillingAddress  *types.Address `json:"default_billing_address,omitempty"`
	DefaultShippingAddress *types.Address `json:"default_shipping_address,omitempty"`
}

// ProfileUpdate edits the account's self-service fields.
func ProfileUpdate(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload profileUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerType, err := enums.ParseBuyerType(strings.TrimSpace(payload.BuyerType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer type"))
			return
		}

		user, err := svc.UpdateProfile(r.Context(), userID, authsvc.ProfileInput{
			FirstName:              payload.FirstName,
			LastName:               payload.LastName,
			Phone:                  payload.Phone,
			Country:                payload.Country,
			CompanyName:            payload.CompanyName,
			VATNumber:              payload.VATNumber,
			BuyerType:              buyerType,
			DefaultBillingAddress:  payload.DefaultBillingAddress,
			DefaultShippingAddress: payload.DefaultShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toUserResponse(user))
	}
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}

package handlers

import (
	"net/http"

	"github.com/powerchain/backend/internal/middleware"
	"github.com/powerchain/backend/internal/services"
)

type AuthHandler struct {
	service   *services.AuthService
	validator *services.ValidationHelper
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type credentials struct {
	Address  string `json:"address" validate:"required,address"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Register creates an account for an address
// @Summary Register
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body object{address=string,password=string} true "Credentials"
// @Success 201 {object} object{address=string}
// @Failure 409 {object} services.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	address, err := h.service.Register(r.Context(), req.Address, req.Password)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"address": address})
}

// Login exchanges credentials for a bearer token
// @Summary Login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body object{address=string,password=string} true "Credentials"
// @Success 200 {object} object{token=string,expires_at=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	token, claims, err := h.service.Login(r.Context(), req.Address, req.Password)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"token":      token,
		"address":    claims.Address,
		"expires_at": claims.ExpiresAt,
	})
}

// Logout revokes the presented token
// @Summary Logout
// @Tags Auth
// @Security BearerAuth
// @Success 200 {object} object{success=bool}
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{})
}

// Me returns the authenticated address
// @Summary Current account
// @Tags Auth
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	address, ok := caller(w, r)
	if !ok {
		return
	}
	body := map[string]any{"address": address}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		body["expires_at"] = claims.ExpiresAt
	}
	writeSuccess(w, http.StatusOK, body)
}

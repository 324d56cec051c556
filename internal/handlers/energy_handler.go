package handlers

import (
	"net/http"

	"github.com/powerchain/backend/internal/audit"
	"github.com/powerchain/backend/internal/services"
	"github.com/shopspring/decimal"
)

type EnergyHandler struct {
	service   *services.EnergyCreditService
	audit     *audit.AuditLogger
	validator *services.ValidationHelper
}

func NewEnergyHandler(service *services.EnergyCreditService, auditLogger *audit.AuditLogger) *EnergyHandler {
	return &EnergyHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// Issue mints credits for metered production
// @Summary Issue energy credits
// @Description Mint energy credits for produced kWh. Caller must be a registered issuer.
// @Tags Energy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{to=string,energy_amount=string,reason=string} true "Issuance request"
// @Success 201 {object} object{credits=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /energy/issue [post]
func (h *EnergyHandler) Issue(w http.ResponseWriter, r *http.Request) {
	issuer, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		To           string `json:"to" validate:"required,address"`
		EnergyAmount string `json:"energy_amount" validate:"required,positive_decimal"`
		Reason       string `json:"reason" validate:"max=200"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	credits, err := h.service.Issue(r.Context(), issuer, mustAddress(req.To), decimal.RequireFromString(req.EnergyAmount), req.Reason)
	if err != nil {
		reject(w, h.audit, "energy_issue", issuer, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"credits": credits})
}

// Transfer moves credits from the caller
// @Summary Transfer energy credits
// @Tags Energy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{to=string,amount=int64} true "Transfer request"
// @Success 200 {object} object{balance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /energy/transfer [post]
func (h *EnergyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		To     string `json:"to" validate:"required,address"`
		Amount int64  `json:"amount" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.Transfer(r.Context(), from, mustAddress(req.To), req.Amount); err != nil {
		reject(w, h.audit, "energy_transfer", from, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"balance": h.service.BalanceOf(from)})
}

// Balance returns spendable credits and cumulative kWh issued
// @Summary Energy balance
// @Tags Energy
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account address"
// @Success 200 {object} object{credits=int64,energy_issued_kwh=string}
// @Router /energy/balance/{address} [get]
func (h *EnergyHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"address":           addr,
		"credits":           h.service.BalanceOf(addr),
		"energy_issued_kwh": h.service.GetEnergyBalance(addr),
	})
}

// Issuances lists production attestations credited to an account
// @Summary Energy issuances
// @Tags Energy
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account address"
// @Router /energy/issuances/{address} [get]
func (h *EnergyHandler) Issuances(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"issuances": h.service.Issuances(addr)})
}

// Supply reports total energy credits in circulation
// @Summary Energy credit supply
// @Tags Energy
// @Produce json
// @Router /energy/supply [get]
func (h *EnergyHandler) Supply(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"total_supply": h.service.TotalSupply()})
}

// AddIssuer registers a production issuer. Admin only.
// @Summary Add energy issuer
// @Tags Energy
// @Accept json
// @Security BearerAuth
// @Param request body object{issuer=string} true "Issuer"
// @Router /energy/issuers [post]
func (h *EnergyHandler) AddIssuer(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req issuerRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.AddIssuer(r.Context(), admin, mustAddress(req.Issuer)); err != nil {
		reject(w, h.audit, "energy_add_issuer", admin, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"issuer": mustAddress(req.Issuer)})
}

// RemoveIssuer revokes a production issuer. Admin only.
// @Summary Remove energy issuer
// @Tags Energy
// @Security BearerAuth
// @Param address path string true "Issuer address"
// @Router /energy/issuers/{address} [delete]
func (h *EnergyHandler) RemoveIssuer(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveIssuer(r.Context(), admin, addr); err != nil {
		reject(w, h.audit, "energy_remove_issuer", admin, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"issuer": addr})
}

type issuerRequest struct {
	Issuer string `json:"issuer" validate:"required,address"`
}

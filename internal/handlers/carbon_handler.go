package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/powerchain/backend/internal/audit"
	"github.com/powerchain/backend/internal/models"
	"github.com/powerchain/backend/internal/services"
	"github.com/shopspring/decimal"
)

type CarbonHandler struct {
	service   *services.CarbonCreditService
	audit     *audit.AuditLogger
	validator *services.ValidationHelper
}

func NewCarbonHandler(service *services.CarbonCreditService, auditLogger *audit.AuditLogger) *CarbonHandler {
	return &CarbonHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// Redeem retires the caller's carbon credits
// @Summary Redeem carbon credits
// @Tags Carbon
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,purpose=string} true "Amount in milli-credits"
// @Success 200 {object} object{balance=int64}
// @Failure 422 {object} services.ErrorResponse
// @Router /carbon/redeem [post]
func (h *CarbonHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount  int64  `json:"amount" validate:"required,gt=0"`
		Purpose string `json:"purpose" validate:"required,max=200"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.Redeem(r.Context(), account, req.Amount, req.Purpose); err != nil {
		reject(w, h.audit, "carbon_redeem", account, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"balance": h.service.BalanceOf(account)})
}

// Stats returns earned, redeemed and current carbon balances
// @Summary Carbon stats
// @Tags Carbon
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account address"
// @Success 200 {object} models.CarbonStats
// @Router /carbon/stats/{address} [get]
func (h *CarbonHandler) Stats(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"stats": h.service.GetCarbonStats(addr)})
}

// @Summary Carbon history
// @Tags Carbon
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account address"
// @Router /carbon/history/{address} [get]
func (h *CarbonHandler) History(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"records": h.service.History(addr)})
}

// Rates lists carbon credits earned per kWh by energy type
// @Summary Carbon rates
// @Tags Carbon
// @Produce json
// @Router /carbon/rates [get]
func (h *CarbonHandler) Rates(w http.ResponseWriter, r *http.Request) {
	rates := make(map[models.EnergyType]decimal.Decimal, len(models.EnergyTypes))
	for _, t := range models.EnergyTypes {
		rates[t] = h.service.Rate(t)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"rates": rates})
}

// SetRate changes the issuance rate for one energy type. Admin only.
// @Summary Set carbon rate
// @Tags Carbon
// @Accept json
// @Security BearerAuth
// @Param type path string true "Energy type"
// @Param request body object{rate=string} true "CC per kWh"
// @Router /carbon/rates/{type} [put]
func (h *CarbonHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	energyType, err := models.ParseEnergyType(chi.URLParam(r, "type"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	var req struct {
		Rate string `json:"rate" validate:"required,numeric"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		services.SendErrorResponse(w, "Invalid rate", http.StatusBadRequest, nil)
		return
	}

	if err := h.service.SetRate(r.Context(), admin, energyType, rate); err != nil {
		reject(w, h.audit, "carbon_set_rate", admin, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"energy_type": energyType, "rate": rate})
}

// @Summary Add carbon issuer
// @Tags Carbon
// @Accept json
// @Security BearerAuth
// @Param request body object{issuer=string} true "Issuer"
// @Router /carbon/issuers [post]
func (h *CarbonHandler) AddIssuer(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req issuerRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.AddIssuer(r.Context(), admin, mustAddress(req.Issuer)); err != nil {
		reject(w, h.audit, "carbon_add_issuer", admin, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"issuer": mustAddress(req.Issuer)})
}

// @Summary Remove carbon issuer
// @Tags Carbon
// @Security BearerAuth
// @Param address path string true "Issuer address"
// @Router /carbon/issuers/{address} [delete]
func (h *CarbonHandler) RemoveIssuer(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveIssuer(r.Context(), admin, addr); err != nil {
		reject(w, h.audit, "carbon_remove_issuer", admin, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"issuer": addr})
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/powerchain/backend/internal/audit"
	"github.com/powerchain/backend/internal/models"
	"github.com/powerchain/backend/internal/services"
	"github.com/shopspring/decimal"
)

type TradingHandler struct {
	service   *services.TradingService
	audit     *audit.AuditLogger
	validator *services.ValidationHelper
}

func NewTradingHandler(service *services.TradingService, auditLogger *audit.AuditLogger) *TradingHandler {
	return &TradingHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// CreateOffer lists energy for sale
// @Summary Create offer
// @Description List kWh of one energy type at a price in credit units per kWh.
// @Tags Trading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{energy_amount=string,price_per_kwh=string,energy_type=string,location=string,expires_in_hours=int} true "Offer"
// @Success 201 {object} object{offer_id=uint64}
// @Failure 400 {object} services.ErrorResponse
// @Router /offers [post]
func (h *TradingHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	seller, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		EnergyAmount   string `json:"energy_amount" validate:"required,positive_decimal"`
		PricePerKWh    string `json:"price_per_kwh" validate:"required,positive_decimal"`
		EnergyType     string `json:"energy_type" validate:"required,energy_type"`
		Location       string `json:"location" validate:"max=120"`
		ExpiresInHours int    `json:"expires_in_hours" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	energyType, _ := models.ParseEnergyType(req.EnergyType)

	offerID, err := h.service.CreateOffer(r.Context(), seller, services.CreateOfferRequest{
		EnergyAmount:   decimal.RequireFromString(req.EnergyAmount),
		PricePerKWh:    decimal.RequireFromString(req.PricePerKWh),
		EnergyType:     energyType,
		Location:       req.Location,
		ExpiresInHours: req.ExpiresInHours,
	})
	if err != nil {
		reject(w, h.audit, "create_offer", seller, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"offer_id": offerID})
}

// ListOffers returns ids of matchable offers, oldest first
// @Summary Active offers
// @Tags Trading
// @Produce json
// @Param energy_type query string false "Filter by energy type"
// @Success 200 {object} object{offers=[]uint64}
// @Router /offers [get]
func (h *TradingHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	var energyType models.EnergyType
	if q := r.URL.Query().Get("energy_type"); q != "" {
		t, err := models.ParseEnergyType(q)
		if err != nil {
			services.SendLedgerError(w, err)
			return
		}
		energyType = t
	}

	writeSuccess(w, http.StatusOK, map[string]any{"offers": h.service.GetActiveOffers(energyType)})
}

// @Summary Get offer
// @Tags Trading
// @Produce json
// @Param id path int true "Offer id"
// @Success 200 {object} models.Offer
// @Failure 404 {object} services.ErrorResponse
// @Router /offers/{id} [get]
func (h *TradingHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	offer, err := h.service.GetOffer(id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"offer": offer})
}

// Purchase buys part or all of an offer's remaining energy
// @Summary Purchase energy
// @Tags Trading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Offer id"
// @Param request body object{energy_amount=string} true "kWh to buy"
// @Success 201 {object} models.Trade
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /offers/{id}/purchase [post]
func (h *TradingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		EnergyAmount string `json:"energy_amount" validate:"required,positive_decimal"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	tradeID, err := h.service.PurchaseEnergy(r.Context(), buyer, offerID, decimal.RequireFromString(req.EnergyAmount))
	if err != nil {
		reject(w, h.audit, "purchase_energy", buyer, err)
		return
	}

	trade, err := h.service.GetTrade(tradeID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"trade": trade})
}

// CancelOffer closes the caller's offer. Only its seller may cancel it.
// @Summary Cancel offer
// @Tags Trading
// @Security BearerAuth
// @Param id path int true "Offer id"
// @Router /offers/{id} [delete]
func (h *TradingHandler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.CancelOffer(r.Context(), account, offerID); err != nil {
		reject(w, h.audit, "cancel_offer", account, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"offer_id": offerID})
}

// @Summary Get trade
// @Tags Trading
// @Produce json
// @Security BearerAuth
// @Param id path int true "Trade id"
// @Success 200 {object} models.Trade
// @Router /trades/{id} [get]
func (h *TradingHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	trade, err := h.service.GetTrade(id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"trade": trade})
}

// @Summary Trades by account
// @Tags Trading
// @Produce json
// @Security BearerAuth
// @Param address path string true "Account address"
// @Router /accounts/{address}/trades [get]
func (h *TradingHandler) AccountTrades(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"trades": h.service.TradesByAccount(addr)})
}

// @Summary Market stats
// @Tags Market
// @Produce json
// @Success 200 {object} models.MarketStats
// @Router /market/stats [get]
func (h *TradingHandler) MarketStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"stats": h.service.GetMarketStats()})
}

// @Summary Market price
// @Tags Market
// @Produce json
// @Param type path string true "Energy type"
// @Success 200 {object} models.MarketPrice
// @Router /market/prices/{type} [get]
func (h *TradingHandler) MarketPrice(w http.ResponseWriter, r *http.Request) {
	energyType, err := models.ParseEnergyType(chi.URLParam(r, "type"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	price, err := h.service.GetMarketPrice(energyType)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"price": price})
}

// SetMarketPrice updates the advisory price. Admin or energy issuers only.
// @Summary Set market price
// @Tags Market
// @Accept json
// @Security BearerAuth
// @Param type path string true "Energy type"
// @Param request body object{price=string} true "Credit units per kWh"
// @Router /market/prices/{type} [put]
func (h *TradingHandler) SetMarketPrice(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	energyType, err := models.ParseEnergyType(chi.URLParam(r, "type"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	var req struct {
		Price string `json:"price" validate:"required,positive_decimal"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.SetMarketPrice(r.Context(), account, energyType, decimal.RequireFromString(req.Price)); err != nil {
		reject(w, h.audit, "set_market_price", account, err)
		return
	}

	price, _ := h.service.GetMarketPrice(energyType)
	writeSuccess(w, http.StatusOK, map[string]any{"price": price})
}

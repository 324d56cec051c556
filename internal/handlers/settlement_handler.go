package handlers

import (
	"net/http"

	"github.com/powerchain/backend/internal/services"
)

type SettlementHandler struct {
	trading *services.TradingService
	reports *services.SettlementReportService
}

func NewSettlementHandler(trading *services.TradingService, reports *services.SettlementReportService) *SettlementHandler {
	return &SettlementHandler{trading: trading, reports: reports}
}

// Settlement renders a trade as an ISO 20022 message
// @Summary Trade settlement report
// @Description pacs.008 credit transfer for a settled trade, or pacs.002 status with type=status.
// @Tags Settlement
// @Produce xml
// @Security BearerAuth
// @Param id path int true "Trade id"
// @Param type query string false "transfer (default) or status"
// @Success 200 {string} string "ISO 20022 XML"
// @Failure 404 {object} services.ErrorResponse
// @Router /trades/{id}/settlement [get]
func (h *SettlementHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	trade, err := h.trading.GetTrade(id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	var doc any
	switch r.URL.Query().Get("type") {
	case "", "transfer":
		doc, err = h.reports.BuildTradeSettlement(trade)
	case "status":
		doc, err = h.reports.BuildSettlementStatus(trade)
	default:
		services.SendErrorResponse(w, "type must be transfer or status", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	body, err := h.reports.ToXML(doc)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/powerchain/backend/internal/services"
)

type QRHandler struct {
	service *services.OfferQRService
}

func NewQRHandler(service *services.OfferQRService) *QRHandler {
	return &QRHandler{service: service}
}

// GenerateQR creates a shareable code for an offer
// @Summary Generate offer QR code
// @Description Generate a share code and QR image for an active offer. The code expires with the offer.
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path int true "Offer id"
// @Success 200 {object} object{code=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /offers/{id}/qr [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	offerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	code, qrImage, err := h.service.GenerateOfferQR(r.Context(), offerID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"code":    code,
		"qrImage": qrImage,
	})
}

// ResolveQR looks up the offer behind a scanned code
// @Summary Resolve offer QR code
// @Tags QR
// @Produce json
// @Param code path string true "Share code"
// @Success 200 {object} models.Offer
// @Failure 404 {object} services.ErrorResponse
// @Router /offers/shared/{code} [get]
func (h *QRHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	offer, err := h.service.ResolveOfferQR(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"offer": offer})
}

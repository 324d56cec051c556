package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API bundles the handlers mounted under /api/v1. Nil handlers are skipped.
type API struct {
	Auth       *AuthHandler
	Energy     *EnergyHandler
	Carbon     *CarbonHandler
	Trading    *TradingHandler
	Governance *GovernanceHandler
	QR         *QRHandler
	Settlement *SettlementHandler
	Events     *EventsHandler
}

// Mount registers public and authenticated routes on r.
func (a API) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	// Public endpoints (no auth required)
	if a.Auth != nil {
		r.Post("/auth/register", a.Auth.Register)
		r.Post("/auth/login", a.Auth.Login)
	}
	if a.Energy != nil {
		r.Get("/energy/supply", a.Energy.Supply)
	}
	if a.Carbon != nil {
		r.Get("/carbon/rates", a.Carbon.Rates)
	}
	if a.Trading != nil {
		r.Get("/offers", a.Trading.ListOffers)
		r.Get("/offers/{id}", a.Trading.GetOffer)
		r.Get("/market/stats", a.Trading.MarketStats)
		r.Get("/market/prices/{type}", a.Trading.MarketPrice)
	}
	if a.QR != nil {
		r.Get("/offers/shared/{code}", a.QR.ResolveQR)
	}
	if a.Governance != nil {
		r.Get("/proposals/{id}", a.Governance.GetProposal)
		r.Get("/proposals/{id}/votes/{address}", a.Governance.GetVote)
		r.Get("/governance/stats", a.Governance.Stats)
		r.Get("/governance/power/{address}", a.Governance.VotingPower)
	}

	// Protected endpoints (auth required)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		if a.Auth != nil {
			r.Post("/auth/logout", a.Auth.Logout)
			r.Get("/auth/me", a.Auth.Me)
		}

		if a.Energy != nil {
			r.Post("/energy/issue", a.Energy.Issue)
			r.Post("/energy/transfer", a.Energy.Transfer)
			r.Get("/energy/balance/{address}", a.Energy.Balance)
			r.Get("/energy/issuances/{address}", a.Energy.Issuances)
			r.Post("/energy/issuers", a.Energy.AddIssuer)
			r.Delete("/energy/issuers/{address}", a.Energy.RemoveIssuer)
		}

		if a.Carbon != nil {
			r.Post("/carbon/redeem", a.Carbon.Redeem)
			r.Get("/carbon/stats/{address}", a.Carbon.Stats)
			r.Get("/carbon/history/{address}", a.Carbon.History)
			r.Put("/carbon/rates/{type}", a.Carbon.SetRate)
			r.Post("/carbon/issuers", a.Carbon.AddIssuer)
			r.Delete("/carbon/issuers/{address}", a.Carbon.RemoveIssuer)
		}

		if a.Trading != nil {
			r.Post("/offers", a.Trading.CreateOffer)
			r.Post("/offers/{id}/purchase", a.Trading.Purchase)
			r.Delete("/offers/{id}", a.Trading.CancelOffer)
			r.Get("/trades/{id}", a.Trading.GetTrade)
			r.Get("/accounts/{address}/trades", a.Trading.AccountTrades)
			r.Put("/market/prices/{type}", a.Trading.SetMarketPrice)
		}

		if a.QR != nil {
			r.Post("/offers/{id}/qr", a.QR.GenerateQR)
		}

		if a.Settlement != nil {
			r.Get("/trades/{id}/settlement", a.Settlement.Settlement)
		}

		if a.Governance != nil {
			r.Post("/proposals", a.Governance.CreateProposal)
			r.Post("/proposals/{id}/votes", a.Governance.CastVote)
			r.Post("/proposals/{id}/execute", a.Governance.ExecuteProposal)
			r.Post("/governance/transfer", a.Governance.TransferTokens)
			r.Post("/governance/issue", a.Governance.IssueTokens)
		}

		if a.Events != nil {
			r.Get("/events", a.Events.Recent)
		}
	})
}

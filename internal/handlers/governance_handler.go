package handlers

import (
	"net/http"

	"github.com/powerchain/backend/internal/audit"
	"github.com/powerchain/backend/internal/models"
	"github.com/powerchain/backend/internal/services"
)

type GovernanceHandler struct {
	service   *services.GovernanceService
	audit     *audit.AuditLogger
	validator *services.ValidationHelper
}

func NewGovernanceHandler(service *services.GovernanceService, auditLogger *audit.AuditLogger) *GovernanceHandler {
	return &GovernanceHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

// CreateProposal opens a proposal for the configured voting period
// @Summary Create proposal
// @Tags Governance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,description=string,type=string,execution_target=string,execution_data=string} true "Proposal"
// @Success 201 {object} object{proposal_id=uint64}
// @Failure 422 {object} services.ErrorResponse
// @Router /proposals [post]
func (h *GovernanceHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	proposer, ok := caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Title           string `json:"title" validate:"required,max=200"`
		Description     string `json:"description" validate:"max=5000"`
		Type            string `json:"type" validate:"omitempty,oneof=general pricing carbon_policy treasury upgrade"`
		ExecutionTarget string `json:"execution_target" validate:"omitempty,max=200"`
		ExecutionData   []byte `json:"execution_data"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	proposalType, err := models.ParseProposalType(req.Type)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	id, err := h.service.CreateProposal(r.Context(), proposer, services.CreateProposalRequest{
		Title:           req.Title,
		Description:     req.Description,
		Type:            proposalType,
		ExecutionTarget: req.ExecutionTarget,
		ExecutionData:   req.ExecutionData,
	})
	if err != nil {
		reject(w, h.audit, "create_proposal", proposer, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"proposal_id": id})
}

// @Summary Get proposal
// @Tags Governance
// @Produce json
// @Param id path int true "Proposal id"
// @Success 200 {object} models.Proposal
// @Router /proposals/{id} [get]
func (h *GovernanceHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	proposal, err := h.service.GetProposal(id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"proposal": proposal})
}

// CastVote records the caller's vote weighted by their current balance
// @Summary Cast vote
// @Tags Governance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Proposal id"
// @Param request body object{vote=string} true "yes or no"
// @Success 201 {object} object{weight=int64}
// @Failure 409 {object} services.ErrorResponse
// @Router /proposals/{id}/votes [post]
func (h *GovernanceHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Vote string `json:"vote" validate:"required,oneof=yes no"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vote, _ := models.ParseVoteType(req.Vote)

	weight, err := h.service.CastVote(r.Context(), voter, proposalID, vote)
	if err != nil {
		reject(w, h.audit, "cast_vote", voter, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"weight": weight})
}

// @Summary Get vote
// @Tags Governance
// @Produce json
// @Param id path int true "Proposal id"
// @Param address path string true "Voter address"
// @Success 200 {object} models.Vote
// @Router /proposals/{id}/votes/{address} [get]
func (h *GovernanceHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	vote, found := h.service.GetVote(proposalID, addr)
	if !found {
		services.SendErrorResponse(w, "Vote not found", http.StatusNotFound, nil)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"vote": vote})
}

// ExecuteProposal runs a passed proposal after its deadline
// @Summary Execute proposal
// @Tags Governance
// @Security BearerAuth
// @Param id path int true "Proposal id"
// @Router /proposals/{id}/execute [post]
func (h *GovernanceHandler) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ExecuteProposal(r.Context(), account, proposalID); err != nil {
		reject(w, h.audit, "execute_proposal", account, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"proposal_id": proposalID})
}

// @Summary Voting stats
// @Tags Governance
// @Produce json
// @Success 200 {object} models.VotingStats
// @Router /governance/stats [get]
func (h *GovernanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"stats": h.service.GetVotingStats()})
}

// @Summary Voting power
// @Tags Governance
// @Produce json
// @Param address path string true "Account address"
// @Router /governance/power/{address} [get]
func (h *GovernanceHandler) VotingPower(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"address": addr, "voting_power": h.service.GetVotingPower(addr)})
}

// @Summary Transfer governance tokens
// @Tags Governance
// @Accept json
// @Security BearerAuth
// @Param request body object{to=string,amount=int64} true "Transfer"
// @Router /governance/transfer [post]
func (h *GovernanceHandler) TransferTokens(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.TransferTokens(r.Context(), from, mustAddress(req.To), req.Amount); err != nil {
		reject(w, h.audit, "governance_transfer", from, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"voting_power": h.service.GetVotingPower(from)})
}

// IssueTokens mints governance tokens. Registered issuers only.
// @Summary Issue governance tokens
// @Tags Governance
// @Accept json
// @Security BearerAuth
// @Param request body object{to=string,amount=int64} true "Issuance"
// @Router /governance/issue [post]
func (h *GovernanceHandler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	issuer, ok := caller(w, r)
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

	to := mustAddress(req.To)
	if err := h.service.IssueTokens(r.Context(), issuer, to, req.Amount); err != nil {
		reject(w, h.audit, "governance_issue", issuer, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"voting_power": h.service.GetVotingPower(to)})
}

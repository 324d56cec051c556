package models

import "errors"

var (
	ErrUnauthorized              = errors.New("unauthorized")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrPaymentFailed             = errors.New("payment failed")
	ErrOfferNotFound             = errors.New("offer not found")
	ErrOfferInactive             = errors.New("offer inactive")
	ErrOfferExpired              = errors.New("offer expired")
	ErrInsufficientOfferQuantity = errors.New("insufficient offer quantity")
	ErrProposalNotFound          = errors.New("proposal not found")
	ErrVotingClosed              = errors.New("voting closed")
	ErrAlreadyVoted              = errors.New("already voted")

	ErrInvalidEnergyType       = errors.New("invalid energy type")
	ErrSelfTrade               = errors.New("cannot purchase own offer")
	ErrNoVotingPower           = errors.New("no voting power")
	ErrVotingOpen              = errors.New("voting still open")
	ErrProposalNotPassed       = errors.New("proposal not passed")
	ErrProposalAlreadyExecuted = errors.New("proposal already executed")
	ErrInvalidProposal         = errors.New("invalid proposal")
	ErrTradeNotFound           = errors.New("trade not found")
	ErrInvalidAddress          = errors.New("invalid address")
)

package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/powerchain/backend/internal/identity"
	"github.com/powerchain/backend/internal/models"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator with the ledger's custom tags:
// address, energy_type and kwh (positive decimal string).
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		_, err := identity.Normalize(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("energy_type", func(fl validator.FieldLevel) bool {
		_, err := models.ParseEnergyType(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		return validDecimalInput(fl.Field().String())
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	writeError(w, ErrorResponse{Error: message}, statusCode, validationErr)
}

func writeError(w http.ResponseWriter, errorResp ErrorResponse, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var verrs validator.ValidationErrors
	if errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// ledgerErrors maps domain errors to HTTP statuses. Order matters: wrapped
// errors match the first entry they satisfy.
var ledgerErrors = []errorMapping{
	{models.ErrPaymentFailed, http.StatusPaymentRequired, "PAYMENT_FAILED"},
	{models.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{models.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{models.ErrInvalidEnergyType, http.StatusBadRequest, "INVALID_ENERGY_TYPE"},
	{models.ErrInvalidAddress, http.StatusBadRequest, "INVALID_ADDRESS"},
	{models.ErrInvalidProposal, http.StatusBadRequest, "INVALID_PROPOSAL"},
	{models.ErrSelfTrade, http.StatusBadRequest, "SELF_TRADE"},
	{models.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
	{models.ErrNoVotingPower, http.StatusUnprocessableEntity, "NO_VOTING_POWER"},
	{models.ErrOfferNotFound, http.StatusNotFound, "OFFER_NOT_FOUND"},
	{models.ErrTradeNotFound, http.StatusNotFound, "TRADE_NOT_FOUND"},
	{models.ErrProposalNotFound, http.StatusNotFound, "PROPOSAL_NOT_FOUND"},
	{models.ErrOfferInactive, http.StatusConflict, "OFFER_INACTIVE"},
	{models.ErrOfferExpired, http.StatusGone, "OFFER_EXPIRED"},
	{models.ErrInsufficientOfferQuantity, http.StatusConflict, "INSUFFICIENT_OFFER_QUANTITY"},
	{models.ErrVotingClosed, http.StatusConflict, "VOTING_CLOSED"},
	{models.ErrVotingOpen, http.StatusConflict, "VOTING_OPEN"},
	{models.ErrAlreadyVoted, http.StatusConflict, "ALREADY_VOTED"},
	{models.ErrProposalNotPassed, http.StatusConflict, "PROPOSAL_NOT_PASSED"},
	{models.ErrProposalAlreadyExecuted, http.StatusConflict, "PROPOSAL_ALREADY_EXECUTED"},
	{ErrAccountExists, http.StatusConflict, "ACCOUNT_EXISTS"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN"},
	{ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED"},
	{ErrInvalidShareCode, http.StatusNotFound, "INVALID_SHARE_CODE"},
}

// StatusForError returns the HTTP status and stable code for err. Unknown
// errors are internal.
func StatusForError(err error) (int, string) {
	for _, m := range ledgerErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// SendLedgerError writes err with its mapped status. Internal errors are
// not echoed to the client.
func SendLedgerError(w http.ResponseWriter, err error) {
	status, code := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An Internal Error Occurred"
	}
	writeError(w, ErrorResponse{Error: message, Code: code}, status, nil)
}

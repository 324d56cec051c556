package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offerForm struct {
	Seller       string `validate:"required,address"`
	EnergyAmount string `validate:"required,positive_decimal"`
	EnergyType   string `validate:"required,energy_type"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := offerForm{
			Seller:       "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			EnergyAmount: "12.5",
			EnergyType:   "Solar",
		}

		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid struct - every custom tag fails", func(t *testing.T) {
		invalid := offerForm{
			Seller:       "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			EnergyAmount: "-1",
			EnergyType:   "coal",
		}

		err := vh.ValidateStruct(&invalid)
		require.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("non-numeric amount", func(t *testing.T) {
		invalid := offerForm{
			Seller:       "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			EnergyAmount: "ten",
			EnergyType:   "wind",
		}

		err := vh.ValidateStruct(&invalid)
		require.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		require.Len(t, validationErrors, 1)
		assert.Equal(t, "EnergyAmount", validationErrors[0].Field())
		assert.Equal(t, "positive_decimal", validationErrors[0].Tag())
	})

	t.Run("out of range amounts", func(t *testing.T) {
		for _, amount := range []string{"1e20000000", "1e-20000000", "10000000000000"} {
			form := offerForm{
				Seller:       "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
				EnergyAmount: amount,
				EnergyType:   "wind",
			}
			err := vh.ValidateStruct(&form)
			require.Error(t, err, amount)

			validationErrors, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			assert.Equal(t, "positive_decimal", validationErrors[0].Tag())
		}
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&offerForm{})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "Seller")
		assert.Contains(t, response.Details, "EnergyAmount")
		assert.Contains(t, response.Details, "EnergyType")
	})

	t.Run("non-validation error is not expanded", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", fmt.Errorf("issue: %w", models.ErrUnauthorized), http.StatusForbidden, "UNAUTHORIZED"},
		{"payment failure wins over balance", fmt.Errorf("%w: %w", models.ErrPaymentFailed, models.ErrInsufficientBalance), http.StatusPaymentRequired, "PAYMENT_FAILED"},
		{"plain balance", models.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"offer expired", fmt.Errorf("purchase: %w", models.ErrOfferExpired), http.StatusGone, "OFFER_EXPIRED"},
		{"proposal missing", models.ErrProposalNotFound, http.StatusNotFound, "PROPOSAL_NOT_FOUND"},
		{"already voted", models.ErrAlreadyVoted, http.StatusConflict, "ALREADY_VOTED"},
		{"revoked token", ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestSendLedgerError(t *testing.T) {
	t.Run("domain error keeps message", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendLedgerError(w, fmt.Errorf("purchase: %w", models.ErrInsufficientOfferQuantity))

		assert.Equal(t, http.StatusConflict, w.Code)
		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "INSUFFICIENT_OFFER_QUANTITY", response.Code)
		assert.Contains(t, response.Error, "insufficient")
	})

	t.Run("internal error is masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendLedgerError(w, errors.New("pq: password authentication failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "An Internal Error Occurred", response.Error)
	})
}

package api

import (
	"errors"
	"net/http"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/pricing"
)

// ErrorDetail is one entry of the error envelope
type ErrorDetail struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ErrorResponse is {"errors":{"<field>":{"code","name"}}}
type ErrorResponse struct {
	Errors map[string]ErrorDetail `json:"errors"`
}

type apiError struct {
	status int
	code   string
	name   string
}

// classifyError maps a workflow error onto its HTTP status and error code.
// The boolean is false for errors that are not the caller's fault.
func classifyError(err error) (apiError, bool) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return apiError{http.StatusNotFound, "not-found", "The order does not exist"}, true
	case errors.Is(err, product.ErrProductNotFound):
		return apiError{http.StatusNotFound, "not-found", "The product does not exist"}, true
	case errors.Is(err, product.ErrOutOfStock):
		return apiError{http.StatusUnprocessableEntity, "out-of-inventory", "The product is not in stock"}, true
	case errors.Is(err, payment.ErrCardDeclined):
		return apiError{http.StatusUnprocessableEntity, "card-declined", declineName(err)}, true
	case errors.Is(err, order.ErrOrderAlreadySettled):
		return apiError{http.StatusConflict, "already-paid", "The order has already been paid"}, true
	case errors.Is(err, order.ErrSettlementInProgress):
		return apiError{http.StatusConflict, "settlement-in-progress", "A payment for this order is being processed"}, true
	case errors.Is(err, order.ErrShippingInformationRequired):
		return apiError{http.StatusUnprocessableEntity, "missing-fields", "Shipping information must be submitted before the credit card"}, true
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, pricing.ErrUnknownRegion),
		errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidWeight),
		errors.Is(err, product.ErrInvalidID):
		return apiError{http.StatusUnprocessableEntity, "invalid-fields", err.Error()}, true
	case errors.Is(err, product.ErrDuplicateProduct):
		return apiError{http.StatusConflict, "duplicate", "A product with this id already exists"}, true
	case errors.Is(err, product.ErrProductInUse):
		return apiError{http.StatusConflict, "in-use", "Products referenced by orders cannot be removed"}, true
	case errors.Is(err, auth.ErrInvalidKey):
		return apiError{http.StatusUnauthorized, "invalid-key", "The admin key is not valid"}, true
	case errors.Is(err, order.ErrSettlementIndeterminate):
		return apiError{http.StatusGatewayTimeout, "settlement-indeterminate", "The payment outcome is not known yet"}, false
	case errors.Is(err, order.ErrSettlementFailed):
		return apiError{http.StatusBadGateway, "settlement-failed", "The payment could not be completed"}, false
	default:
		return apiError{http.StatusInternalServerError, "internal-error", "An unexpected error occurred"}, false
	}
}

func declineName(err error) string {
	var decline *payment.DeclineError
	if errors.As(err, &decline) && decline.Name != "" {
		return decline.Name
	}
	return "The card was declined"
}

func respondJSONError(w http.ResponseWriter, field, code, name string, status int) {
	respondJSON(w, status, ErrorResponse{Errors: map[string]ErrorDetail{field: {Code: code, Name: name}}})
}

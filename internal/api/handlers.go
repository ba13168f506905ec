package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/readmodel"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		validate:     validator.New(),
		logger:       logger.Named("api"),
	}
}

// Product Handlers

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.queryHandler.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, r, "products", err)
		return
	}
	respondJSON(w, http.StatusOK, readmodel.ProductListResponse{Products: products})
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondJSONError(w, "product", "not-found", "The product does not exist", http.StatusNotFound)
		return
	}
	p, err := h.queryHandler.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "product", err)
		return
	}
	respondJSON(w, http.StatusOK, readmodel.ProductResponse{Product: *p})
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, "product", &req) {
		return
	}

	p, err := h.cmdHandler.CreateProduct(r.Context(), req.Product.toCommand())
	if err != nil {
		h.respondError(w, r, "product", err)
		return
	}
	respondJSON(w, http.StatusCreated, readmodel.ProductResponse{Product: readmodel.NewProductReadModel(p)})
}

func (h *Handlers) DropProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.DropProducts(r.Context(), command.DropProducts{}); err != nil {
		h.respondError(w, r, "products", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Order Handlers

// AddOrder creates the order and redirects to it.
func (h *Handlers) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req AddOrderRequest
	if !h.decode(w, r, "product", &req) {
		return
	}

	id, err := h.cmdHandler.AddOrder(r.Context(), command.AddOrder{
		ProductID: req.Product.ID,
		Quantity:  *req.Product.Quantity,
	})
	if err != nil {
		h.respondError(w, r, "product", err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/order/%d", id))
	w.WriteHeader(http.StatusFound)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondJSONError(w, "order", "not-found", "The order does not exist", http.StatusNotFound)
		return
	}
	view, err := h.queryHandler.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "order", err)
		return
	}
	respondJSON(w, http.StatusOK, readmodel.OrderResponse{Order: *view})
}

// PutOrder accepts either the order's email and shipping information or
// its credit card, never both in one request.
func (h *Handlers) PutOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondJSONError(w, "order", "not-found", "The order does not exist", http.StatusNotFound)
		return
	}

	var req PutOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "order", "invalid-body", "The request body is not valid JSON", http.StatusBadRequest)
		return
	}

	switch {
	case req.Order != nil && req.CreditCard != nil:
		respondJSONError(w, "order", "missing-fields", "Shipping information and credit card must be submitted separately", http.StatusUnprocessableEntity)
	case req.Order != nil:
		if !h.valid(w, "order", req.Order) {
			return
		}
		view, err := h.cmdHandler.PutShippingInformation(r.Context(), req.Order.toCommand(id))
		if err != nil {
			h.respondError(w, r, "order", err)
			return
		}
		respondJSON(w, http.StatusOK, readmodel.OrderResponse{Order: *view})
	case req.CreditCard != nil:
		req.CreditCard.normalize()
		if !h.valid(w, "credit_card", req.CreditCard) {
			return
		}
		view, err := h.cmdHandler.PutCreditCard(r.Context(), req.CreditCard.toCommand(id))
		if err != nil {
			h.respondError(w, r, "credit_card", err)
			return
		}
		respondJSON(w, http.StatusOK, readmodel.OrderResponse{Order: *view})
	default:
		respondJSONError(w, "order", "missing-fields", "Either order or credit_card is required", http.StatusUnprocessableEntity)
	}
}

func (h *Handlers) ListSettlements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondJSONError(w, "order", "not-found", "The order does not exist", http.StatusNotFound)
		return
	}
	attempts, err := h.queryHandler.ListSettlementAttempts(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "order", err)
		return
	}
	respondJSON(w, http.StatusOK, readmodel.SettlementAttemptListResponse{OrderID: id, Attempts: attempts})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, field string, err error) {
	apiErr, expected := classifyError(err)
	if expected {
		h.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", apiErr.code), zap.Error(err))
	} else {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", apiErr.code), zap.Error(err))
	}
	respondJSONError(w, field, apiErr.code, apiErr.name, apiErr.status)
}

// decode reads a JSON body into dst and validates it.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, field string, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		respondJSONError(w, field, "invalid-body", "The request body is not valid JSON", http.StatusBadRequest)
		return false
	}
	return h.valid(w, field, dst)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handlers) valid(w http.ResponseWriter, field string, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		respondJSONError(w, field, "missing-fields", describe(verrs[0]), http.StatusUnprocessableEntity)
		return false
	}
	respondJSONError(w, field, "invalid-fields", err.Error(), http.StatusUnprocessableEntity)
	return false
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "email":
		return fmt.Sprintf("%s must be an email address", fe.Namespace())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Namespace(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Namespace(), fe.Param())
	case "number":
		return fmt.Sprintf("%s must contain only digits", fe.Namespace())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

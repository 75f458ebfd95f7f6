package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	"github.com/nicolaspannunzio/backend-I/internal/service"
	apperrors "github.com/nicolaspannunzio/backend-I/pkg/errors"
	"github.com/nicolaspannunzio/backend-I/pkg/httputil"
	"github.com/nicolaspannunzio/backend-I/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CartItemRequest is one line of a ReplaceItemsRequest. The quantity sign is
// not checked.
type CartItemRequest struct {
	ID       domain.ProductID `json:"id" validate:"required"`
	Quantity *int             `json:"quantity" validate:"required"`
}

// ReplaceItemsRequest is the JSON request body for replacing a cart's items.
type ReplaceItemsRequest struct {
	Products []CartItemRequest `json:"products" validate:"required,dive"`
}

// SetQuantityRequest is the JSON request body for overwriting an item's quantity.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Handlers ---

// Create handles POST /api/carts
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Create(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, cart)
}

// List handles GET /api/carts
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	carts, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, carts)
}

// GetByID handles GET /api/carts/{cid}
func (h *CartHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.GetByID(r.Context(), cartID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, cart)
}

// AddItem handles POST /api/carts/{cid}/products/{pid}
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.AddItem(r.Context(), cartID, productID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, cart)
}

// RemoveItem handles DELETE /api/carts/{cid}/products/{pid}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), cartID, productID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, cart)
}

// ReplaceItems handles PUT /api/carts/{cid}
func (h *CartHandler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var req ReplaceItemsRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]domain.CartItem, len(req.Products))
	for i, p := range req.Products {
		items[i] = domain.CartItem{ProductID: p.ID, Quantity: *p.Quantity}
	}

	cart, err := h.service.ReplaceItems(r.Context(), cartID, items)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, cart)
}

// SetItemQuantity handles PUT /api/carts/{cid}/products/{pid}
func (h *CartHandler) SetItemQuantity(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var req SetQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.service.SetItemQuantity(r.Context(), cartID, productID(r), *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, cart)
}

// --- Helpers ---

// cartID parses the {cid} path parameter, writing a 400 when it is not a
// positive integer.
func (h *CartHandler) cartID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "cid")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httputil.WriteError(w, r, apperrors.InvalidInput("cart id must be a positive integer, got "+strconv.Quote(raw)), h.logger)
		return 0, false
	}
	return id, true
}

func productID(r *http.Request) domain.ProductID {
	return domain.ProductID(chi.URLParam(r, "pid"))
}

// decode reads and validates the JSON body into dst, writing a 400 on failure.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}

	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		err = apperrors.InvalidInput(err.Error())
	}
	httputil.WriteError(w, r, err, h.logger)
	return false
}

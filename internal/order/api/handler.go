package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-auctions/internal/auth"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/order"
	"ms-auctions/internal/utils"
)

type Handler struct {
	OrderService *order.Service
	Logger       *logger.Logger
}

func NewHandler(service *order.Service, log *logger.Logger) *Handler {
	return &Handler{OrderService: service, Logger: log}
}

// RegisterRoutes mounts the order endpoints behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/mine", h.MyOrders)
	r.Get("/orders/{orderId}", h.GetOrder)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Post("/orders/from-auction/{auctionId}", h.MaterializeAuctionOrder)
	})
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, order.ErrNotify):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, payload utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// MaterializeAuctionOrder converts a closed, won auction into a sales
// order and emails the winner their invoice.
func (h *Handler) MaterializeAuctionOrder(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionId")

	o, inv, err := h.OrderService.MaterializeAuctionOrder(r.Context(), auctionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("MaterializeAuctionOrder: %v", err))
		sendJSON(w, statusFromErr(err), utils.ErrorResponse("Could not create order", err.Error()))
		return
	}

	sendJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", map[string]interface{}{
		"order":   o,
		"invoice": inv,
	}))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		sendJSON(w, statusFromErr(err), utils.ErrorResponse("Order not found", err.Error()))
		return
	}

	// Buyers can only see their own orders.
	if auth.Role(r.Context()) != auth.RoleAdmin && o.UserID != auth.UserID(r.Context()) {
		sendJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", "not found: order"))
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", o))
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.MyOrders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		sendJSON(w, statusFromErr(err), utils.ErrorResponse("Could not list orders", err.Error()))
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", orders))
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-auctions/internal/auth"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/product"
	"ms-auctions/internal/utils"
)

type Handler struct {
	ProductService *product.Service
	Logger         *logger.Logger
}

func NewHandler(service *product.Service, log *logger.Logger) *Handler {
	return &Handler{ProductService: service, Logger: log}
}

// RegisterRoutes mounts the product endpoints behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/products/{productId}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleArtist, auth.RoleAdmin))
		r.Put("/products/{productId}", h.UpdateProduct)
	})
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrCaptured):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, payload utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.ProductService.Find(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		sendJSON(w, statusFromErr(err), utils.ErrorResponse("Product not found", err.Error()))
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Product retrieved", p))
}

// UpdateProduct is the normal product edit. It is refused while the
// product is captured by an auction.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	p, err := h.ProductService.UpdateProduct(r.Context(), chi.URLParam(r, "productId"), auth.UserID(r.Context()), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateProduct: %v", err))
		sendJSON(w, statusFromErr(err), utils.ErrorResponse("Could not update product", err.Error()))
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Product updated", p))
}

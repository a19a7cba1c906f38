package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-auctions/internal/auction"
	"ms-auctions/internal/auth"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/sse"
	"ms-auctions/internal/utils"
)

type Handler struct {
	Service *auction.Service
	Prices  *sse.PriceEventEmitter
	Logger  *logger.Logger
}

func NewHandler(service *auction.Service, prices *sse.PriceEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Service: service, Prices: prices, Logger: log}
}

// RegisterPublicRoutes mounts the endpoints that need no token: the
// browse views, the live price stream and the Stripe webhook.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/auctions", h.ListAuctions)
	r.Post("/auctions/webhook", h.StripeWebhook)
	r.Get("/auctions/{auctionId}", h.ViewAuction)
	r.Get("/auctions/{auctionId}/events", h.StreamPriceEvents)
}

// RegisterRoutes mounts the authenticated auction endpoints. Must be
// mounted behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleArtist, auth.RoleAdmin))
		r.Post("/auctions", h.CreateAuction)
		r.Get("/auctions/mine", h.MyAuctions)
		r.Get("/auctions/mine/{auctionId}", h.GetMyAuction)
		r.Put("/auctions/{auctionId}", h.UpdateAuction)
		r.Delete("/auctions/{auctionId}", h.DeleteAuction)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleUser))
		r.Post("/auctions/{auctionId}/join", h.RequestToJoin)
		r.Post("/auctions/{auctionId}/pay", h.Pay)
		r.Post("/auctions/{auctionId}/bid", h.PlaceBid)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Put("/auctions/{auctionId}/admin", h.AdminUpdateAuction)
		r.Delete("/auctions/{auctionId}/admin", h.AdminDeleteAuction)
	})
}

// statusFromErr maps the service error taxonomy onto HTTP statuses.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auction.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auction.ErrExternalService):
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

func (h *Handler) sendError(w http.ResponseWriter, message string, err error) {
	sendJSON(w, statusFromErr(err), utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req auction.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	a, err := h.Service.CreateAuction(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateAuction: %v", err))
		h.sendError(w, "Could not create auction", err)
		return
	}

	sendJSON(w, http.StatusCreated, utils.SuccessResponse("Auction created", a))
}

func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	auctions, err := h.Service.ListAuctions(r.Context(), limit, offset)
	if err != nil {
		h.sendError(w, "Could not list auctions", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.ListResponse("Auctions retrieved", auctions, len(auctions), limit, offset))
}

func (h *Handler) ViewAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.ViewAuction(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.sendError(w, "Auction not found", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Auction retrieved", a))
}

func (h *Handler) MyAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.Service.MyAuctions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.sendError(w, "Could not list auctions", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Auctions retrieved", auctions))
}

func (h *Handler) GetMyAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.GetMyAuction(r.Context(), chi.URLParam(r, "auctionId"), auth.UserID(r.Context()))
	if err != nil {
		h.sendError(w, "Auction not found", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Auction retrieved", a))
}

func (h *Handler) UpdateAuction(w http.ResponseWriter, r *http.Request) {
	h.updateAuction(w, r, auth.UserID(r.Context()))
}

// AdminUpdateAuction edits any not-started auction regardless of owner.
func (h *Handler) AdminUpdateAuction(w http.ResponseWriter, r *http.Request) {
	h.updateAuction(w, r, "")
}

func (h *Handler) updateAuction(w http.ResponseWriter, r *http.Request, artistID string) {
	var req auction.UpdateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	a, err := h.Service.UpdateAuction(r.Context(), chi.URLParam(r, "auctionId"), artistID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateAuction: %v", err))
		h.sendError(w, "Could not update auction", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Auction updated", a))
}

func (h *Handler) DeleteAuction(w http.ResponseWriter, r *http.Request) {
	h.deleteAuction(w, r, auth.UserID(r.Context()))
}

// AdminDeleteAuction deletes any not-started, unjoined auction.
func (h *Handler) AdminDeleteAuction(w http.ResponseWriter, r *http.Request) {
	h.deleteAuction(w, r, "")
}

func (h *Handler) deleteAuction(w http.ResponseWriter, r *http.Request, artistID string) {
	if err := h.Service.DeleteAuction(r.Context(), chi.URLParam(r, "auctionId"), artistID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteAuction: %v", err))
		h.sendError(w, "Could not delete auction", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Auction deleted", nil))
}

func (h *Handler) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddressID string `json:"address_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	ao, err := h.Service.RequestToJoin(r.Context(), chi.URLParam(r, "auctionId"), auth.UserID(r.Context()), req.AddressID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RequestToJoin: %v", err))
		h.sendError(w, "Could not join auction", err)
		return
	}

	sendJSON(w, http.StatusCreated, utils.SuccessResponse("Join request created, payment required", ao))
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	payURL, err := h.Service.Pay(r.Context(), chi.URLParam(r, "auctionId"), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Pay: %v", err))
		h.sendError(w, "Could not create payment session", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Payment session created", map[string]string{
		"pay_url": payURL,
	}))
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	a, err := h.Service.PlaceBid(r.Context(), chi.URLParam(r, "auctionId"), auth.UserID(r.Context()), req.Amount)
	if err != nil {
		h.sendError(w, "Bid rejected", err)
		return
	}

	sendJSON(w, http.StatusOK, utils.SuccessResponse("Bid accepted", a))
}

// StripeWebhook handles webhook events from Stripe.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	err := h.Service.HandlePaymentWebhook(r)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))

		var webhookErr *auction.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", "StripeWebhook: successfully processed webhook event")
	w.WriteHeader(http.StatusOK)
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StreamPriceEvents streams live price movements for one auction over
// Server-Sent Events. The stream stays open until the client
// disconnects; the auction must be visible to the public.
func (h *Handler) StreamPriceEvents(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionId")
	if auctionID == "" {
		http.Error(w, "Auction ID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.Service.ViewAuction(r.Context(), auctionID); err != nil {
		h.sendError(w, "Auction not found", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx := r.Context()
	eventChan := h.Prices.Subscribe(ctx, auctionID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"auctionID\":\"%s\"}\n\n", auctionID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to price events for auction: %s", auctionID))

	for {
		select {
		case ev, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for auction: %s", auctionID))
				return
			}

			jsonData, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize price event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: price\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from price events for auction: %s", auctionID))
			return
		}
	}
}

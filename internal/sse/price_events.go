package sse

import (
	"context"
	"sync"

	"ms-auctions/internal/models"
)

// PriceEventEmitter manages SSE connections and broadcasting of live
// price movements to clients watching an auction page.
type PriceEventEmitter struct {
	// key: auctionID, value: slice of client channels
	clients     map[string][]chan models.PriceUpdateEvent
	clientMutex sync.RWMutex
}

func NewPriceEventEmitter() *PriceEventEmitter {
	return &PriceEventEmitter{
		clients: make(map[string][]chan models.PriceUpdateEvent),
	}
}

// Subscribe adds a client to an auction's price stream. The returned
// channel is closed when ctx is cancelled.
func (e *PriceEventEmitter) Subscribe(ctx context.Context, auctionID string) chan models.PriceUpdateEvent {
	clientChan := make(chan models.PriceUpdateEvent, 10)

	e.clientMutex.Lock()
	e.clients[auctionID] = append(e.clients[auctionID], clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(auctionID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a price movement to every client watching the
// auction. Sends are non-blocking; a slow client misses the event
// rather than stalling the bid path.
func (e *PriceEventEmitter) Emit(ev models.PriceUpdateEvent) {
	e.clientMutex.RLock()
	clients := e.clients[ev.AuctionID]
	e.clientMutex.RUnlock()

	for _, clientChan := range clients {
		select {
		case clientChan <- ev:
		default:
			// Channel buffer full, skip this client
		}
	}
}

func (e *PriceEventEmitter) removeClient(auctionID string, clientChan chan models.PriceUpdateEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[auctionID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[auctionID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[auctionID]) == 0 {
		delete(e.clients, auctionID)
	}
}

// ClientCount returns how many clients are watching an auction.
func (e *PriceEventEmitter) ClientCount(auctionID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[auctionID])
}

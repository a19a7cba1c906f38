package notify

import (
	"ms-auctions/internal/models"
	"ms-auctions/internal/sse"
)

// StatusPublisher is the subset of the Kafka producer the fan-out
// needs. Nil-able so the service runs with Kafka disabled.
type StatusPublisher interface {
	PublishPriceUpdate(ev models.PriceUpdateEvent)
	PublishAuctionStatus(ev models.AuctionStatusEvent)
}

// FanOut delivers auction events to both the Kafka stream and the
// in-process SSE emitter. Either sink may be nil.
type FanOut struct {
	Kafka  StatusPublisher
	Prices *sse.PriceEventEmitter
}

func NewFanOut(kafka StatusPublisher, prices *sse.PriceEventEmitter) *FanOut {
	return &FanOut{Kafka: kafka, Prices: prices}
}

func (f *FanOut) PublishPriceUpdate(ev models.PriceUpdateEvent) {
	if f.Kafka != nil {
		f.Kafka.PublishPriceUpdate(ev)
	}
	if f.Prices != nil {
		f.Prices.Emit(ev)
	}
}

func (f *FanOut) PublishAuctionStatus(ev models.AuctionStatusEvent) {
	if f.Kafka != nil {
		f.Kafka.PublishAuctionStatus(ev)
	}
}

package auction_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-auctions/internal/auction"
	auction_db "ms-auctions/internal/auction/db"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
	"ms-auctions/internal/product"
	product_db "ms-auctions/internal/product/db"
)

// fakeGateway is a stand-in payment gateway. It hands out predictable
// session urls and can be told to fail.
type fakeGateway struct {
	sessions   int
	shouldFail bool
	refunds    []string
}

func (g *fakeGateway) CreateJoinCheckoutSession(ctx context.Context, email string, metadata map[string]string) (string, string, error) {
	if g.shouldFail {
		return "", "", errors.New("gateway unreachable")
	}
	g.sessions++
	ref := fmt.Sprintf("cs_test_%d", g.sessions)
	return "https://checkout.test/" + ref, ref, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentRef string) error {
	g.refunds = append(g.refunds, paymentRef)
	return nil
}

type fakeLocker struct {
	denied bool
}

func (l *fakeLocker) LockAuction(ctx context.Context, auctionID, owner string) (bool, error) {
	return !l.denied, nil
}

func (l *fakeLocker) UnlockAuction(ctx context.Context, auctionID, owner string) error {
	return nil
}

// recordingNotifier captures broadcasts for assertions.
type recordingNotifier struct {
	prices   []models.PriceUpdateEvent
	statuses []models.AuctionStatusEvent
}

func (n *recordingNotifier) PublishPriceUpdate(ev models.PriceUpdateEvent) {
	n.prices = append(n.prices, ev)
}

func (n *recordingNotifier) PublishAuctionStatus(ev models.AuctionStatusEvent) {
	n.statuses = append(n.statuses, ev)
}

// harness wires the auction service against a real store on in-memory
// sqlite, with the real product ledger and fake externals.
type harness struct {
	service  *auction.Service
	store    *auction_db.DB
	products *product_db.DB
	gateway  *fakeGateway
	locker   *fakeLocker
	notifier *recordingNotifier
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Auction)(nil),
		(*models.AuctionOrder)(nil),
		(*models.AuctionParticipant)(nil),
		(*models.Product)(nil),
		(*models.User)(nil),
		(*models.Address)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	log := logger.NewLogger()
	t.Cleanup(log.Close)

	store := &auction_db.DB{Bun: bunDB}
	products := &product_db.DB{Bun: bunDB}
	ledger := product.NewService(products, log)
	gateway := &fakeGateway{}
	locker := &fakeLocker{}
	notifier := &recordingNotifier{}

	svc := auction.NewService(store, ledger, gateway, locker, notifier, log, 3)

	h := &harness{
		service:  svc,
		store:    store,
		products: products,
		gateway:  gateway,
		locker:   locker,
		notifier: notifier,
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc.SetClock(func() time.Time { return h.now })
	return h
}

func (h *harness) seedProduct(t *testing.T, id, artistID string) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:           id,
		ArtistID:     artistID,
		Title:        "Sunset in Oil",
		BasePrice:    500,
		Discount:     10,
		AppliedPrice: 450,
		IsAvailable:  true,
		CreatedAt:    h.now,
	}
	_, err := h.store.Bun.NewInsert().Model(p).Exec(context.Background())
	require.NoError(t, err)
	return p
}

func (h *harness) seedUser(t *testing.T, id string) {
	t.Helper()
	u := &models.User{
		ID:          id,
		Email:       id + "@example.com",
		UserName:    id,
		PhoneNumber: "+201000000000",
		CreatedAt:   h.now,
	}
	_, err := h.store.Bun.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)

	addr := &models.Address{
		ID:      "addr-" + id,
		UserID:  id,
		Street:  "12 Gallery St",
		City:    "Cairo",
		Country: "Egypt",
	}
	_, err = h.store.Bun.NewInsert().Model(addr).Exec(context.Background())
	require.NoError(t, err)
}

func (h *harness) createAuction(t *testing.T, artistID, productID string) *models.Auction {
	t.Helper()
	a, err := h.service.CreateAuction(context.Background(), artistID, auction.CreateAuctionRequest{
		ProductID:    productID,
		BeginPrice:   100,
		BeginDate:    h.now.Add(time.Hour),
		DurationDays: 2,
	})
	require.NoError(t, err)
	return a
}

// joinAndPay walks a user through the full join protocol: request,
// checkout session, webhook confirmation.
func (h *harness) joinAndPay(t *testing.T, auctionID, userID string) {
	t.Helper()
	ctx := context.Background()
	ao, err := h.service.RequestToJoin(ctx, auctionID, userID, "addr-"+userID)
	require.NoError(t, err)
	_, err = h.service.Pay(ctx, auctionID, userID)
	require.NoError(t, err)
	require.NoError(t, h.service.ConfirmJoinPayment(ctx, ao.ID, "pi_"+userID))
}

func TestCreateAuctionCapturesProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")

	a := h.createAuction(t, "artist-1", "prod-1")

	assert.Equal(t, models.AuctionNotStarted, a.Status)
	assert.Equal(t, 100.0, a.BeginPrice)
	assert.Equal(t, 100.0, a.VariablePrice)
	assert.Equal(t, a.BeginDate.AddDate(0, 0, 2), a.EndDate)
	// Pre-capture pricing snapshotted for a bid-less close.
	assert.Equal(t, 500.0, a.OldBasePrice)
	assert.Equal(t, 10.0, a.OldDiscount)
	assert.Equal(t, 450.0, a.OldAppliedPrice)

	p, err := h.products.GetProductByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, p.IsAuction)
	assert.Equal(t, 100.0, p.BasePrice)
	assert.Equal(t, 100.0, p.AppliedPrice)
	assert.Equal(t, 0.0, p.Discount)
}

func TestCreateAuctionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")

	// Someone else's product reads as missing.
	_, err := h.service.CreateAuction(ctx, "artist-2", auction.CreateAuctionRequest{
		ProductID: "prod-1", BeginPrice: 100, BeginDate: h.now, DurationDays: 2,
	})
	assert.ErrorIs(t, err, auction.ErrNotFound)

	// Duration over the cap.
	_, err = h.service.CreateAuction(ctx, "artist-1", auction.CreateAuctionRequest{
		ProductID: "prod-1", BeginPrice: 100, BeginDate: h.now, DurationDays: 4,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)

	// Non-positive begin price.
	_, err = h.service.CreateAuction(ctx, "artist-1", auction.CreateAuctionRequest{
		ProductID: "prod-1", BeginPrice: 0, BeginDate: h.now, DurationDays: 2,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)

	// First capture succeeds, second one finds the product taken.
	h.createAuction(t, "artist-1", "prod-1")
	_, err = h.service.CreateAuction(ctx, "artist-1", auction.CreateAuctionRequest{
		ProductID: "prod-1", BeginPrice: 100, BeginDate: h.now, DurationDays: 2,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)
}

func TestUpdateAuctionReprimesPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	newPrice := 250.0
	updated, err := h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		BeginPrice: &newPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, updated.BeginPrice)
	assert.Equal(t, 250.0, updated.VariablePrice)

	p, err := h.products.GetProductByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, p.AppliedPrice)
}

func TestUpdateAuctionSwapsProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedProduct(t, "prod-2", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	newProduct := "prod-2"
	updated, err := h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		ProductID: &newProduct,
	})
	require.NoError(t, err)
	assert.Equal(t, "prod-2", updated.ProductID)

	// Old product released with its snapshot restored.
	oldP, err := h.products.GetProductByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.False(t, oldP.IsAuction)
	assert.Equal(t, 500.0, oldP.BasePrice)
	assert.Equal(t, 450.0, oldP.AppliedPrice)

	newP, err := h.products.GetProductByID(ctx, "prod-2")
	require.NoError(t, err)
	assert.True(t, newP.IsAuction)
	assert.Equal(t, 100.0, newP.AppliedPrice)
}

func TestUpdateAuctionRefusedAfterOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	h.now = a.BeginDate.Add(time.Minute)
	require.NoError(t, h.service.SweepAuctionsToOpen(ctx))

	price := 300.0
	_, err := h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		BeginPrice: &price,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)
}

func TestDeleteAuctionGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedUser(t, "user-a")
	a := h.createAuction(t, "artist-1", "prod-1")

	// A join request blocks deletion, even unpaid.
	_, err := h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	require.NoError(t, err)
	err = h.service.DeleteAuction(ctx, a.ID, "artist-1")
	assert.ErrorIs(t, err, auction.ErrForbidden)

	// Another artist cannot even see it.
	err = h.service.DeleteAuction(ctx, a.ID, "artist-2")
	assert.ErrorIs(t, err, auction.ErrNotFound)

	// A fresh, unjoined auction deletes fine and releases its product.
	h.seedProduct(t, "prod-2", "artist-1")
	b := h.createAuction(t, "artist-1", "prod-2")
	require.NoError(t, h.service.DeleteAuction(ctx, b.ID, "artist-1"))

	p, err := h.products.GetProductByID(ctx, "prod-2")
	require.NoError(t, err)
	assert.False(t, p.IsAuction)
}

func TestDeleteAuctionRefusedAfterOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	h.now = a.BeginDate.Add(time.Minute)
	require.NoError(t, h.service.SweepAuctionsToOpen(ctx))

	err := h.service.DeleteAuction(ctx, a.ID, "artist-1")
	assert.ErrorIs(t, err, auction.ErrForbidden)
}

func TestJoinProtocol(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedUser(t, "user-a")
	a := h.createAuction(t, "artist-1", "prod-1")

	ao, err := h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, ao.PaymentStatus)
	assert.Equal(t, "12 Gallery St", ao.ShippingAddress.Street)

	// Second join request is refused.
	_, err = h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	assert.ErrorIs(t, err, auction.ErrConflict)

	// Unknown address.
	h.seedUser(t, "user-b")
	_, err = h.service.RequestToJoin(ctx, a.ID, "user-b", "addr-user-a")
	assert.ErrorIs(t, err, auction.ErrNotFound)

	payURL, err := h.service.Pay(ctx, a.ID, "user-a")
	require.NoError(t, err)
	assert.Contains(t, payURL, "https://checkout.test/")

	// Retrying pay regenerates a session while still Pending.
	payURL2, err := h.service.Pay(ctx, a.ID, "user-a")
	require.NoError(t, err)
	assert.NotEqual(t, payURL, payURL2)

	require.NoError(t, h.service.ConfirmJoinPayment(ctx, ao.ID, "pi_1"))

	// Paid users cannot open another checkout.
	_, err = h.service.Pay(ctx, a.ID, "user-a")
	assert.ErrorIs(t, err, auction.ErrConflict)

	// Confirmation replays are harmless.
	require.NoError(t, h.service.ConfirmJoinPayment(ctx, ao.ID, "pi_1"))

	count, err := h.store.CountParticipants(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPayGatewayFailureLeavesRecordPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedUser(t, "user-a")
	a := h.createAuction(t, "artist-1", "prod-1")

	_, err := h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	require.NoError(t, err)

	h.gateway.shouldFail = true
	_, err = h.service.Pay(ctx, a.ID, "user-a")
	assert.ErrorIs(t, err, auction.ErrExternalService)

	ao, err := h.store.GetAuctionOrder(ctx, a.ID, "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, ao.PaymentStatus)

	// The user simply retries once the gateway recovers.
	h.gateway.shouldFail = false
	_, err = h.service.Pay(ctx, a.ID, "user-a")
	assert.NoError(t, err)
}

func TestPlaceBidEligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedUser(t, "user-a")
	h.seedUser(t, "user-b")
	a := h.createAuction(t, "artist-1", "prod-1")

	// Not open yet.
	_, err := h.service.PlaceBid(ctx, a.ID, "user-a", 120)
	assert.ErrorIs(t, err, auction.ErrConflict)

	h.now = a.BeginDate.Add(time.Minute)
	require.NoError(t, h.service.SweepAuctionsToOpen(ctx))

	// No join record.
	_, err = h.service.PlaceBid(ctx, a.ID, "user-a", 120)
	assert.ErrorIs(t, err, auction.ErrForbidden)

	// Joined but unpaid.
	_, err = h.service.RequestToJoin(ctx, a.ID, "user-b", "addr-user-b")
	require.NoError(t, err)
	_, err = h.service.PlaceBid(ctx, a.ID, "user-b", 120)
	assert.ErrorIs(t, err, auction.ErrForbidden)

	// Paid participant bids fine and the broadcast goes out.
	h.joinAndPay(t, a.ID, "user-a")
	updated, err := h.service.PlaceBid(ctx, a.ID, "user-a", 120)
	require.NoError(t, err)
	assert.Equal(t, 120.0, updated.VariablePrice)
	assert.Equal(t, "user-a", updated.HighestBidderID)
	require.Len(t, h.notifier.prices, 1)
	assert.Equal(t, 120.0, h.notifier.prices[0].VariablePrice)

	// Undercut and tie are rejected.
	_, err = h.service.PlaceBid(ctx, a.ID, "user-a", 110)
	assert.ErrorIs(t, err, auction.ErrConflict)
	_, err = h.service.PlaceBid(ctx, a.ID, "user-a", 120)
	assert.ErrorIs(t, err, auction.ErrConflict)
}

func TestUpdateAuctionRejectedEditLeavesProductsUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedProduct(t, "prod-2", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	// A price change paired with an invalid duration: the whole edit is
	// rejected and no reprice may land on the captured product.
	price := 999.0
	badDays := 9
	_, err := h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		BeginPrice:   &price,
		DurationDays: &badDays,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)

	p1, err := h.products.GetProductByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, p1.IsAuction)
	assert.Equal(t, 100.0, p1.BasePrice)
	assert.Equal(t, 100.0, p1.AppliedPrice)

	// A product swap paired with an invalid duration: the capture must
	// not move either way.
	swapTo := "prod-2"
	_, err = h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		ProductID:    &swapTo,
		DurationDays: &badDays,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)

	p1, err = h.products.GetProductByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, p1.IsAuction)

	p2, err := h.products.GetProductByID(ctx, "prod-2")
	require.NoError(t, err)
	assert.False(t, p2.IsAuction)
	assert.Equal(t, 500.0, p2.BasePrice)
	assert.Equal(t, 450.0, p2.AppliedPrice)

	// Same for a swap paired with a non-positive begin price.
	zero := 0.0
	_, err = h.service.UpdateAuction(ctx, a.ID, "artist-1", auction.UpdateAuctionRequest{
		ProductID:  &swapTo,
		BeginPrice: &zero,
	})
	assert.ErrorIs(t, err, auction.ErrConflict)

	p2, err = h.products.GetProductByID(ctx, "prod-2")
	require.NoError(t, err)
	assert.False(t, p2.IsAuction)

	// The auction row never moved off its original product or price.
	got, err := h.service.GetMyAuction(ctx, a.ID, "artist-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", got.ProductID)
	assert.Equal(t, 100.0, got.BeginPrice)
	assert.Equal(t, 2, got.DurationDays)
}

func TestLatePaymentAfterCloseIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "prod-1", "artist-1")
	h.seedUser(t, "user-a")
	a := h.createAuction(t, "artist-1", "prod-1")

	ao, err := h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	require.NoError(t, err)
	_, err = h.service.Pay(ctx, a.ID, "user-a")
	require.NoError(t, err)

	// The auction runs its course before the payment confirmation
	// arrives.
	h.now = a.BeginDate.Add(time.Minute)
	require.NoError(t, h.service.SweepAuctionsToOpen(ctx))
	h.now = a.EndDate.Add(time.Minute)
	require.NoError(t, h.service.SweepAuctionsToClose(ctx))

	require.NoError(t, h.service.ConfirmJoinPayment(ctx, ao.ID, "pi_late"))

	// The fee goes back, the record stays Pending and the user never
	// becomes a participant.
	assert.Equal(t, []string{"pi_late"}, h.gateway.refunds)
	got, err := h.store.GetAuctionOrder(ctx, a.ID, "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)

	count, err := h.store.CountParticipants(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

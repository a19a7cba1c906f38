package product_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
	"ms-auctions/internal/product"
	product_db "ms-auctions/internal/product/db"
)

func setupService(t *testing.T) (*product.Service, *product_db.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	err = bunDB.ResetModel(ctx, (*models.Product)(nil))
	require.NoError(t, err)

	log := logger.NewLogger()
	t.Cleanup(log.Close)

	store := &product_db.DB{Bun: bunDB}
	return product.NewService(store, log), store
}

func seedProduct(t *testing.T, store *product_db.DB, id, artistID string) {
	t.Helper()
	_, err := store.Bun.NewInsert().Model(&models.Product{
		ID:           id,
		ArtistID:     artistID,
		Title:        "Blue Vase",
		Description:  "Porcelain, 1998",
		BasePrice:    500,
		Discount:     10,
		AppliedPrice: 450,
		IsAvailable:  true,
		CreatedAt:    time.Now(),
	}).Exec(context.Background())
	require.NoError(t, err)
}

func TestUpdateProductRecomputesAppliedPrice(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")
	ctx := context.Background()

	newPrice := 800.0
	newDiscount := 25.0
	p, err := svc.UpdateProduct(ctx, "prod-1", "artist-1", product.UpdateProductRequest{
		BasePrice: &newPrice,
		Discount:  &newDiscount,
	})
	require.NoError(t, err)
	assert.Equal(t, 800.0, p.BasePrice)
	assert.Equal(t, 600.0, p.AppliedPrice)

	stored, err := svc.Find(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 600.0, stored.AppliedPrice)
}

func TestUpdateProductOwnership(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")

	title := "Renamed"
	_, err := svc.UpdateProduct(context.Background(), "prod-1", "artist-2", product.UpdateProductRequest{Title: &title})
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestUpdateProductRefusedWhileCaptured(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")
	ctx := context.Background()

	snap, err := svc.Reserve(ctx, "prod-1", "artist-1", 100)
	require.NoError(t, err)
	assert.Equal(t, 500.0, snap.BasePrice)
	assert.Equal(t, 10.0, snap.Discount)
	assert.Equal(t, 450.0, snap.AppliedPrice)

	title := "Renamed"
	_, err = svc.UpdateProduct(ctx, "prod-1", "artist-1", product.UpdateProductRequest{Title: &title})
	assert.ErrorIs(t, err, product.ErrCaptured)

	// After release the edit goes through and the snapshot is back.
	require.NoError(t, svc.Release(ctx, "prod-1", snap))
	p, err := svc.UpdateProduct(ctx, "prod-1", "artist-1", product.UpdateProductRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Title)
	assert.Equal(t, 500.0, p.BasePrice)
	assert.Equal(t, 450.0, p.AppliedPrice)
}

func TestReserveIsExclusive(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "prod-1", "artist-1", 100)
	require.NoError(t, err)

	// A second capture must lose the gate.
	_, err = svc.Reserve(ctx, "prod-1", "artist-1", 200)
	require.Error(t, err)

	p, err := svc.Find(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.BasePrice)
	assert.Equal(t, 100.0, p.AppliedPrice)
	assert.True(t, p.IsAuction)
}

func TestRepriceOnlyWhileCaptured(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")
	ctx := context.Background()

	err := svc.Reprice(ctx, "prod-1", 250)
	assert.ErrorIs(t, err, product.ErrNotCaptured)

	_, err = svc.Reserve(ctx, "prod-1", "artist-1", 100)
	require.NoError(t, err)

	require.NoError(t, svc.Reprice(ctx, "prod-1", 250))
	p, err := svc.Find(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, p.BasePrice)
	assert.Equal(t, 250.0, p.AppliedPrice)
}

func TestFinalizeSaleFixesHammerPrice(t *testing.T) {
	svc, store := setupService(t)
	seedProduct(t, store, "prod-1", "artist-1")
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "prod-1", "artist-1", 100)
	require.NoError(t, err)
	require.NoError(t, svc.FinalizeSale(ctx, "prod-1", 340))

	p, err := svc.Find(ctx, "prod-1")
	require.NoError(t, err)
	assert.False(t, p.IsAvailable)
	assert.False(t, p.IsAuction)
	assert.Equal(t, 340.0, p.BasePrice)
	assert.Equal(t, 340.0, p.AppliedPrice)
	assert.Equal(t, 0.0, p.Discount)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-auctions/internal/config"
	"ms-auctions/internal/database/migrations"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/models"
)

// Migration and dev-seed entrypoint, separate from the service binary:
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down
//	go run ./cmd/migrate to <version>
//	go run ./cmd/migrate seed
func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
	case "to":
		if len(os.Args) < 3 {
			log.Fatal("MIGRATE", "Usage: migrate to <version>")
		}
		var version uint64
		version, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Invalid version %q: %v", os.Args[2], err))
		}
		err = runner.MigrateTo(uint(version))
	case "seed":
		if err = runner.RunMigrations(); err == nil {
			err = seed(context.Background(), bunDB)
		}
	default:
		log.Fatal("MIGRATE", fmt.Sprintf("Unknown command %q", cmd))
	}

	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Command %q failed: %v", cmd, err))
	}
	log.Info("MIGRATE", fmt.Sprintf("Command %q completed", cmd))
}

// seed inserts a small local-dev fixture: an artist with two available
// products and a collector with a shipping address, enough to walk the
// full create/join/pay/bid flow by hand.
func seed(ctx context.Context, bunDB *bun.DB) error {
	now := time.Now()

	users := []models.User{
		{ID: "artist-seed", Email: "artist@artspace.local", UserName: "seed_artist", CreatedAt: now},
		{ID: "collector-seed", Email: "collector@artspace.local", UserName: "seed_collector", PhoneNumber: "+201000000000", CreatedAt: now},
	}
	if _, err := bunDB.NewInsert().Model(&users).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	addresses := []models.Address{
		{ID: "addr-collector-seed", UserID: "collector-seed", Street: "12 Gallery St", City: "Cairo", Country: "Egypt"},
	}
	if _, err := bunDB.NewInsert().Model(&addresses).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed addresses: %w", err)
	}

	products := []models.Product{
		{ID: "product-seed-1", ArtistID: "artist-seed", Title: "Sunset in Oil", Description: "Oil on canvas, 60x80", BasePrice: 500, Discount: 10, AppliedPrice: 450, IsAvailable: true, CreatedAt: now},
		{ID: "product-seed-2", ArtistID: "artist-seed", Title: "Blue Vase", Description: "Porcelain, 1998", BasePrice: 300, AppliedPrice: 300, IsAvailable: true, CreatedAt: now},
	}
	if _, err := bunDB.NewInsert().Model(&products).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	return nil
}

// Command seed-db bootstraps a local or integration database: it runs the
// migrations, upserts a small set of storefront coupons, and installs admin
// and delivery API keys.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/repository"
)

const (
	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type,
		value, min_order_value, max_discount_cap, max_uses, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_order_value = EXCLUDED.min_order_value,
			max_discount_cap = EXCLUDED.max_discount_cap,
			max_uses = EXCLUDED.max_uses,
			active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

type couponSeed struct {
	code           string
	description    string
	discountType   string
	value          decimal.Decimal
	minOrderValue  decimal.Decimal
	maxDiscountCap decimal.Decimal
	maxUses        int
}

func main() {
	var (
		databaseURL  string
		adminKey     string
		deliveryKey  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or CAKEKART_SEED_ADMIN_KEY env)")
	flag.StringVar(&deliveryKey, "delivery-key", "", "delivery API key to seed (or CAKEKART_SEED_DELIVERY_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CAKEKART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("CAKEKART_SEED_ADMIN_KEY")
	}
	if adminKey == "" {
		slog.Error("admin API key is required: set --admin-key or CAKEKART_SEED_ADMIN_KEY")
		os.Exit(1)
	}
	if deliveryKey == "" {
		deliveryKey = os.Getenv("CAKEKART_SEED_DELIVERY_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CAKEKART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, adminKey, deliveryKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, adminKey, deliveryKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, "admin", "Admin console key", adminKey, pepper, []string{"admin"}); err != nil {
		return errors.Wrap(err, "seed admin API key")
	}
	if deliveryKey != "" {
		if err := seedAPIKey(ctx, pool, "delivery", "Delivery dashboard key", deliveryKey, pepper, []string{"delivery"}); err != nil {
			return errors.Wrap(err, "seed delivery API key")
		}
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding storefront coupons")

	coupons := []couponSeed{
		{
			code:          "SAVE100",
			description:   "Flat 100 off on orders above 500",
			discountType:  "fixed",
			value:         decimal.NewFromInt(100),
			minOrderValue: decimal.NewFromInt(500),
		},
		{
			code:           "WELCOME20",
			description:    "Welcome: 20% off, up to 200",
			discountType:   "percentage",
			value:          decimal.NewFromInt(20),
			maxDiscountCap: decimal.NewFromInt(200),
		},
		{
			code:          "FESTIVE10",
			description:   "Festive season: 10% off on orders above 999",
			discountType:  "percentage",
			value:         decimal.NewFromInt(10),
			minOrderValue: decimal.NewFromInt(999),
			maxUses:       1000,
		},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.description, c.discountType,
			c.value, c.minOrderValue, c.maxDiscountCap, c.maxUses,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, id, name, apiKey, pepper string, scopes []string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, id, keyHash, name, scopes); err != nil {
		return errors.Wrapf(err, "upsert API key %s", id)
	}

	slog.Info("upserted API key", slog.String("id", id), slog.String("name", name))
	return nil
}

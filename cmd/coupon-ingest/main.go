// Command coupon-ingest loads bulk promo-code dumps into the coupons table.
// Marketing exports arrive as three gzipped files of candidate codes; a code
// is accepted only when it appears in at least two of the three files. The
// files are far too large to hold in memory, so acceptance is computed with
// per-file bloom filters built in a first pass and cross-checked in a second.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cakekart/checkout-engine/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10

	// A code counts as valid when it shows up in at least this many files.
	minFileHits = 2
)

const upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type,
	value, min_order_value, max_discount_cap, max_uses, active)
	VALUES ($1, $2, $3, $4, $5, $6, 0, TRUE)
	ON CONFLICT (code) DO UPDATE SET
		description = EXCLUDED.description,
		discount_type = EXCLUDED.discount_type,
		value = EXCLUDED.value,
		min_order_value = EXCLUDED.min_order_value,
		max_discount_cap = EXCLUDED.max_discount_cap,
		active = TRUE`

// codeRule describes the discount rule to apply for a known coupon code.
type codeRule struct {
	discountType   string
	value          string
	minOrderValue  string
	maxDiscountCap string
	description    string
}

var codeRules = map[string]codeRule{
	"CAKEDAY1": {discountType: "percentage", value: "25", maxDiscountCap: "250", description: "Cake day: 25% off, up to 250"},
	"SWEET150": {discountType: "fixed", value: "150", minOrderValue: "899", description: "Flat 150 off on orders above 899"},
	"FESTIVAL": {discountType: "percentage", value: "15", maxDiscountCap: "300", description: "Festival special: 15% off, up to 300"},
	"GIFTMORE": {discountType: "fixed", value: "75", minOrderValue: "599", description: "Flat 75 off on gifts above 599"},
	"MIDNIGHT": {discountType: "percentage", value: "12", description: "Midnight delivery: 12% off"},
	"FIRSTBOX": {discountType: "percentage", value: "20", maxDiscountCap: "200", description: "First order: 20% off, up to 200"},
}

// Codes from the dump without a dedicated rule get a generic discount.
var defaultRule = codeRule{
	discountType: "percentage",
	value:        "10",
	description:  "Valid promo code: 10% off",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := sourceFiles(dataDir)
	if err != nil {
		return err
	}

	slog.Info("pass 1: building per-file bloom filters", slog.Int("files", len(files)))

	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-checking codes between files")

	accepted, err := acceptedCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "collect accepted codes")
	}

	slog.Info("accepted codes", slog.Int("count", len(accepted)))

	if len(accepted) == 0 {
		slog.Info("nothing to insert")
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, pool, accepted)
}

// sourceFiles resolves the expected dump paths and fails fast on a missing
// one, before either streaming pass starts.
func sourceFiles(dataDir string) ([]string, error) {
	files := make([]string, 0, numFiles)
	for i := 1; i <= numFiles; i++ {
		path := filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i))
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "check file %s", path)
		}
		files = append(files, path)
	}
	return files, nil
}

// buildFilters streams every dump once and builds a bloom filter of its
// codes. Files are processed concurrently; each goroutine owns one slot of
// the result slice.
func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var seen uint64

			err := scanGzipLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				filter.AddString(code)
				if seen++; seen%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", seen))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 file done", slog.Int("file", i+1), slog.Uint64("codes", seen))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// acceptedCodes re-streams every dump and tests each code against the OTHER
// files' filters. Per file it records a presence bitmask per candidate; the
// merged masks tell how many files a code appeared in. Bloom false positives
// can overcount, never undercount, so no valid code is lost.
func acceptedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			ownBit := uint(1) << uint(i)
			var seen uint64

			err := scanGzipLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				if seen++; seen%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("file", i+1), slog.Uint64("codes", seen))
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= ownBit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d for candidates", i+1)
			}

			slog.Info("pass 2 file done",
				slog.Int("file", i+1),
				slog.Uint64("codes", seen),
				slog.Int("candidates", len(candidates)),
			)
			perFile[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeCandidates(perFile), nil
}

// mergeCandidates ORs the per-file presence masks together and keeps codes
// that appeared in minFileHits or more files.
func mergeCandidates(perFile []map[string]uint) []string {
	merged := make(map[string]uint)
	for _, candidates := range perFile {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var accepted []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFileHits {
			accepted = append(accepted, code)
		}
	}
	return accepted
}

// scanGzipLines opens a gzip-compressed file and calls fn for each line.
func scanGzipLines(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCoupons upserts every accepted code with its rule, falling back to
// defaultRule for codes without a dedicated one.
func writeCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	for i, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}

		value, err := decimal.NewFromString(rule.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for code %s", code)
		}
		minOrder, err := parseOptionalDecimal(rule.minOrderValue)
		if err != nil {
			return errors.Wrapf(err, "parse min order value for code %s", code)
		}
		discountCap, err := parseOptionalDecimal(rule.maxDiscountCap)
		if err != nil {
			return errors.Wrapf(err, "parse discount cap for code %s", code)
		}

		_, err = pool.Exec(ctx, upsertCouponSQL,
			code, rule.description, rule.discountType, value, minOrder, discountCap,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

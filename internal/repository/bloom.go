package repository

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/cakekart/checkout-engine/internal/domain/coupon"
)

const (
	// Sized well above any realistic number of active codes so the false
	// positive rate holds even after heavy ingest runs.
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

// CodeLister enumerates the active coupon codes the bloom filter is built
// from.
type CodeLister interface {
	ListActiveCodes(ctx context.Context) ([]string, error)
}

var _ coupon.Repository = (*BloomCouponRepository)(nil)

// BloomCouponRepository fronts a coupon repository with a bloom filter of the
// known codes. Lookups for codes that are definitely not in the set fail fast
// without touching the database, which keeps garbage-code probing off the
// pool. False positives fall through to the inner repository, so answers are
// never wrong, only occasionally slower.
//
// Coupons are inserted by separate processes (seed and ingest runs), so the
// filter must be rebuilt to pick them up: call Refresh on an interval. A code
// inserted between refreshes reads as invalid until the next rebuild.
type BloomCouponRepository struct {
	inner  coupon.Repository
	codes  CodeLister
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewBloomCouponRepository builds the initial filter from codes and wraps
// inner with it.
func NewBloomCouponRepository(ctx context.Context, codes CodeLister, inner coupon.Repository) (*BloomCouponRepository, error) {
	r := &BloomCouponRepository{inner: inner, codes: codes}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh rebuilds the filter from the current active codes and swaps it in.
// Lookups keep using the old filter until the swap, so there is no window
// where the filter is empty.
func (r *BloomCouponRepository) Refresh(ctx context.Context) error {
	codes, err := r.codes.ListActiveCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}

	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for _, code := range codes {
		filter.AddString(normalizeCode(code))
	}
	r.filter.Store(filter)
	return nil
}

// FindByCode short-circuits codes the filter has never seen.
func (r *BloomCouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	if !r.filter.Load().TestString(normalizeCode(code)) {
		return nil, coupon.ErrInvalidCode
	}
	return r.inner.FindByCode(ctx, code)
}

// Uses delegates to the inner repository.
func (r *BloomCouponRepository) Uses(ctx context.Context, code, scopeKey string) (int, error) {
	return r.inner.Uses(ctx, code, scopeKey)
}

// RecordUse delegates to the inner repository.
func (r *BloomCouponRepository) RecordUse(ctx context.Context, code, scopeKey string) error {
	return r.inner.RecordUse(ctx, code, scopeKey)
}

// normalizeCode folds case so filter membership matches the repository's
// case-insensitive lookup.
func normalizeCode(code string) string {
	return strings.ToUpper(code)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
)

const (
	getCartSessionSQL = `SELECT data, created_at, updated_at
		FROM cart_sessions WHERE id = $1`

	upsertCartSessionSQL = `INSERT INTO cart_sessions (id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	deleteCartSessionSQL = `DELETE FROM cart_sessions WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository persists cart sessions as JSONB documents. Sessions are
// small and read-modify-written as a unit, so a document per session beats
// normalizing the items out.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get loads the session with the given ID. Returns cart.ErrSessionNotFound
// when the session does not exist.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Session, error) {
	var (
		data []byte
		sess cart.Session
	)
	err := r.pool.QueryRow(ctx, getCartSessionSQL, id).Scan(&data, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading cart session %q: %w", id, err)
	}

	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding cart session %q: %w", id, err)
	}
	sess.ID = id
	return &sess, nil
}

// Save upserts the session document.
func (r *CartRepository) Save(ctx context.Context, sess *cart.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding cart session %q: %w", sess.ID, err)
	}

	_, err = r.pool.Exec(ctx, upsertCartSessionSQL,
		sess.ID, data, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving cart session %q: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the session. Deleting an absent session is not an error.
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteCartSessionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting cart session %q: %w", id, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// Relationship is the running record of completed dates between two wallets.
// WalletA is always the lexicographically smaller address.
type Relationship struct {
	WalletA        string     `json:"walletA"`
	WalletB        string     `json:"walletB"`
	CompletedDates int        `json:"completedDates"`
	Affinity       float64    `json:"affinity"`
	LastDateAt     *time.Time `json:"lastDateAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// RecordDate folds a completed date's rating into the pair's relationship.
// The first date seeds the affinity; later ones apply an EWMA with weight alpha.
func (c conn) RecordDate(ctx context.Context, a, b string, rating, alpha float64, at time.Time) (*Relationship, error) {
	lo, hi := wallet.Order(a, b)
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO relationships (wallet_a, wallet_b, completed_dates, affinity, last_date_at, created_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(wallet_a, wallet_b) DO UPDATE SET
			completed_dates = completed_dates + 1,
			affinity = ? * excluded.affinity + (1 - ?) * affinity,
			last_date_at = excluded.last_date_at`,
		lo, hi, rating, millis(at), millis(at), alpha, alpha)
	if err != nil {
		return nil, apperr.Store("upsert relationship", err)
	}
	rel, err := c.Relationship(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// Relationship returns the record for a pair, or nil when they never dated.
func (c conn) Relationship(ctx context.Context, a, b string) (*Relationship, error) {
	lo, hi := wallet.Order(a, b)
	row := c.q.QueryRowContext(ctx, `
		SELECT wallet_a, wallet_b, completed_dates, affinity, last_date_at, created_at
		FROM relationships WHERE wallet_a = ? AND wallet_b = ?`, lo, hi)
	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get relationship", err)
	}
	return rel, nil
}

// RelationshipsFor lists every relationship involving walletAddr, highest affinity first.
func (c conn) RelationshipsFor(ctx context.Context, walletAddr string, limit int) ([]*Relationship, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.q.QueryContext(ctx, `
		SELECT wallet_a, wallet_b, completed_dates, affinity, last_date_at, created_at
		FROM relationships WHERE wallet_a = ? OR wallet_b = ?
		ORDER BY affinity DESC, completed_dates DESC LIMIT ?`, walletAddr, walletAddr, limit)
	if err != nil {
		return nil, apperr.Store("query relationships", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, apperr.Store("scan relationship", err)
		}
		out = append(out, rel)
	}
	return out, apperr.Store("iterate relationships", rows.Err())
}

func scanRelationship(s scanner) (*Relationship, error) {
	var rel Relationship
	var last sql.NullInt64
	var created int64
	if err := s.Scan(&rel.WalletA, &rel.WalletB, &rel.CompletedDates, &rel.Affinity, &last, &created); err != nil {
		return nil, err
	}
	rel.LastDateAt = fromMillis(last)
	rel.CreatedAt = time.UnixMilli(created).UTC()
	return &rel, nil
}

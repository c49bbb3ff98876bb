// Package ledger keeps per-wallet token balances as an append-only list of
// signed entries. A balance is the sum of its entries and never goes negative.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// Schema creates the ledger tables.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT UNIQUE NOT NULL,
    wallet TEXT NOT NULL,
    currency TEXT NOT NULL,
    delta INTEGER NOT NULL,
    reason TEXT NOT NULL,
    invitation_id INTEGER,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_wallet_currency ON ledger_entries(wallet, currency);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_invitation_posting
    ON ledger_entries(invitation_id, wallet, currency, reason)
    WHERE invitation_id IS NOT NULL;
`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// Posting describes a single credit or debit request.
type Posting struct {
	Wallet       string
	Currency     Currency
	Amount       Amount
	Reason       Reason
	InvitationID int64
}

// Entry is a persisted ledger row. Delta is negative for debits.
type Entry struct {
	ID           int64
	EntryID      string
	Wallet       string
	Currency     Currency
	Delta        Amount
	Reason       Reason
	InvitationID int64
	CreatedAt    time.Time
}

// Balance is a wallet's total in one currency.
type Balance struct {
	Wallet   string
	Currency Currency
	Amount   Amount
}

// Ledger posts entries and answers balance queries.
type Ledger struct {
	db    *sql.DB
	locks *keyedMutex
	now   func() time.Time
}

// New returns a ledger over db. The schema must already exist.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, locks: newKeyedMutex(), now: time.Now}
}

// Lock serialises debits for one wallet and currency. Callers composing a
// SpendTx into a wider transaction must hold it from before BeginTx until
// after Commit or Rollback.
func (l *Ledger) Lock(walletAddr string, c Currency) (unlock func()) {
	return l.locks.lock(string(c) + "|" + walletAddr)
}

// Credit adds a non-negative amount to a wallet.
func (l *Ledger) Credit(ctx context.Context, p Posting) (Entry, error) {
	return l.CreditTx(ctx, l.db, p)
}

// CreditTx is Credit inside the caller's transaction.
func (l *Ledger) CreditTx(ctx context.Context, q DBTX, p Posting) (Entry, error) {
	if p.Reason == "" {
		p.Reason = ReasonAdminAward
	}
	p, err := validate(p, true)
	if err != nil {
		return Entry{}, err
	}
	return l.insert(ctx, q, p, p.Amount)
}

// Spend debits a wallet after checking the balance covers it.
func (l *Ledger) Spend(ctx context.Context, p Posting) (Entry, error) {
	if p.Reason == "" {
		p.Reason = ReasonSpend
	}
	p, err := validate(p, false)
	if err != nil {
		return Entry{}, err
	}
	unlock := l.Lock(p.Wallet, p.Currency)
	defer unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, apperr.Store("begin ledger transaction", err)
	}
	entry, err := l.SpendTx(ctx, tx, p)
	if err != nil {
		_ = tx.Rollback()
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, apperr.Store("commit ledger transaction", err)
	}
	return entry, nil
}

// SpendTx is Spend inside the caller's transaction. The caller holds Lock.
func (l *Ledger) SpendTx(ctx context.Context, q DBTX, p Posting) (Entry, error) {
	if p.Reason == "" {
		p.Reason = ReasonSpend
	}
	p, err := validate(p, false)
	if err != nil {
		return Entry{}, err
	}
	bal, err := balanceOf(ctx, q, p.Wallet, p.Currency)
	if err != nil {
		return Entry{}, err
	}
	if bal < p.Amount {
		return Entry{}, apperr.New(apperr.CodeInsufficientBalance,
			fmt.Sprintf("%s balance %s is below %s", p.Currency, bal, p.Amount))
	}
	return l.insert(ctx, q, p, -p.Amount)
}

func (l *Ledger) insert(ctx context.Context, q DBTX, p Posting, delta Amount) (Entry, error) {
	e := Entry{
		EntryID:      uuid.NewString(),
		Wallet:       p.Wallet,
		Currency:     p.Currency,
		Delta:        delta,
		Reason:       p.Reason,
		InvitationID: p.InvitationID,
		CreatedAt:    l.now().UTC(),
	}
	var inv any
	if p.InvitationID != 0 {
		inv = p.InvitationID
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (entry_id, wallet, currency, delta, reason, invitation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Wallet, string(e.Currency), int64(e.Delta), string(e.Reason), inv, e.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Entry{}, apperr.Wrap(apperr.CodeAlreadyResolved,
				fmt.Sprintf("%s already posted for invitation %d", p.Reason, p.InvitationID), err)
		}
		return Entry{}, apperr.Store("insert ledger entry", err)
	}
	e.ID, _ = res.LastInsertId()
	return e, nil
}

// BalanceOf returns a wallet's balance in one currency. Unknown wallets hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, walletAddr string, c Currency) (Amount, error) {
	w, err := wallet.Normalize(walletAddr)
	if err != nil {
		return 0, err
	}
	if !c.Valid() {
		return 0, apperr.New(apperr.CodeUnknownCurrency, fmt.Sprintf("unknown currency %q", c))
	}
	return balanceOf(ctx, l.db, w, c)
}

// Balances returns a wallet's balance in every currency.
func (l *Ledger) Balances(ctx context.Context, walletAddr string) (map[Currency]Amount, error) {
	w, err := wallet.Normalize(walletAddr)
	if err != nil {
		return nil, err
	}
	out := make(map[Currency]Amount, 3)
	for _, c := range Currencies() {
		out[c] = 0
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT currency, COALESCE(SUM(delta), 0) FROM ledger_entries WHERE wallet = ? GROUP BY currency`, w)
	if err != nil {
		return nil, apperr.Store("query balances", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		var sum int64
		if err := rows.Scan(&c, &sum); err != nil {
			return nil, apperr.Store("scan balance", err)
		}
		out[Currency(c)] = Amount(sum)
	}
	return out, apperr.Store("iterate balances", rows.Err())
}

// History lists a wallet's entries newest first.
func (l *Ledger) History(ctx context.Context, walletAddr string, limit, offset int) ([]Entry, error) {
	w, err := wallet.Normalize(walletAddr)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, entry_id, wallet, currency, delta, reason, COALESCE(invitation_id, 0), created_at
		FROM ledger_entries WHERE wallet = ? ORDER BY id DESC LIMIT ? OFFSET ?`, w, limit, offset)
	if err != nil {
		return nil, apperr.Store("query ledger history", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var c, r string
		var delta, created int64
		if err := rows.Scan(&e.ID, &e.EntryID, &e.Wallet, &c, &delta, &r, &e.InvitationID, &created); err != nil {
			return nil, apperr.Store("scan ledger entry", err)
		}
		e.Currency = Currency(c)
		e.Reason = Reason(r)
		e.Delta = Amount(delta)
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, apperr.Store("iterate ledger history", rows.Err())
}

// EntriesForInvitation lists every posting tied to an invitation, oldest first.
func (l *Ledger) EntriesForInvitation(ctx context.Context, invitationID int64) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, entry_id, wallet, currency, delta, reason, created_at
		FROM ledger_entries WHERE invitation_id = ? ORDER BY id`, invitationID)
	if err != nil {
		return nil, apperr.Store("query invitation postings", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var c, r string
		var delta, created int64
		if err := rows.Scan(&e.ID, &e.EntryID, &e.Wallet, &c, &delta, &r, &created); err != nil {
			return nil, apperr.Store("scan ledger entry", err)
		}
		e.Currency = Currency(c)
		e.Reason = Reason(r)
		e.Delta = Amount(delta)
		e.InvitationID = invitationID
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, apperr.Store("iterate invitation postings", rows.Err())
}

// Leaderboard returns the wallets with the highest balance in one currency.
func (l *Ledger) Leaderboard(ctx context.Context, c Currency, limit int) ([]Balance, error) {
	if !c.Valid() {
		return nil, apperr.New(apperr.CodeUnknownCurrency, fmt.Sprintf("unknown currency %q", c))
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT wallet, SUM(delta) AS total FROM ledger_entries
		WHERE currency = ? GROUP BY wallet HAVING total > 0
		ORDER BY total DESC, wallet ASC LIMIT ?`, string(c), limit)
	if err != nil {
		return nil, apperr.Store("query leaderboard", err)
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		var total int64
		if err := rows.Scan(&b.Wallet, &total); err != nil {
			return nil, apperr.Store("scan leaderboard row", err)
		}
		b.Currency = c
		b.Amount = Amount(total)
		out = append(out, b)
	}
	return out, apperr.Store("iterate leaderboard", rows.Err())
}

func balanceOf(ctx context.Context, q DBTX, w string, c Currency) (Amount, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE wallet = ? AND currency = ?`,
		w, string(c)).Scan(&sum)
	if err != nil {
		return 0, apperr.Store("query balance", err)
	}
	return Amount(sum), nil
}

func validate(p Posting, allowZero bool) (Posting, error) {
	w, err := wallet.Normalize(p.Wallet)
	if err != nil {
		return p, err
	}
	p.Wallet = w
	if !p.Currency.Valid() {
		return p, apperr.New(apperr.CodeUnknownCurrency, fmt.Sprintf("unknown currency %q", p.Currency))
	}
	if p.Amount < 0 || (p.Amount == 0 && !allowZero) {
		return p, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("invalid amount %s", p.Amount))
	}
	return p, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

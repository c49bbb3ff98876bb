package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
)

// Status is an invitation lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCompleted, StatusExpired:
		return st, nil
	}
	return "", apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("unknown invitation status %q", s))
}

// Speaker identifies who said a conversation turn.
type Speaker string

const (
	SpeakerInviter Speaker = "inviter"
	SpeakerInvitee Speaker = "invitee"
)

// Turn is one line of a date conversation. Fallback marks canned filler.
type Turn struct {
	Speaker  Speaker `json:"speaker"`
	Message  string  `json:"message"`
	Fallback bool    `json:"fallback,omitempty"`
}

// Rewards are the outcome figures of a completed date.
type Rewards struct {
	AverageRating float64 `json:"averageRating"`
	PmonAwarded   float64 `json:"pmonAwarded"`
	CharmAwarded  float64 `json:"charmAwarded"`
	Compatibility float64 `json:"compatibility"`
}

// Invitation is a stored date invitation.
type Invitation struct {
	ID            int64           `json:"id"`
	InviterWallet string          `json:"inviterWallet"`
	InviteeWallet string          `json:"inviteeWallet"`
	DateType      compat.DateType `json:"dateType"`
	Venue         compat.Venue    `json:"venue"`
	Message       string          `json:"message"`
	Reply         string          `json:"reply,omitempty"`
	Stake         ledger.Amount   `json:"stake"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	RespondedAt   *time.Time      `json:"respondedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	ExpiredAt     *time.Time      `json:"expiredAt,omitempty"`
	Conversation  []Turn          `json:"conversation,omitempty"`
	Rewards       *Rewards        `json:"rewards,omitempty"`
}

// InvitationFilter narrows ListInvitations. Zero fields match everything.
type InvitationFilter struct {
	Status Status
	Wallet string
	Limit  int
	Offset int
}

const invitationColumns = `id, inviter_wallet, invitee_wallet, date_type, venue, message, reply, stake,
	status, conversation, average_rating, pmon_awarded, charm_awarded, compatibility,
	created_at, responded_at, completed_at, expired_at`

// InsertInvitation stores a new pending invitation and sets inv.ID.
func (c conn) InsertInvitation(ctx context.Context, inv *Invitation, pairKey string) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO invitations (inviter_wallet, invitee_wallet, pair_key, date_type, venue, message, stake, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InviterWallet, inv.InviteeWallet, pairKey, string(inv.DateType), string(inv.Venue),
		inv.Message, int64(inv.Stake), string(StatusPending), millis(inv.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.Wrap(apperr.CodeDuplicateActiveInvitation,
				"an active invitation already exists for this pair", err)
		}
		return apperr.Store("insert invitation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Store("read invitation id", err)
	}
	inv.ID = id
	inv.Status = StatusPending
	return nil
}

// GetInvitation loads one invitation.
func (c conn) GetInvitation(ctx context.Context, id int64) (*Invitation, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeInvitationNotFound, fmt.Sprintf("invitation %d not found", id))
	}
	if err != nil {
		return nil, apperr.Store("get invitation", err)
	}
	return inv, nil
}

// ActiveInvitationForPair returns the pending or accepted invitation between
// a pair, or nil.
func (c conn) ActiveInvitationForPair(ctx context.Context, pairKey string) (*Invitation, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE pair_key = ? AND status IN ('pending', 'accepted') LIMIT 1`, pairKey)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get active invitation", err)
	}
	return inv, nil
}

// ActivePairKeys returns the pair keys of every pending or accepted invitation.
func (c conn) ActivePairKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT pair_key FROM invitations WHERE status IN ('pending', 'accepted')`)
	if err != nil {
		return nil, apperr.Store("query active pairs", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperr.Store("scan active pair", err)
		}
		out[k] = true
	}
	return out, apperr.Store("iterate active pairs", rows.Err())
}

// SetResponse moves a pending invitation to accepted or declined. It reports
// false when the invitation was no longer pending.
func (c conn) SetResponse(ctx context.Context, id int64, to Status, reply string, at time.Time) (bool, error) {
	res, err := c.q.ExecContext(ctx, `
		UPDATE invitations SET status = ?, reply = ?, responded_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(to), reply, millis(at), id)
	if err != nil {
		return false, apperr.Store("update invitation response", err)
	}
	return affected(res)
}

// MarkExpired moves a pending invitation to expired.
func (c conn) MarkExpired(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := c.q.ExecContext(ctx, `
		UPDATE invitations SET status = 'expired', expired_at = ?
		WHERE id = ? AND status = 'pending'`,
		millis(at), id)
	if err != nil {
		return false, apperr.Store("expire invitation", err)
	}
	return affected(res)
}

// ClaimCompleted moves an accepted invitation to completed with its outcome.
// Only one caller can win the claim.
func (c conn) ClaimCompleted(ctx context.Context, id int64, conv []Turn, r Rewards, at time.Time) (bool, error) {
	raw, err := json.Marshal(conv)
	if err != nil {
		return false, fmt.Errorf("encode conversation: %w", err)
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE invitations SET status = 'completed', conversation = ?, average_rating = ?,
			pmon_awarded = ?, charm_awarded = ?, compatibility = ?, completed_at = ?
		WHERE id = ? AND status = 'accepted'`,
		string(raw), r.AverageRating, r.PmonAwarded, r.CharmAwarded, r.Compatibility, millis(at), id)
	if err != nil {
		return false, apperr.Store("complete invitation", err)
	}
	return affected(res)
}

// ListInvitations returns invitations newest first.
func (c conn) ListInvitations(ctx context.Context, f InvitationFilter) ([]*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Wallet != "" {
		query += ` AND (inviter_wallet = ? OR invitee_wallet = ?)`
		args = append(args, f.Wallet, f.Wallet)
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, max(f.Offset, 0))
	return c.queryInvitations(ctx, query, args...)
}

// ListAccepted returns accepted invitations oldest first.
func (c conn) ListAccepted(ctx context.Context, limit int) ([]*Invitation, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.queryInvitations(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE status = 'accepted' ORDER BY id ASC LIMIT ?`, limit)
}

// ListStalePending returns pending invitations created before cutoff.
func (c conn) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Invitation, error) {
	if limit <= 0 {
		limit = 500
	}
	return c.queryInvitations(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE status = 'pending' AND created_at < ? ORDER BY id ASC LIMIT ?`, millis(cutoff), limit)
}

// CountByStatus returns the number of invitations in each status.
func (c conn) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM invitations GROUP BY status`)
	if err != nil {
		return nil, apperr.Store("count invitations", err)
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, apperr.Store("scan invitation count", err)
		}
		out[Status(s)] = n
	}
	return out, apperr.Store("iterate invitation counts", rows.Err())
}

func (c conn) queryInvitations(ctx context.Context, query string, args ...any) ([]*Invitation, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("query invitations", err)
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, apperr.Store("scan invitation", err)
		}
		out = append(out, inv)
	}
	return out, apperr.Store("iterate invitations", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(s scanner) (*Invitation, error) {
	var (
		inv                          Invitation
		dateType, venue, status      string
		stake, created               int64
		conversation                 sql.NullString
		rating, pmon, charm, score   sql.NullFloat64
		responded, completed, expiry sql.NullInt64
	)
	err := s.Scan(&inv.ID, &inv.InviterWallet, &inv.InviteeWallet, &dateType, &venue, &inv.Message,
		&inv.Reply, &stake, &status, &conversation, &rating, &pmon, &charm, &score,
		&created, &responded, &completed, &expiry)
	if err != nil {
		return nil, err
	}
	inv.DateType = compat.DateType(dateType)
	inv.Venue = compat.Venue(venue)
	inv.Stake = ledger.Amount(stake)
	inv.Status = Status(status)
	inv.CreatedAt = time.UnixMilli(created).UTC()
	inv.RespondedAt = fromMillis(responded)
	inv.CompletedAt = fromMillis(completed)
	inv.ExpiredAt = fromMillis(expiry)

	if inv.Status == StatusCompleted {
		if conversation.Valid && conversation.String != "" {
			if err := json.Unmarshal([]byte(conversation.String), &inv.Conversation); err != nil {
				return nil, fmt.Errorf("decode conversation for invitation %d: %w", inv.ID, err)
			}
		}
		inv.Rewards = &Rewards{
			AverageRating: rating.Float64,
			PmonAwarded:   pmon.Float64,
			CharmAwarded:  charm.Float64,
			Compatibility: score.Float64,
		}
	}
	return &inv, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Store("read affected rows", err)
	}
	return n == 1, nil
}

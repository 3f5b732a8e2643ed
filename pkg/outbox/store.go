package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
)

// lastErrorLimit caps outbox_events.last_error.
const lastErrorLimit = 1024

var errNoTx = errors.New("outbox: transaction required")

// Store persists outbox rows. Writes that must commit with a state change
// take the caller's tx; maintenance reads fall back to the store's handle.
type Store struct {
	conn *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

func (s *Store) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.conn
}

// Append inserts row inside tx.
func (s *Store) Append(tx *gorm.DB, row *models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(row).Error
}

// Claim locks the oldest undelivered rows with attempts left, skipping rows
// another relay already holds.
func (s *Store) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkDelivered stamps published_at and clears the last failure.
func (s *Store) MarkDelivered(tx *gorm.DB, id uuid.UUID) error {
	return s.update(tx, id, map[string]any{"published_at": time.Now().UTC(), "last_error": nil})
}

// RecordFailure bumps the attempt counter so the row is retried later.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clip(cause),
	})
}

// Park pins attempt_count at ceiling so Claim never returns the row again.
func (s *Store) Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return s.update(tx, id, map[string]any{"attempt_count": ceiling, "last_error": clip(cause)})
}

func (s *Store) update(tx *gorm.DB, id uuid.UUID, cols map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(cols).Error
}

// Backlog counts rows not yet delivered, parked rows included.
func (s *Store) Backlog(tx *gorm.DB) (int64, error) {
	var n int64
	err := s.handle(tx).Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&n).Error
	return n, err
}

// Prune deletes rows delivered before cutoff. Undelivered rows stay.
func (s *Store) Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := s.handle(tx).WithContext(ctx).
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func clip(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > lastErrorLimit {
		msg = msg[:lastErrorLimit]
	}
	return msg
}

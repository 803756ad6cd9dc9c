package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

const (
	columns    = `id, user_id, type, title, message, data, is_read, created_at, expires_at`
	notExpired = `(expires_at IS NULL OR expires_at > $%d)`

	uniqueViolation = "23505"
)

// NotificationStore keeps notifications in the notifications table. Owner
// checked mutations lock the row inside a transaction.
type NotificationStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ domain.NotificationStore = (*NotificationStore)(nil)

type Option func(*NotificationStore)

func WithClock(now func() time.Time) Option {
	return func(s *NotificationStore) { s.now = now }
}

func NewNotificationStore(db *sqlx.DB, opts ...Option) *NotificationStore {
	s := &NotificationStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NotificationStore) Insert(ctx context.Context, n domain.Notification) error {
	query := `
		INSERT INTO notifications (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data, n.Read, n.CreatedAt, n.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, n.ID)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) Query(ctx context.Context, filter domain.Filter) ([]domain.Notification, error) {
	var (
		where []string
		args  []any
	)
	args = append(args, s.now())
	where = append(where, fmt.Sprintf(notExpired, len(args)))

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Read != nil {
		args = append(args, *filter.Read)
		where = append(where, fmt.Sprintf("is_read = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + columns + " FROM notifications WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	notifications := []domain.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, b.String(), args...); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationStore) Get(ctx context.Context, id string) (domain.Notification, error) {
	query := `SELECT ` + columns + ` FROM notifications WHERE id = $1 AND ` + fmt.Sprintf(notExpired, 2)
	var n domain.Notification
	err := s.db.GetContext(ctx, &n, query, id, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) SetRead(ctx context.Context, id, ownerID string) error {
	return s.withOwnedRow(ctx, id, ownerID, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
		return err
	})
}

func (s *NotificationStore) Remove(ctx context.Context, id, ownerID string) (bool, error) {
	err := s.withOwnedRow(ctx, id, ownerID, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
		return err
	})
	if errors.Is(err, domain.ErrNotificationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// withOwnedRow locks the live row for id, checks ownership, then runs fn in
// the same transaction.
func (s *NotificationStore) withOwnedRow(ctx context.Context, id, ownerID string, fn func(*sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var owner string
	lock := `SELECT user_id FROM notifications WHERE id = $1 AND ` + fmt.Sprintf(notExpired, 2) + ` FOR UPDATE`
	switch scanErr := tx.GetContext(ctx, &owner, lock, id, s.now()); {
	case errors.Is(scanErr, sql.ErrNoRows):
		return domain.ErrNotificationNotFound
	case scanErr != nil:
		return fmt.Errorf("lock notification: %w", scanErr)
	}
	if ownerID != "" && owner != ownerID {
		return domain.ErrNotOwner
	}

	if err := fn(tx); err != nil {
		return fmt.Errorf("mutate notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE AND ` + fmt.Sprintf(notExpired, 2)
	res, err := s.db.ExecContext(ctx, query, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(rows), nil
}

func (s *NotificationStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(rows), nil
}

type statsRow struct {
	Type  domain.NotificationType `db:"type"`
	Read  bool                    `db:"is_read"`
	Count int                     `db:"count"`
}

func (s *NotificationStore) StatsFor(ctx context.Context, userID string) (domain.Stats, error) {
	query := `
		SELECT type, is_read, COUNT(*) AS count
		FROM notifications
		WHERE user_id = $1 AND ` + fmt.Sprintf(notExpired, 2) + `
		GROUP BY type, is_read
	`
	var rows []statsRow
	if err := s.db.SelectContext(ctx, &rows, query, userID, s.now()); err != nil {
		return domain.Stats{}, fmt.Errorf("notification stats: %w", err)
	}

	stats := domain.NewStats()
	for _, r := range rows {
		stats.Total += r.Count
		stats.ByType[r.Type] += r.Count
		if !r.Read {
			stats.Unread += r.Count
		}
	}
	return stats, nil
}

package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

// Repository defines the interface for outbox persistence.
type Repository interface {
	// Save stores a new outbox message and sets its ID.
	Save(ctx context.Context, msg *Message) error

	// GetUnpublished returns messages that are neither published nor dead and
	// whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	// MarkPublished marks a message as successfully published.
	MarkPublished(ctx context.Context, id int64, at time.Time) error

	// MarkFailed records a publish failure and the next retry time.
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error

	// MarkDead marks a message as dead-lettered.
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error

	// DeleteOld removes published messages created before cutoff.
	DeleteOld(ctx context.Context, cutoff time.Time) (int64, error)
}

const messageColumns = `id, routing_key, payload, created_at, published_at, next_retry_at, retry_count, last_error, dead_lettered_at`

// SQLRepository implements Repository on either supported driver. It joins
// the unit of work carried by the context.
type SQLRepository struct {
	conn database.Connection
}

// NewSQLRepository creates a SQLRepository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Save stores msg.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	err := r.exec(ctx).QueryRow(ctx, `
		INSERT INTO outbox (routing_key, payload, created_at, retry_count, last_error)
		VALUES (?, ?, ?, 0, '')
		RETURNING id`,
		msg.RoutingKey,
		string(msg.Payload),
		msg.CreatedAt.UnixMilli(),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("save outbox message: %w", err)
	}
	return nil
}

// GetUnpublished returns up to limit due messages.
func (r *SQLRepository) GetUnpublished(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+messageColumns+`
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		now.UnixMilli(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outbox messages: %w", err)
	}
	return out, nil
}

// MarkPublished sets published_at.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

// MarkFailed increments the retry count and schedules the next attempt.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		errMsg, nextRetryAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}

// MarkDead moves a message out of the relay.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, dead_lettered_at = ?
		WHERE id = ?`,
		reason, at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox message dead: %w", err)
	}
	return nil
}

// DeleteOld removes published messages created before cutoff.
func (r *SQLRepository) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx).Exec(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND created_at < ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old outbox messages: %w", err)
	}
	return res.RowsAffected()
}

func scanMessage(row database.Row) (*Message, error) {
	var (
		msg                      Message
		payload                  string
		createdAt                int64
		publishedAt, nextRetryAt sql.NullInt64
		deadLetteredAt           sql.NullInt64
	)
	if err := row.Scan(
		&msg.ID,
		&msg.RoutingKey,
		&payload,
		&createdAt,
		&publishedAt,
		&nextRetryAt,
		&msg.RetryCount,
		&msg.LastError,
		&deadLetteredAt,
	); err != nil {
		return nil, err
	}
	msg.Payload = []byte(payload)
	msg.CreatedAt = time.UnixMilli(createdAt).UTC()
	msg.PublishedAt = optionalTime(publishedAt)
	msg.NextRetryAt = optionalTime(nextRetryAt)
	msg.DeadLetteredAt = optionalTime(deadLetteredAt)
	return &msg, nil
}

func optionalTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

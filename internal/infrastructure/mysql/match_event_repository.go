package mysql

import (
	"context"
	"database/sql"
	"time"

	"nocaps-server/internal/domain"
)

const createMatchEventsTable = `
        CREATE TABLE IF NOT EXISTS match_events (
            id            CHAR(36)    NOT NULL PRIMARY KEY,
            match_code    CHAR(6)     NOT NULL,
            event_type    VARCHAR(32) NOT NULL,
            camera_number INT         NOT NULL DEFAULT 0,
            is_live       BOOLEAN     NOT NULL,
            timestamp     DATETIME(3) NOT NULL,
            created_at    DATETIME(3) NOT NULL,
            INDEX idx_match_events_code (match_code, timestamp)
        )
    `

// MySQLMatchEventRepository appends match lifecycle events to an audit table.
// Nothing is ever read back into the registry.
type MySQLMatchEventRepository struct {
	db *sql.DB
}

var _ domain.MatchEventPublisher = (*MySQLMatchEventRepository)(nil)

func NewMySQLMatchEventRepository(db *sql.DB) *MySQLMatchEventRepository {
	return &MySQLMatchEventRepository{db: db}
}

func (r *MySQLMatchEventRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createMatchEventsTable)
	return err
}

func (r *MySQLMatchEventRepository) SaveMatchEvent(ctx context.Context, event *domain.MatchEvent) error {
	query := `
        INSERT INTO match_events (id, match_code, event_type, camera_number, is_live, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.MatchCode, string(event.Type),
		event.CameraNumber, event.IsLive, event.Timestamp, time.Now())
	return err
}

// PublishMatchEvent lets the repository sit behind the event dispatcher.
func (r *MySQLMatchEventRepository) PublishMatchEvent(ctx context.Context, event *domain.MatchEvent) error {
	return r.SaveMatchEvent(ctx, event)
}

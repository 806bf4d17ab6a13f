package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/metrics"
)

const uniqueViolation = "23505"

// pgxIface: общее подмножество *pgxpool.Pool и pgxmock.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres реализует реестр меток и журнал событий на основе pgx.
type Postgres struct {
	db pgxIface
}

var (
	_ domain.TagRepo        = (*Postgres)(nil)
	_ domain.UsageEventRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(db pgxIface) *Postgres {
	return &Postgres{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tags (
		tag_id     TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id           BIGSERIAL PRIMARY KEY,
		tag_id       TEXT NOT NULL,
		name         TEXT NOT NULL,
		category     TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL,
		duration_sec BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS usage_events_tag_idx ON usage_events (tag_id, occurred_at DESC)`,
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()
	for _, stmt := range schema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// CreateTag регистрирует метку. Повтор возвращает domain.ErrTagExists.
func (p *Postgres) CreateTag(ctx context.Context, tag domain.Tag) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.db.Exec(ctx,
		`INSERT INTO tags (tag_id, name, category, created_at) VALUES ($1, $2, $3, $4)`,
		tag.TagID, tag.Name, tag.Category, tag.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "tags_insert", "tags", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrTagExists
		}
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// ListTags возвращает метки, новые первыми.
func (p *Postgres) ListTags(ctx context.Context) ([]domain.Tag, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.db.Query(ctx, `SELECT tag_id, name, category, created_at FROM tags ORDER BY created_at DESC`)
	metrics.ObserveNetworkRequest("postgres", "tags_list", "tags", start, err)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.TagID, &t.Name, &t.Category, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out, nil
}

// GetTag возвращает метку по идентификатору.
func (p *Postgres) GetTag(ctx context.Context, tagID string) (domain.Tag, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var t domain.Tag
	err := p.db.QueryRow(ctx,
		`SELECT tag_id, name, category, created_at FROM tags WHERE tag_id = $1`, tagID).
		Scan(&t.TagID, &t.Name, &t.Category, &t.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "tags_get", "tags", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tag{}, domain.ErrTagNotFound
	}
	if err != nil {
		return domain.Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// DeleteTag удаляет метку.
func (p *Postgres) DeleteTag(ctx context.Context, tagID string) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.db.Exec(ctx, `DELETE FROM tags WHERE tag_id = $1`, tagID)
	metrics.ObserveNetworkRequest("postgres", "tags_delete", "tags", start, err)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTagNotFound
	}
	return nil
}

// SaveUsageEvent сохраняет событие использования и возвращает его с id.
func (p *Postgres) SaveUsageEvent(ctx context.Context, ev domain.UsageEvent) (domain.UsageEvent, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	start := time.Now()
	err := p.db.QueryRow(ctx,
		`INSERT INTO usage_events (tag_id, name, category, event_type, occurred_at, duration_sec)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		ev.TagID, ev.Name, ev.Category, string(ev.EventType), ev.OccurredAt, ev.DurationSec).
		Scan(&ev.ID)
	metrics.ObserveNetworkRequest("postgres", "usage_events_insert", "usage_events", start, err)
	if err != nil {
		return domain.UsageEvent{}, fmt.Errorf("insert usage event: %w", err)
	}
	return ev, nil
}

package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"feedback-relay/internal/domain"
)

const tagID = "E2801160600002149A1B2C"

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock, NewPostgres(mock)
}

func TestEnsureSchema(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tags").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS usage_events").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestCreateTag(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	tag := domain.Tag{TagID: tagID, Name: "lip", Category: "cosme", CreatedAt: now}

	mock.ExpectExec("INSERT INTO tags").
		WithArgs(tagID, "lip", "cosme", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tags").
		WithArgs(tagID, "lip", "cosme", now).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec("INSERT INTO tags").
		WithArgs(tagID, "lip", "cosme", now).
		WillReturnError(errors.New("conn reset"))

	require.NoError(t, repo.CreateTag(context.Background(), tag))
	require.ErrorIs(t, repo.CreateTag(context.Background(), tag), domain.ErrTagExists)
	err := repo.CreateTag(context.Background(), tag)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrTagExists)
}

func TestListTags(t *testing.T) {
	mock, repo := newMock(t)
	newer := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery("SELECT tag_id, name, category, created_at FROM tags ORDER BY created_at DESC").
		WillReturnRows(pgxmock.NewRows([]string{"tag_id", "name", "category", "created_at"}).
			AddRow(tagID, "lip", "cosme", newer).
			AddRow("E2180000000000000000ABC", "mascara", "cosme", older))

	tags, err := repo.ListTags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, tagID, tags[0].TagID)
	require.Equal(t, older, tags[1].CreatedAt)
}

func TestGetTag(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT tag_id, name, category, created_at FROM tags WHERE tag_id").
		WithArgs(tagID).
		WillReturnRows(pgxmock.NewRows([]string{"tag_id", "name", "category", "created_at"}).AddRow(tagID, "lip", "cosme", now))
	mock.ExpectQuery("SELECT tag_id, name, category, created_at FROM tags WHERE tag_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	tag, err := repo.GetTag(context.Background(), tagID)
	require.NoError(t, err)
	require.Equal(t, "lip", tag.Name)

	_, err = repo.GetTag(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTagNotFound)
}

func TestDeleteTag(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec("DELETE FROM tags").WithArgs(tagID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM tags").WithArgs(tagID).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.DeleteTag(context.Background(), tagID))
	require.ErrorIs(t, repo.DeleteTag(context.Background(), tagID), domain.ErrTagNotFound)
}

func TestSaveUsageEvent(t *testing.T) {
	mock, repo := newMock(t)
	at := time.Date(2025, 2, 3, 7, 30, 0, 0, time.UTC)
	dur := int64(12)

	mock.ExpectQuery("INSERT INTO usage_events").
		WithArgs(tagID, "lip", "cosme", "present_return", at, &dur).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	ev, err := repo.SaveUsageEvent(context.Background(), domain.UsageEvent{
		TagID:       tagID,
		Name:        "lip",
		Category:    "cosme",
		EventType:   domain.UsagePresentReturn,
		OccurredAt:  at,
		DurationSec: &dur,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), ev.ID)
	require.Equal(t, at, ev.OccurredAt)
}

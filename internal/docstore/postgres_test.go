package docstore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock, *LocalNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	n := NewLocalNotifier()
	return NewPostgres(db, n), mock, n
}

func signalled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestPostgres_CreateMapsConflictToAlreadyExists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, mock, n := newMockPostgres(t)
	changes, err := n.Subscribe(ctx, Registrations)
	require.NoError(t, err)

	insert := regexp.QuoteMeta(`ON CONFLICT (collection, id) DO NOTHING`)
	mock.ExpectExec(insert).
		WithArgs(Registrations, "e1_23CS001", `{"at":null,"count":3,"eventId":"e1","id":"e1_23CS001","open":false,"studentRoll":"23CS001"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs(Registrations, "e1_23CS001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	id, err := p.Create(ctx, Registrations, "e1_23CS001", sample{EventID: "e1", Roll: "23CS001", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, "e1_23CS001", id)
	assert.True(t, signalled(changes))

	_, err = p.Create(ctx, Registrations, "e1_23CS001", sample{EventID: "e1", Roll: "23CS001"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.False(t, signalled(changes), "a rejected insert changes nothing")
}

func TestPostgres_UpdateMergesAndReportsMissing(t *testing.T) {
	ctx := context.Background()
	p, mock, _ := newMockPostgres(t)

	merge := regexp.QuoteMeta(`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`)
	mock.ExpectExec(merge).
		WithArgs(Registrations, "e1_23CS001", `{"checkedInAt":null,"status":"PRESENT"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(merge).
		WithArgs(Registrations, "e1_99ZZ999", `{"status":"PRESENT"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.Update(ctx, Registrations, "e1_23CS001", map[string]any{
		"status":      "PRESENT",
		"checkedInAt": nil,
		"id":          "ignored",
	}))
	err := p.Update(ctx, Registrations, "e1_99ZZ999", map[string]any{"status": "PRESENT"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_FindBuildsJSONFilters(t *testing.T) {
	ctx := context.Background()
	p, mock, _ := newMockPostgres(t)

	query := regexp.QuoteMeta(`SELECT id, data FROM documents WHERE collection = $1 AND data->>$2 = $3 AND data->>$4 IS NULL AND data->>$5 = $6 AND data->>$7 = $8 ORDER BY id`)
	rows := sqlmock.NewRows([]string{"id", "data"}).
		AddRow("e1_23CS001", []byte(`{"id":"e1_23CS001","eventId":"e1","studentRoll":"23CS001","count":3,"open":true}`))
	mock.ExpectQuery(query).
		WithArgs(Registrations, "eventId", "e1", "at", "count", "3", "open", "true").
		WillReturnRows(rows)

	got, err := FindAll[sample](ctx, p, Registrations,
		Eq("eventId", label("e1")), Eq("at", nil), Eq("count", 3), Eq("open", true))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "23CS001", got[0].Roll)
	assert.Equal(t, 3, got[0].Count)
}

func TestPostgres_GetAndDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	p, mock, _ := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs(Events, "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs(Events, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := p.Get(ctx, Events, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, Events, "missing"), ErrNotFound)
}

package projection

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newStore(db, "mock.db", testCatalog(t)), mock
}

func TestEntityProjector_UpdateMissingRowRollsBack(t *testing.T) {
	s, mock := mockStore(t)
	p := NewEntityProjector(s.Catalog(), s)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT kind FROM projection_index").
		WithArgs("gl-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind"}).AddRow("goal"))
	mock.ExpectQuery("FROM goals WHERE id").
		WithArgs("gl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "fields", "supersedes", "superseded_by", "removed", "version", "updated_at"}).
			AddRow("gl-1", "Ship", "active", "{}", "", "", 0, 1, "2026-01-02T03:04:06Z"))
	mock.ExpectExec("UPDATE goals SET title").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := p.Apply(context.Background(), ev("gl-1", 2, entity.Renamed, event.Payload{"title": "Ship it"}))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityProjector_BeginFails(t *testing.T) {
	s, mock := mockStore(t)
	p := NewEntityProjector(s.Catalog(), s)

	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	err := p.Apply(context.Background(), created("gl-1", "goal", "g"))
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityProjector_InsertFailsRollsBack(t *testing.T) {
	s, mock := mockStore(t)
	p := NewEntityProjector(s.Catalog(), s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO goals").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := p.Apply(context.Background(), created("gl-1", "goal", "g"))
	assert.ErrorContains(t, err, "insert goal gl-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityProjector_ExecFails(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectExec("INSERT INTO activity").WillReturnError(errors.New("database is locked"))

	err := NewActivityProjector(s).Apply(context.Background(), created("gl-1", "goal", "g"))
	assert.ErrorContains(t, err, "record activity gl-1-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_QueryFails(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("FROM goals WHERE id").WillReturnError(errors.New("boom"))

	_, err := s.Get(context.Background(), "goal", "gl-1")
	assert.ErrorContains(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

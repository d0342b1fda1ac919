package eventsdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flyingrobots/event-analytics-engine/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestResolve_UnknownNameIsValidationFailureNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dict := NewTypeDict(db)
	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE name").
		WithArgs("bogus").
		WillReturnError(sql.ErrNoRows)

	_, err = dict.Resolve(context.Background(), "bogus")
	require.Error(t, err)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.False(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveID_UnknownIDIsValidationFailureNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dict := NewTypeDict(db)
	mock.ExpectQuery("SELECT id, name, created_at FROM event_types WHERE id").
		WithArgs(int32(99)).
		WillReturnError(sql.ErrNoRows)

	_, err = dict.ResolveID(context.Background(), 99)
	require.Error(t, err)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.False(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

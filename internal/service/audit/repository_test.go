package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func TestRepository_EnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, newRepository(db, nil).EnsureSchema(context.Background()))

	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS avatar_replacements")
	assert.Contains(t, db.calls[1].query, "CREATE INDEX IF NOT EXISTS")
}

func TestRepository_Record(t *testing.T) {
	db := &fakeExecer{}
	at := time.Unix(1700000000, 0)
	entry := Entry{
		RunID:       "run-1",
		RecordID:    "rec1",
		PersonaName: "Ada",
		Verdict:     "likely_generic",
		Outcome:     "replaced",
		NewURL:      "https://cdn/x.jpg",
		Attempts:    2,
		CreatedAt:   at,
	}
	require.NoError(t, newRepository(db, nil).Record(context.Background(), entry))

	require.Len(t, db.calls, 1)
	assert.True(t, strings.Contains(db.calls[0].query, "INSERT INTO avatar_replacements"))
	require.Len(t, db.calls[0].args, 12)
	assert.Equal(t, "rec1", db.calls[0].args[1])
	assert.Equal(t, 2, db.calls[0].args[9])
	assert.Equal(t, at, db.calls[0].args[11])
}

func TestRepository_RecordFailureIsPersistenceError(t *testing.T) {
	db := &fakeExecer{err: fmt.Errorf("connection reset")}
	err := newRepository(db, nil).Record(context.Background(), Entry{RecordID: "rec1"})
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
}

package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
)

func newOp(t *testing.T, kind domain.OperationKind, at time.Time) *domain.Operation {
	t.Helper()
	op, err := domain.NewOperation(kind, map[string]string{"k": "v"}, at)
	require.NoError(t, err)
	return op
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Unix(1700000000, 0)

	create := newOp(t, domain.OperationCreate, base)
	vote := newOp(t, domain.OperationVote, base.Add(time.Second))
	vote.SessionAddress = "S1"
	require.NoError(t, s.Save(ctx, create))
	require.NoError(t, s.Save(ctx, vote))

	require.NoError(t, vote.Advance(domain.StatusValidating, base))
	require.NoError(t, s.Save(ctx, vote))

	got, err := s.Get(ctx, vote.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidating, got.Status)

	got.Status = domain.StatusFailed
	again, _ := s.Get(ctx, vote.ID)
	assert.Equal(t, domain.StatusValidating, again.Status, "stored copy must not alias")

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, vote.ID, all[0].ID, "newest first")

	votes, err := s.List(ctx, Filter{Kind: domain.OperationVote, SessionAddress: "S1"})
	require.NoError(t, err)
	require.Len(t, votes, 1)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Error(t, s.Save(ctx, &domain.Operation{}))
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func operationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "kind", "status", "wallet", "session_address", "payload",
		"tx_id", "error_code", "error_message", "created_at", "updated_at",
	})
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS vote_operations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockStore(t)
	op := newOp(t, domain.OperationClose, time.Unix(1700000000, 0))

	mock.ExpectExec("INSERT INTO vote_operations").
		WithArgs(op.ID, "close", "draft", "", "", sqlmock.AnyArg(), "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), op))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	s, mock := newMockStore(t)
	op := newOp(t, domain.OperationClose, time.Now())
	mock.ExpectExec("INSERT INTO vote_operations").WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), op.ID)
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM vote_operations WHERE id = \\$1").
		WithArgs("op-1").
		WillReturnRows(operationRows().AddRow(
			"op-1", "vote", "confirmed", "W", "S", []byte(`{"choice_index":1}`),
			"sig", "", "", now, now,
		))

	op, err := s.Get(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OperationVote, op.Kind)
	assert.Equal(t, domain.StatusConfirmed, op.Status)
	assert.Equal(t, "sig", op.TxID)
	assert.JSONEq(t, `{"choice_index":1}`, string(op.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM vote_operations WHERE id = \\$1").
		WithArgs("nope").
		WillReturnRows(operationRows())

	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM vote_operations WHERE kind = \\$1 AND status = \\$2 ORDER BY created_at DESC LIMIT \\$3").
		WithArgs("close", "failed", 5).
		WillReturnRows(operationRows().
			AddRow("b", "close", "failed", "W", "S2", []byte(`{}`), "", "SubmissionRejected", "Only the session creator can close it", now, now).
			AddRow("a", "close", "failed", "W", "S1", []byte(`{}`), "", "TransportFailure", "boom", now, now))

	ops, err := s.List(context.Background(), Filter{Kind: domain.OperationClose, Status: domain.StatusFailed, Limit: 5})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "b", ops[0].ID)
	assert.Equal(t, "SubmissionRejected", ops[0].ErrorCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM vote_operations ORDER BY created_at DESC LIMIT \\$1").
		WithArgs(DefaultListLimit).
		WillReturnRows(operationRows())

	ops, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, ops)
	require.NoError(t, mock.ExpectationsWereMet())
}

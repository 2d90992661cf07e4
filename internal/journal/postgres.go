package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
)

const schema = `
CREATE TABLE IF NOT EXISTS vote_operations (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL,
	wallet          TEXT NOT NULL DEFAULT '',
	session_address TEXT NOT NULL DEFAULT '',
	payload         JSONB NOT NULL DEFAULT '{}'::jsonb,
	tx_id           TEXT NOT NULL DEFAULT '',
	error_code      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vote_operations_created_at_idx ON vote_operations (created_at DESC);
CREATE INDEX IF NOT EXISTS vote_operations_session_idx ON vote_operations (session_address);
`

const selectColumns = `id, kind, status, wallet, session_address, payload, tx_id, error_code, error_message, created_at, updated_at`

// PostgresStore persists operations in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the journal table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, op *domain.Operation) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("journal: operation id required")
	}
	row := *op
	if len(row.Payload) == 0 {
		row.Payload = []byte("{}")
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO vote_operations (id, kind, status, wallet, session_address, payload, tx_id, error_code, error_message, created_at, updated_at)
		VALUES (:id, :kind, :status, :wallet, :session_address, :payload, :tx_id, :error_code, :error_message, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			session_address = EXCLUDED.session_address,
			tx_id = EXCLUDED.tx_id,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`, &row)
	if err != nil {
		return fmt.Errorf("save operation %s: %w", op.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Operation, error) {
	var op domain.Operation
	err := s.db.GetContext(ctx, &op, `SELECT `+selectColumns+` FROM vote_operations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get operation %s: %w", id, err)
	}
	return &op, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*domain.Operation, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Kind != "" {
		add("kind", string(filter.Kind))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.SessionAddress != "" {
		add("session_address", filter.SessionAddress)
	}
	if filter.Wallet != "" {
		add("wallet", filter.Wallet)
	}

	query := `SELECT ` + selectColumns + ` FROM vote_operations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	var ops []*domain.Operation
	if err := s.db.SelectContext(ctx, &ops, query, args...); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

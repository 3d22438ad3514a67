package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"erp/internal/user/models"
	id "erp/pkg/domain"
	"erp/pkg/platform/sentinel"
	txcontext "erp/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists users in the users table. Writes join the
// transaction carried by the context when there is one.
type PostgresStore struct {
	db *sql.DB
	tx *txcontext.Postgres
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, tx: txcontext.NewPostgres(db)}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const userColumns = `id, email, first_name, last_name, role, status, reject_reason,
	invite_hash, invited_at, workflows, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		userID    uuid.UUID
		role      string
		status    string
		invitedAt sql.NullTime
		workflows []string
	)
	err := row.Scan(&userID, &u.Email, &u.FirstName, &u.LastName, &role, &status,
		&u.RejectReason, &u.InviteHash, &invitedAt, pq.Array(&workflows),
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = models.Role(role)
	u.Status = models.Status(status)
	if invitedAt.Valid {
		t := invitedAt.Time
		u.InvitedAt = &t
	}
	if workflows == nil {
		workflows = []string{}
	}
	u.Workflows = workflows
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts the user. The case-insensitive unique index on email turns
// concurrent duplicate registrations into sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(user.ID),
		strings.ToLower(user.Email),
		user.FirstName,
		user.LastName,
		string(user.Role),
		string(user.Status),
		user.RejectReason,
		user.InviteHash,
		nullTime(user.InvitedAt),
		pq.Array(user.Workflows),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) lockForUpdate(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, uuid.UUID(userID))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return u, nil
}

// Execute holds a row lock (SELECT ... FOR UPDATE) across validation and the
// update, so concurrent transitions on the same user serialize.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	var updated *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := s.lockForUpdate(txCtx, userID)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		query := `
			UPDATE users SET
				email = $2, first_name = $3, last_name = $4, role = $5, status = $6,
				reject_reason = $7, invite_hash = $8, invited_at = $9, workflows = $10,
				updated_at = $11
			WHERE id = $1
		`
		_, err = s.querier(txCtx).ExecContext(txCtx, query,
			uuid.UUID(u.ID),
			strings.ToLower(u.Email),
			u.FirstName,
			u.LastName,
			string(u.Role),
			string(u.Status),
			u.RejectReason,
			u.InviteHash,
			nullTime(u.InvitedAt),
			pq.Array(u.Workflows),
			u.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("update user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteIf(ctx context.Context, userID id.UserID, check func(*models.User) error) (*models.User, error) {
	var loaded *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := s.lockForUpdate(txCtx, userID)
		if err != nil {
			return err
		}
		loaded = u
		if err := check(u); err != nil {
			return err
		}
		if _, err := s.querier(txCtx).ExecContext(txCtx,
			`DELETE FROM users WHERE id = $1`, uuid.UUID(userID)); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	return loaded, err
}

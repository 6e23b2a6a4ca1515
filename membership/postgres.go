package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DBConfig configures the Postgres pool.
type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

// Connect opens a pgx-backed pool and pings it. An empty DSN yields a nil
// pool and no error.
func Connect(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Repo is a Postgres [Source].
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// EnsureSchema creates the membership tables when missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS workspace_members (
	user_id      TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	role         TEXT NOT NULL,
	PRIMARY KEY (user_id, workspace_id)
);
CREATE TABLE IF NOT EXISTS membership_versions (
	user_id TEXT PRIMARY KEY,
	version BIGINT NOT NULL DEFAULT 0
);
`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Memberships lists the user's workspaces ordered by id.
func (r *Repo) Memberships(ctx context.Context, userID string) ([]Membership, error) {
	const q = `
SELECT workspace_id, role
FROM workspace_members
WHERE user_id = $1
ORDER BY workspace_id;
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		var role string
		if err := rows.Scan(&m.WorkspaceID, &role); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Version returns 0 for users that never had a membership change.
func (r *Repo) Version(ctx context.Context, userID string) (uint32, error) {
	const q = `SELECT version FROM membership_versions WHERE user_id = $1;`
	var v int64
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint32(v), nil
}

// Upsert stores m and bumps the user's membership version in one transaction.
func (r *Repo) Upsert(ctx context.Context, userID string, m Membership) error {
	if err := validate(m); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsertMember = `
INSERT INTO workspace_members (user_id, workspace_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, workspace_id) DO UPDATE SET role = EXCLUDED.role;
`
	if _, err := tx.ExecContext(ctx, upsertMember, userID, m.WorkspaceID, string(m.Role)); err != nil {
		return err
	}

	const bumpVersion = `
INSERT INTO membership_versions (user_id, version)
VALUES ($1, 1)
ON CONFLICT (user_id) DO UPDATE SET version = membership_versions.version + 1;
`
	if _, err := tx.ExecContext(ctx, bumpVersion, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes a membership and bumps the version when a row was removed.
func (r *Repo) Remove(ctx context.Context, userID, workspaceID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const del = `DELETE FROM workspace_members WHERE user_id = $1 AND workspace_id = $2;`
	res, err := tx.ExecContext(ctx, del, userID, workspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	const bumpVersion = `UPDATE membership_versions SET version = version + 1 WHERE user_id = $1;`
	if _, err := tx.ExecContext(ctx, bumpVersion, userID); err != nil {
		return err
	}
	return tx.Commit()
}

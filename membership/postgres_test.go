package membership

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestConnect_Empty(t *testing.T) {
	db, err := Connect(context.Background(), DBConfig{})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if db != nil {
		t.Error("expected nil db for empty DSN")
	}
}

func TestRepo_Memberships(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"workspace_id", "role"}).
		AddRow("ws-1", "admin").
		AddRow("ws-2", "viewer")
	mock.ExpectQuery("SELECT workspace_id, role FROM workspace_members").
		WithArgs("u-1").
		WillReturnRows(rows)

	ms, err := NewRepo(db).Memberships(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Memberships failed: %v", err)
	}
	if len(ms) != 2 || ms[0].Role != RoleAdmin || ms[1].WorkspaceID != "ws-2" {
		t.Errorf("unexpected memberships: %+v", ms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_Version(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewRepo(db)

	mock.ExpectQuery("SELECT version FROM membership_versions").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(7))
	mock.ExpectQuery("SELECT version FROM membership_versions").
		WithArgs("u-2").
		WillReturnError(sql.ErrNoRows)

	if v, err := repo.Version(context.Background(), "u-1"); err != nil || v != 7 {
		t.Fatalf("expected version 7, got %d %v", v, err)
	}
	if v, err := repo.Version(context.Background(), "u-2"); err != nil || v != 0 {
		t.Fatalf("expected version 0 for unknown user, got %d %v", v, err)
	}
}

func TestRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workspace_members").
		WithArgs("u-1", "ws-9", "editor").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO membership_versions").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := NewRepo(db).Upsert(context.Background(), "u-1", Membership{WorkspaceID: "ws-9", Role: RoleEditor}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_UpsertRejectsRole(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	err = NewRepo(db).Upsert(context.Background(), "u-1", Membership{WorkspaceID: "ws-1", Role: "owner"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRepo_Remove(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM workspace_members").
		WithArgs("u-1", "ws-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE membership_versions").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := NewRepo(db).Remove(context.Background(), "u-1", "ws-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepo_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS workspace_members").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := NewRepo(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
}

package ticket

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pwviptbl/CallCenter/internal/db"
)

// stubRow returns id as the first scanned column, or err.
type stubRow struct {
	id  uuid.UUID
	err error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*uuid.UUID) = r.id
	return nil
}

// recordingTx logs the statements ResolveOpen runs inside its transaction.
// Unused pgx.Tx methods are left to the embedded nil interface.
type recordingTx struct {
	pgx.Tx
	log      *[]string
	lockArgs []any
	lockErr  error
	open     *uuid.UUID
}

func statementKind(sql string) string {
	switch s := strings.TrimSpace(sql); {
	case strings.Contains(s, "pg_advisory_xact_lock"):
		return "lock"
	case strings.HasPrefix(s, "INSERT INTO tickets"):
		return "insert"
	case strings.HasPrefix(s, "SELECT"):
		return "select"
	default:
		return s
	}
}

func (tx *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	*tx.log = append(*tx.log, statementKind(sql))
	tx.lockArgs = args
	return pgconn.CommandTag{}, tx.lockErr
}

func (tx *recordingTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	kind := statementKind(sql)
	*tx.log = append(*tx.log, kind)
	switch {
	case kind == "insert":
		return stubRow{id: args[0].(uuid.UUID)}
	case tx.open != nil:
		return stubRow{id: *tx.open}
	default:
		return stubRow{err: pgx.ErrNoRows}
	}
}

func (tx *recordingTx) Commit(context.Context) error {
	*tx.log = append(*tx.log, "commit")
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	if last := (*tx.log)[len(*tx.log)-1]; last != "commit" {
		*tx.log = append(*tx.log, "rollback")
	}
	return nil
}

type beginner struct {
	db.TxBeginner
	tx *recordingTx
}

func (b *beginner) Begin(context.Context) (pgx.Tx, error) {
	*b.tx.log = append(*b.tx.log, "begin")
	return b.tx, nil
}

func TestResolveOpenLocksBeforeLookup(t *testing.T) {
	tenantID := uuid.New()
	existing := uuid.New()
	nt := NewTicket{TenantID: tenantID, ContactName: "Maria", ContactPhone: "+5511988887777"}

	tests := []struct {
		name        string
		open        *uuid.UUID
		lockErr     error
		wantLog     []string
		wantCreated bool
		wantErr     bool
	}{
		{
			name:        "new contact",
			wantLog:     []string{"begin", "lock", "select", "insert", "commit"},
			wantCreated: true,
		},
		{
			name:    "open ticket exists",
			open:    &existing,
			wantLog: []string{"begin", "lock", "select", "commit"},
		},
		{
			name:    "lock fails",
			lockErr: errors.New("deadlock detected"),
			wantLog: []string{"begin", "lock", "rollback"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			tx := &recordingTx{log: &log, lockErr: tt.lockErr, open: tt.open}
			s := NewStore(&beginner{tx: tx})

			got, created, err := s.ResolveOpen(context.Background(), nt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveOpen() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !slices.Equal(log, tt.wantLog) {
				t.Errorf("statements = %v, want %v", log, tt.wantLog)
			}
			if err != nil {
				return
			}
			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}
			if tt.open != nil && got.ID != *tt.open {
				t.Errorf("ticket id = %s, want existing %s", got.ID, *tt.open)
			}
			if len(tx.lockArgs) != 1 || tx.lockArgs[0] != contactLockKey(tenantID, nt.ContactPhone) {
				t.Errorf("lock args = %v, want contact key", tx.lockArgs)
			}
		})
	}
}

package gate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStores backs both registries with one SQLite database so pending
// requests and approvals survive process restarts and can be shared by
// multiple gateway instances. The at-most-once resolution guarantee is
// implemented as a compare-and-delete: Take deletes by id and trusts the
// affected-row count, so exactly one racer wins.
type SQLiteStores struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStores(dsn string) (*SQLiteStores, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &SQLiteStores{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Pending returns the PendingStore view of the database.
func (s *SQLiteStores) Pending() PendingStore { return (*sqlitePending)(s) }

// Approvals returns the ApprovalStore view of the database.
func (s *SQLiteStores) Approvals() ApprovalStore { return (*sqliteApprovals)(s) }

func (s *SQLiteStores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type sqlitePending SQLiteStores

func (s *sqlitePending) Put(ctx context.Context, req ActionRequest) error {
	if s == nil {
		return fmt.Errorf("nil pending store")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO gate_pending (id, tool, risk_level, created_at_unix, request_json)
VALUES (?, ?, ?, ?, ?)
`, req.ID, req.Tool, string(req.RiskLevel), req.CreatedAt.UTC().Unix(), string(payload))
	return err
}

func (s *sqlitePending) Take(ctx context.Context, actionID string) (ActionRequest, bool, error) {
	if s == nil {
		return ActionRequest{}, false, fmt.Errorf("nil pending store")
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ActionRequest{}, false, nil
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `
SELECT request_json FROM gate_pending WHERE id = ?
`, actionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return ActionRequest{}, false, nil
	}
	if err != nil {
		return ActionRequest{}, false, err
	}

	// Conditional delete: if another resolver got here first the row is
	// gone and RowsAffected reports zero, so this caller loses cleanly.
	res, err := s.db.ExecContext(ctx, `DELETE FROM gate_pending WHERE id = ?`, actionID)
	if err != nil {
		return ActionRequest{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ActionRequest{}, false, err
	}
	if n == 0 {
		return ActionRequest{}, false, nil
	}

	var req ActionRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return ActionRequest{}, false, fmt.Errorf("corrupt pending request %s: %w", actionID, err)
	}
	return req, true, nil
}

func (s *sqlitePending) List(ctx context.Context) ([]ActionRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("nil pending store")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT request_json FROM gate_pending ORDER BY created_at_unix ASC, id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionRequest
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var req ActionRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type sqliteApprovals SQLiteStores

func (s *sqliteApprovals) Put(ctx context.Context, approval HumanApproval) error {
	if s == nil {
		return fmt.Errorf("nil approval store")
	}
	constraintsJSON, _ := json.Marshal(approval.Constraints)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO gate_approvals (
  action_id, id, approver_id, approved_at_unix, expires_at_unix, constraints_json
) VALUES (?, ?, ?, ?, ?, ?)
`, approval.ActionID, approval.ID, approval.ApproverID,
		approval.ApprovedAt.UTC().Unix(), approval.ExpiresAt.UTC().Unix(), string(constraintsJSON))
	return err
}

func (s *sqliteApprovals) Get(ctx context.Context, actionID string) (HumanApproval, bool, error) {
	if s == nil {
		return HumanApproval{}, false, fmt.Errorf("nil approval store")
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return HumanApproval{}, false, nil
	}

	var (
		approval        HumanApproval
		approvedAtUnix  int64
		expiresAtUnix   int64
		constraintsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT action_id, id, approver_id, approved_at_unix, expires_at_unix, constraints_json
FROM gate_approvals
WHERE action_id = ?
`, actionID).Scan(
		&approval.ActionID, &approval.ID, &approval.ApproverID,
		&approvedAtUnix, &expiresAtUnix, &constraintsJSON,
	)
	if err == sql.ErrNoRows {
		return HumanApproval{}, false, nil
	}
	if err != nil {
		return HumanApproval{}, false, err
	}

	approval.ApprovedAt = time.Unix(approvedAtUnix, 0).UTC()
	approval.ExpiresAt = time.Unix(expiresAtUnix, 0).UTC()
	_ = json.Unmarshal([]byte(constraintsJSON), &approval.Constraints)
	return approval, true, nil
}

func (s *SQLiteStores) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	// SQLite has one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent resolution attempts.
	db.SetMaxOpenConns(1)
	s.db = db
	return s.migrate()
}

func (s *SQLiteStores) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS gate_pending (
  id TEXT PRIMARY KEY,
  tool TEXT,
  risk_level TEXT,
  created_at_unix INTEGER NOT NULL,
  request_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gate_approvals (
  action_id TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  approver_id TEXT,
  approved_at_unix INTEGER NOT NULL,
  expires_at_unix INTEGER NOT NULL,
  constraints_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_gate_pending_created ON gate_pending(created_at_unix);
`)
	return err
}

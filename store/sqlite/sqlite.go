// Package sqlite provides a durable SQLite backend for the persistence
// interfaces declared in core, using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentrelay/core"
)

type txKey struct{}

// Store bundles the definition, execution and long-term memory tables in one
// SQLite database. It implements core.DefinitionStore, core.ExecutionStore,
// core.LongTermStore and core.Transactor.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			document TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_executions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			chain_depth INTEGER NOT NULL,
			parent_execution_id TEXT,
			status TEXT NOT NULL,
			document TEXT NOT NULL,
			seq INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_conversation ON agent_executions(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			metadata TEXT NOT NULL,
			importance REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_owner ON memory_entries(owner_id, importance, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// querier abstracts between the pooled handle and an in-flight transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// Transaction runs fn inside a transaction: commit on nil error, rollback
// and propagate otherwise. Store operations invoked with the context passed
// to fn participate in the transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	return tx.Commit()
}

// Save persists a new definition. A name collision is reported as
// DuplicateAgentError.
func (s *Store) Save(ctx context.Context, def *core.AgentDefinition) error {
	def.Normalize()
	if err := def.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	var exists int
	err = s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(1) FROM agent_definitions WHERE name = ?`, def.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check definition: %w", err)
	}
	if exists > 0 {
		return &core.DuplicateAgentError{Name: def.Name}
	}

	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO agent_definitions (id, name, document, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.ID, def.Name, string(doc), boolToInt(def.IsActive),
		def.Created.Format(time.RFC3339Nano), def.Updated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}

	return nil
}

// GetByName loads one definition by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*core.AgentDefinition, error) {
	var doc string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT document FROM agent_definitions WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		known, _ := s.names(ctx)
		return nil, &core.AgentNotFoundError{Name: name, Known: known}
	}
	if err != nil {
		return nil, fmt.Errorf("load definition: %w", err)
	}

	var def core.AgentDefinition
	if err := json.Unmarshal([]byte(doc), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition %q: %w", name, err)
	}

	return &def, nil
}

// ListActive returns active definitions in insertion (rowid) order.
func (s *Store) ListActive(ctx context.Context) ([]*core.AgentDefinition, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT document FROM agent_definitions WHERE is_active = 1 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []*core.AgentDefinition
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var def core.AgentDefinition
		if err := json.Unmarshal([]byte(doc), &def); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		out = append(out, &def)
	}

	return out, rows.Err()
}

// Deactivate marks one definition inactive.
func (s *Store) Deactivate(ctx context.Context, name string) error {
	def, err := s.GetByName(ctx, name)
	if err != nil {
		return err
	}
	def.IsActive = false
	def.Updated = time.Now().UTC()

	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	_, err = s.q(ctx).ExecContext(ctx,
		`UPDATE agent_definitions SET document = ?, is_active = 0, updated_at = ? WHERE name = ?`,
		string(doc), def.Updated.Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("deactivate definition: %w", err)
	}

	return nil
}

func (s *Store) names(ctx context.Context) ([]string, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT name FROM agent_definitions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Create inserts a new in-progress execution row.
func (s *Store) Create(ctx context.Context, exec *core.AgentExecution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	var seq int64
	if err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM agent_executions WHERE conversation_id = ?`,
		exec.ConversationID).Scan(&seq); err != nil {
		return fmt.Errorf("next execution seq: %w", err)
	}

	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO agent_executions
		 (id, agent_id, agent_name, conversation_id, chain_depth, parent_execution_id, status, document, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.AgentID, exec.AgentName, exec.ConversationID,
		exec.ChainDepth, exec.ParentExecutionID, string(exec.Status), string(doc), seq)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	return nil
}

// Update overwrites an execution row with its current state.
func (s *Store) Update(ctx context.Context, exec *core.AgentExecution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE agent_executions SET status = ?, document = ? WHERE id = ?`,
		string(exec.Status), string(doc), exec.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s not found", exec.ID)
	}

	return nil
}

// Get loads one execution row by id.
func (s *Store) Get(ctx context.Context, id string) (*core.AgentExecution, error) {
	var doc string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT document FROM agent_executions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}

	var exec core.AgentExecution
	if err := json.Unmarshal([]byte(doc), &exec); err != nil {
		return nil, fmt.Errorf("unmarshal execution %s: %w", id, err)
	}

	return &exec, nil
}

// ListByConversation returns execution rows in creation order.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]*core.AgentExecution, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT document FROM agent_executions WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*core.AgentExecution
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var exec core.AgentExecution
		if err := json.Unmarshal([]byte(doc), &exec); err != nil {
			return nil, fmt.Errorf("unmarshal execution: %w", err)
		}
		out = append(out, &exec)
	}

	return out, rows.Err()
}

// Append persists one promoted memory entry for the owner.
func (s *Store) Append(ctx context.Context, ownerID string, entry core.MemoryEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO memory_entries (id, owner_id, content, memory_type, metadata, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, ownerID, entry.Content, string(entry.MemoryType), string(meta),
		entry.Importance, entry.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert memory entry: %w", err)
	}

	return nil
}

// Recent returns up to limit entries ordered by importance then timestamp
// descending.
func (s *Store) Recent(ctx context.Context, ownerID string, limit int) ([]core.MemoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, content, memory_type, metadata, importance, created_at
		 FROM memory_entries WHERE owner_id = ?
		 ORDER BY importance DESC, created_at DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	defer rows.Close()

	return scanMemoryEntries(rows)
}

// SearchContent returns entries whose content contains substring
// (case-insensitive literal match).
func (s *Store) SearchContent(ctx context.Context, ownerID, substring string) ([]core.MemoryEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, content, memory_type, metadata, importance, created_at
		 FROM memory_entries
		 WHERE owner_id = ? AND content LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY created_at DESC`,
		ownerID, substring)
	if err != nil {
		return nil, fmt.Errorf("search memory entries: %w", err)
	}
	defer rows.Close()

	return scanMemoryEntries(rows)
}

func scanMemoryEntries(rows *sql.Rows) ([]core.MemoryEntry, error) {
	var out []core.MemoryEntry
	for rows.Next() {
		var (
			entry     core.MemoryEntry
			memType   string
			meta      string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Content, &memType, &meta, &entry.Importance, &createdAt); err != nil {
			return nil, err
		}
		entry.MemoryType = core.MemoryType(memType)
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		entry.Timestamp = ts
		out = append(out, entry)
	}

	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ core.DefinitionStore = (*Store)(nil)
	_ core.ExecutionStore  = (*Store)(nil)
	_ core.LongTermStore   = (*Store)(nil)
	_ core.Transactor      = (*Store)(nil)
)

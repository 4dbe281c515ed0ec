// ABOUTME: Tool invocation audit log backed by SQLite via modernc.org/sqlite
// ABOUTME: Records every tools/call outcome and lists recent calls newest first

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Status is the outcome of a recorded tool call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusError    Status = "error"
	StatusNotFound Status = "not_found"
	StatusTimeout  Status = "timeout"
)

// Entry is a single recorded tool call.
type Entry struct {
	ID        string        // UUID v4, generated when empty
	Tool      string        // tool name as requested
	RequestID string        // raw JSON-RPC id, "null" when absent
	Status    Status        // outcome
	Error     string        // error message, empty on success
	Duration  time.Duration // time spent invoking
	Timestamp time.Time     // generated when zero
}

// Filter narrows List results.
type Filter struct {
	Tool   *string    // exact tool name
	Status *Status    // exact outcome
	Since  *time.Time // entries at or after this time
	Limit  int        // max results (default 100, max 1000)
}

// Recorder accepts tool call outcomes.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// SQLiteLog is a Recorder that persists entries to a SQLite database.
type SQLiteLog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the audit database at path.
// Parent directories are created if needed.
func Open(path string) (*SQLiteLog, error) {
	logger := slog.Default().With("component", "audit")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Concurrent RPC handlers share one writer.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	l := &SQLiteLog{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit log initialized", "path", path)
	return l, nil
}

func (l *SQLiteLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			call_id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			request_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			ts TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_ts ON tool_calls(ts);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool, ts);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record appends e to the log. Generates ID and Timestamp if not set.
func (l *SQLiteLog) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = "null"
	}

	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}

	query := `
		INSERT INTO tool_calls (call_id, tool, request_id, status, error, duration_ms, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		e.ID,
		e.Tool,
		e.RequestID,
		string(e.Status),
		errText,
		e.Duration.Milliseconds(),
		e.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	l.logger.Debug("recorded tool call",
		"call_id", e.ID,
		"tool", e.Tool,
		"status", e.Status,
	)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var status, tsStr string
	var errText *string
	var durationMS int64

	if err := scanner.Scan(
		&e.ID,
		&e.Tool,
		&e.RequestID,
		&status,
		&errText,
		&durationMS,
		&tsStr,
	); err != nil {
		return e, fmt.Errorf("scanning tool call: %w", err)
	}

	e.Status = Status(status)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if errText != nil {
		e.Error = *errText
	}

	var err error
	e.Timestamp, err = time.Parse(tsLayout, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}
	return e, nil
}

const listQuery = `
	SELECT call_id, tool, request_id, status, error, duration_ms, ts
	FROM tool_calls
	WHERE (? IS NULL OR tool = ?)
	  AND (? IS NULL OR status = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// List returns entries matching f, newest first.
func (l *SQLiteLog) List(ctx context.Context, f Filter) ([]Entry, error) {
	var statusStr, sinceStr *string
	if f.Status != nil {
		s := string(*f.Status)
		statusStr = &s
	}
	if f.Since != nil {
		s := f.Since.UTC().Format(tsLayout)
		sinceStr = &s
	}

	rows, err := l.db.QueryContext(ctx, listQuery,
		f.Tool, f.Tool,
		statusStr, statusStr,
		sinceStr, sinceStr,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}
	return entries, nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return l.List(ctx, Filter{Limit: limit})
}

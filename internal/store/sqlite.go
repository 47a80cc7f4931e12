package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

// SQLite stores records in a single SQLite file. List-valued fields are
// kept as JSON columns.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLite)(nil)

func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &SQLite{db: db, logger: logger.With(zap.String("component", "store"), zap.String("driver", "sqlite"))}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			prompt      TEXT NOT NULL DEFAULT '',
			tools       TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			nodes       TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			reason      TEXT NOT NULL,
			final_text  TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			steps       INTEGER NOT NULL DEFAULT 0,
			messages    TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			ended_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id, started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *SQLite) CreateAgent(ctx context.Context, a graph.Agent) (string, error) {
	a, err := prepareAgent(a)
	if err != nil {
		return "", err
	}
	if err := s.checkTools(ctx, a.Tools); err != nil {
		return "", err
	}
	toolsJSON, err := json.Marshal(a.Tools)
	if err != nil {
		return "", err
	}

	a.ID = newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, prompt, tools, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.Prompt, string(toolsJSON), now())
	if err != nil {
		return "", fmt.Errorf("insert agent: %w", err)
	}
	return a.ID, nil
}

func (s *SQLite) GetAgent(ctx context.Context, id string) (graph.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, prompt, tools FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLite) LoadAgents(ctx context.Context) ([]graph.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, prompt, tools FROM agents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []graph.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) SetAgentTools(ctx context.Context, agentID string, toolIDs []string) error {
	ids := dedupe(toolIDs)
	if err := s.checkTools(ctx, ids); err != nil {
		return err
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET tools = ? WHERE id = ?`, string(data), agentID)
	if err != nil {
		return fmt.Errorf("update agent tools: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) checkTools(ctx context.Context, ids []string) error {
	for _, id := range ids {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tools WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("tool %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query tool: %w", err)
		}
	}
	return nil
}

func (s *SQLite) CreateTool(ctx context.Context, t graph.Tool) (string, error) {
	t, err := prepareTool(t)
	if err != nil {
		return "", err
	}
	t.ID = newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tools (id, name, description, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.Kind, now())
	if err != nil {
		return "", fmt.Errorf("insert tool: %w", err)
	}
	return t.ID, nil
}

func (s *SQLite) LoadTools(ctx context.Context) ([]graph.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, kind FROM tools ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	defer rows.Close()

	var out []graph.Tool
	for rows.Next() {
		var t graph.Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Kind); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveWorkflow(ctx context.Context, wf *graph.Workflow) (string, error) {
	c, err := prepareWorkflow(wf)
	if err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = newID()
	}
	nodes, err := json.Marshal(c.Nodes)
	if err != nil {
		return "", err
	}

	ts := now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, nodes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			nodes = excluded.nodes,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Description, string(nodes), ts, ts)
	if err != nil {
		return "", fmt.Errorf("upsert workflow: %w", err)
	}
	return c.ID, nil
}

func (s *SQLite) LoadWorkflow(ctx context.Context, id string) (*graph.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, nodes FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return wf, err
}

func (s *SQLite) LoadWorkflows(ctx context.Context) ([]*graph.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, nodes FROM workflows ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var out []*graph.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveRun(ctx context.Context, r RunRecord) error {
	r, err := prepareRun(r)
	if err != nil {
		return err
	}
	msgs := r.Messages
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, reason, final_text, error, steps, messages, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			reason = excluded.reason,
			final_text = excluded.final_text,
			error = excluded.error,
			steps = excluded.steps,
			messages = excluded.messages,
			ended_at = excluded.ended_at`,
		r.RunID, r.WorkflowID, r.Reason, r.FinalText, r.Error, r.Steps, string(data),
		formatTime(r.StartedAt), formatTime(r.EndedAt))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	var (
		r                 RunRecord
		msgs              string
		started, finished string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, reason, final_text, error, steps, messages, started_at, ended_at
		 FROM runs WHERE id = ?`, runID).
		Scan(&r.RunID, &r.WorkflowID, &r.Reason, &r.FinalText, &r.Error, &r.Steps, &msgs, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(msgs), &r.Messages); err != nil {
		return RunRecord{}, fmt.Errorf("decode run messages: %w", err)
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return RunRecord{}, err
	}
	if r.EndedAt, err = parseTime(finished); err != nil {
		return RunRecord{}, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (graph.Agent, error) {
	var (
		a     graph.Agent
		tools string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Prompt, &tools); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.Agent{}, err
		}
		return graph.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
		return graph.Agent{}, fmt.Errorf("decode agent tools: %w", err)
	}
	return a, nil
}

func scanWorkflow(row scanner) (*graph.Workflow, error) {
	var (
		wf    graph.Workflow
		nodes string
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &nodes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	if err := json.Unmarshal([]byte(nodes), &wf.Nodes); err != nil {
		return nil, fmt.Errorf("decode workflow nodes: %w", err)
	}
	return &wf, nil
}

func now() string {
	return formatTime(time.Now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

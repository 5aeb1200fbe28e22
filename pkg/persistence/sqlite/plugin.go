package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    status      TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_user ON requests(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status, created_at);

CREATE TABLE IF NOT EXISTS runs (
    request_id  TEXT PRIMARY KEY,
    body        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trials (
    request_id  TEXT NOT NULL,
    number      INTEGER NOT NULL,
    body        TEXT NOT NULL,
    PRIMARY KEY (request_id, number)
);

CREATE TABLE IF NOT EXISTS notifications (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, seq);
`

// Config holds SQLite-specific configuration
type Config struct {
	// Path is the database file; ":memory:" keeps everything in process
	Path string `json:"path"`
}

// Plugin implements PluginPersistence on a single SQLite database
type Plugin struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPlugin opens (and migrates) the database named by the config
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = "synth.db"
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
	}
	return Open(cfg.Path, config.Logger)
}

// Open returns a migrated plugin for path.
func Open(path string, logger *slog.Logger) (*Plugin, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	logger.Info("sqlite persistence ready", "path", path)
	return &Plugin{db: db, logger: logger}, nil
}

// RequestStorage returns the request storage implementation
func (p *Plugin) RequestStorage() persistence.RequestStorage {
	return &requestStorage{db: p.db}
}

// TrialStorage returns the trial storage implementation
func (p *Plugin) TrialStorage() persistence.TrialStorage {
	return &trialStorage{db: p.db}
}

// NotificationStorage returns the notification storage implementation
func (p *Plugin) NotificationStorage() persistence.NotificationStorage {
	return &notificationStorage{db: p.db}
}

// Health pings the database
func (p *Plugin) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database
func (p *Plugin) Close() error {
	return p.db.Close()
}

func init() {
	persistence.RegisterProvider("sqlite", NewPlugin)
}

type requestStorage struct {
	db *sql.DB
}

func (s *requestStorage) Create(ctx context.Context, req *domain.GenerationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO requests (id, user_id, status, created_at, body) VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.UserID, string(req.Status), req.CreatedAt.UnixNano(), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrAlreadyExists
	}
	return nil
}

func (s *requestStorage) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return getRequest(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRequest(ctx context.Context, q queryer, id string) (*domain.GenerationRequest, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM requests WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select request: %w", err)
	}
	var req domain.GenerationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

func (s *requestStorage) Save(ctx context.Context, req *domain.GenerationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, body = ? WHERE id = ?`,
		string(req.Status), string(body), req.ID,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *requestStorage) Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate persistence.Mutator) (*domain.GenerationRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !persistence.StatusAllowed(cur.Status, from) {
		return nil, fmt.Errorf("%w: request %s is %s", persistence.ErrStatusConflict, id, cur.Status)
	}
	next := cur.Clone()
	next.Status = to
	if mutate != nil {
		mutate(next)
		next.Status = to
	}
	body, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	// The status guard repeats the check so a concurrent writer cannot slip in.
	res, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = ?, body = ? WHERE id = ? AND status = ?`,
		string(to), string(body), id, string(cur.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: request %s changed concurrently", persistence.ErrStatusConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return next, nil
}

func (s *requestStorage) ListByUser(ctx context.Context, userID string, opts persistence.ListOptions) ([]*domain.GenerationRequest, int, error) {
	where := `user_id = ?`
	args := []any{userID}
	if opts.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(opts.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM requests WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	out, err := scanRequests(rows)
	return out, total, err
}

func (s *requestStorage) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM requests WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list requests by status: %w", err)
	}
	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]*domain.GenerationRequest, error) {
	defer rows.Close()
	out := []*domain.GenerationRequest{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var req domain.GenerationRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
		out = append(out, &req)
	}
	return out, rows.Err()
}

type trialStorage struct {
	db *sql.DB
}

func (s *trialStorage) SaveRun(ctx context.Context, run *domain.SearchRun) error {
	body, err := json.Marshal(run.Header())
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (request_id, body) VALUES (?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET body = excluded.body`,
		run.RequestID, string(body),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *trialStorage) GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM runs WHERE request_id = ?`, requestID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}
	var run domain.SearchRun
	if err := json.Unmarshal([]byte(body), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

func (s *trialStorage) RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error {
	body, err := json.Marshal(trial)
	if err != nil {
		return fmt.Errorf("marshal trial: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trials (request_id, number, body) VALUES (?, ?, ?)`,
		requestID, trial.Number, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

func (s *trialStorage) ResetTrials(ctx context.Context, requestID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM trials WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("delete trials: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return tx.Commit()
}

func (s *trialStorage) ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM trials WHERE request_id = ? ORDER BY number ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()
	out := []domain.TrialResult{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var t domain.TrialResult
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trial: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type notificationStorage struct {
	db *sql.DB
}

func (s *notificationStorage) Append(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, body) VALUES (?, ?, ?)`,
		n.ID, n.UserID, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *notificationStorage) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM notifications WHERE user_id = ? ORDER BY seq DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := []domain.Notification{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(body), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

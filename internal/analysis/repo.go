package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrNotFound is returned for unknown report ids.
var ErrNotFound = errors.New("analysis not found")

// Report is a persisted analysis run.
type Report struct {
	ID         string     `json:"id"`
	ClientID   string     `json:"client_id"`
	Request    Request    `json:"request"`
	Status     string     `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Repository persists reports in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a pending report for req.
func (r *Repository) Create(ctx context.Context, clientID string, req Request) (Report, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return Report{}, fmt.Errorf("encode request: %w", err)
	}
	rep := Report{ID: uuid.NewString(), ClientID: clientID, Request: req, Status: StatusPending}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO analyses (id, client_id, kind, params, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rep.ID, clientID, string(req.Kind), params, rep.Status)
	if err := row.Scan(&rep.CreatedAt); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// Get returns the report owned by clientID.
func (r *Repository) Get(ctx context.Context, clientID, id string) (Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Report{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, params, status, result, error, created_at, finished_at
		FROM analyses WHERE id = $1 AND client_id = $2
	`, id, clientID)
	var (
		rep    Report
		params []byte
	)
	if err := row.Scan(&rep.ID, &rep.ClientID, &params, &rep.Status, &rep.Result, &rep.Error, &rep.CreatedAt, &rep.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	if err := json.Unmarshal(params, &rep.Request); err != nil {
		return Report{}, fmt.Errorf("decode request: %w", err)
	}
	return rep, nil
}

// Finish records the outcome of a run.
func (r *Repository) Finish(ctx context.Context, id, status, result, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE analyses
		SET status = $2, result = $3, error = $4, finished_at = NOW()
		WHERE id = $1
	`, id, status, result, errMsg)
	return err
}

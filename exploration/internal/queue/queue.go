// Package queue is a SQLite visibility-timeout queue of exploration drives.
//
// A claimed job stays invisible for the visibility duration. The consumer
// acks it when the drive returns; if the process dies mid-drive the job
// becomes visible again and is redelivered, so no started exploration is
// left behind after a restart.
package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/radar/dbopen"
)

// Schema creates the jobs table.
const Schema = `
CREATE TABLE IF NOT EXISTS exploration_jobs (
    id          TEXT PRIMARY KEY,
    payload     BLOB,
    visible_at  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exploration_jobs_visible ON exploration_jobs(visible_at);
`

// Job is a row in the queue.
type Job struct {
	ID        string
	Payload   []byte
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed job stays invisible. It must exceed
	// the longest drive. Default: 16m.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts. Default: 500ms.
	PollInterval time.Duration
	// MaxAttempts discards a job redelivered more often. 0 means
	// unlimited. Default: 3.
	MaxAttempts int
	// OnDiscard is called with a job dropped after MaxAttempts, before it
	// is deleted.
	OnDiscard func(ctx context.Context, job *Job)
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 16 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New returns a queue on db. The schema must already be applied.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

const publishSQL = `INSERT INTO exploration_jobs (id, payload, visible_at, created_at) VALUES (?, ?, ?, ?)`

// Publish inserts a job that is immediately visible.
func (q *Q) Publish(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, q.db, publishSQL, id, payload, now, now)
	return err
}

// PublishTx is Publish inside tx, so the job exists only if tx commits.
func (q *Q) PublishTx(ctx context.Context, tx *sql.Tx, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := tx.ExecContext(ctx, publishSQL, id, payload, now, now)
	return err
}

// Claim atomically claims up to n visible jobs, oldest first, and hides
// them for the visibility duration. It returns an empty slice when nothing
// is visible.
func (q *Q) Claim(ctx context.Context, n int) ([]*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE exploration_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM exploration_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT ?
		)
		RETURNING id, payload, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		var j Job
		var visAt, creAt int64
		if err := rows.Scan(&j.ID, &j.Payload, &visAt, &creAt, &j.Attempts); err != nil {
			return nil, err
		}
		j.VisibleAt = time.UnixMilli(visAt)
		j.CreatedAt = time.UnixMilli(creAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// Ack deletes a processed job.
func (q *Q) Ack(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, q.db, `DELETE FROM exploration_jobs WHERE id = ?`, id)
	return err
}

// Nack makes a job visible again immediately.
func (q *Q) Nack(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, q.db, `UPDATE exploration_jobs SET visible_at = 0 WHERE id = ?`, id)
	return err
}

// Len returns the number of jobs, visible or not.
func (q *Q) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exploration_jobs`).Scan(&n)
	return n, err
}

// Handler processes a claimed job. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// Run claims jobs and runs handler on each with at most workers in flight.
// It blocks until ctx is cancelled, then waits for in-flight handlers.
func (q *Q) Run(ctx context.Context, workers int, handler Handler) {
	log := q.opts.Logger
	log.Info("queue: consumer started", "workers", workers, "visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		log.Info("queue: consumer stopped")
	}()

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		free := workers - len(sem)
		if free == 0 {
			continue
		}
		jobs, err := q.Claim(ctx, free)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue: claim failed", "error", err)
			continue
		}

		for _, job := range jobs {
			if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
				log.Warn("queue: job exceeded max attempts, discarding", "id", job.ID, "attempts", job.Attempts)
				if q.opts.OnDiscard != nil {
					q.opts.OnDiscard(context.WithoutCancel(ctx), job)
				}
				_ = q.Ack(context.WithoutCancel(ctx), job.ID)
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(j *Job) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := handler(ctx, j); err != nil {
					log.Warn("queue: handler failed, nacking", "id", j.ID, "error", err)
					_ = q.Nack(context.Background(), j.ID)
					return
				}
				_ = q.Ack(context.Background(), j.ID)
			}(job)
		}
	}
}

package storage

import (
	"database/sql"
	"fmt"
)

// Job states. A job moves PENDING → RUNNING → {COMPLETED, FAILED}.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
)

// Job is the persisted record of an asynchronous unit of work. Detail holds
// the JSON-encoded result for completed jobs or the failure reason.
type Job struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id,omitempty"`
	Type         string `json:"type"`
	State        string `json:"state"`
	Detail       string `json:"detail,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CreateJob records a new job in PENDING state.
func (d *DB) CreateJob(j *Job) error {
	if j.State == "" {
		j.State = JobPending
	}
	ts := now()
	j.CreatedAt, j.UpdatedAt = ts, ts
	_, err := d.db.Exec(`
		INSERT INTO jobs (id, collection_id, job_type, state, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, nullableString(j.CollectionID), j.Type, j.State, nullableString(j.Detail),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// UpdateJobState transitions a job and replaces its detail payload.
func (d *DB) UpdateJobState(id, state, detail string) error {
	res, err := d.db.Exec(`
		UPDATE jobs SET state = ?, detail = ?, updated_at = ? WHERE id = ?`,
		state, nullableString(detail), now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns ErrNotFound if absent.
func (d *DB) GetJob(id string) (*Job, error) {
	var j Job
	var collectionID, detail sql.NullString
	err := d.db.QueryRow(`
		SELECT id, collection_id, job_type, state, detail, created_at, updated_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &collectionID, &j.Type, &j.State, &detail, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	j.CollectionID = collectionID.String
	j.Detail = detail.String
	return &j, nil
}

// ListJobs returns jobs for a collection, newest first.
func (d *DB) ListJobs(collectionID string) ([]Job, error) {
	rows, err := d.db.Query(`
		SELECT id, collection_id, job_type, state, detail, created_at, updated_at
		FROM jobs WHERE collection_id = ? ORDER BY created_at DESC, id`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var cid, detail sql.NullString
		if err := rows.Scan(&j.ID, &cid, &j.Type, &j.State, &detail, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.CollectionID = cid.String
		j.Detail = detail.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

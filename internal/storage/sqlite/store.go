// Package sqlite persists a transformation audit trail: one row per
// transform job recording the datums, regions and remark text that produced
// an output, so provenance survives even when the output file is gone.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transform_jobs (
			job_id            TEXT PRIMARY KEY,
			source_datum      TEXT,
			target_datum      TEXT,
			regions           TEXT,
			remark            TEXT,
			point_count       BIGINT,
			out_of_coverage   BIGINT,
			duration_ms       BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Job is one recorded transformation run.
type Job struct {
	ID            string
	SourceDatum   string
	TargetDatum   string
	Regions       []string
	Remark        string
	PointCount    int64
	OutOfCoverage int64
	Duration      time.Duration
}

func (j *Job) String() string {
	return fmt.Sprintf(
		"ID: %s, SourceDatum: %s, TargetDatum: %s, Regions: %s, PointCount: %d, OutOfCoverage: %d, Duration: %s",
		j.ID,
		j.SourceDatum,
		j.TargetDatum,
		strings.Join(j.Regions, ","),
		j.PointCount,
		j.OutOfCoverage,
		j.Duration,
	)
}

// RecordJob inserts a job row, assigning a fresh ID when the caller left it
// empty. The assigned ID is written back into job.
func (db *DB) RecordJob(job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_, err := db.Exec(
		`INSERT INTO transform_jobs (
			job_id, source_datum, target_datum, regions, remark,
			point_count, out_of_coverage, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceDatum, job.TargetDatum, strings.Join(job.Regions, ","),
		job.Remark, job.PointCount, job.OutOfCoverage, job.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	return nil
}

// Jobs returns the most recent jobs, newest first.
func (db *DB) Jobs(limit int) ([]Job, error) {
	rows, err := db.Query(`SELECT job_id, source_datum, target_datum, regions, remark,
			point_count, out_of_coverage, duration_ms
		FROM transform_jobs ORDER BY timestamp DESC, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			job        Job
			regions    string
			durationMs int64
		)
		if err := rows.Scan(
			&job.ID,
			&job.SourceDatum,
			&job.TargetDatum,
			&regions,
			&job.Remark,
			&job.PointCount,
			&job.OutOfCoverage,
			&durationMs,
		); err != nil {
			return nil, err
		}
		if regions != "" {
			job.Regions = strings.Split(regions, ",")
		}
		job.Duration = time.Duration(durationMs) * time.Millisecond
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// Job looks one job up by ID.
func (db *DB) Job(id string) (*Job, error) {
	row := db.QueryRow(`SELECT job_id, source_datum, target_datum, regions, remark,
			point_count, out_of_coverage, duration_ms
		FROM transform_jobs WHERE job_id = ?`, id)

	var (
		job        Job
		regions    string
		durationMs int64
	)
	err := row.Scan(
		&job.ID,
		&job.SourceDatum,
		&job.TargetDatum,
		&regions,
		&job.Remark,
		&job.PointCount,
		&job.OutOfCoverage,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}
	if regions != "" {
		job.Regions = strings.Split(regions, ",")
	}
	job.Duration = time.Duration(durationMs) * time.Millisecond
	return &job, nil
}

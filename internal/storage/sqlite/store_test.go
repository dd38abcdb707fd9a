package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndFetchJob(t *testing.T) {
	db := openTestDB(t)

	job := &Job{
		SourceDatum:   "ellipse",
		TargetDatum:   "mllw",
		Regions:       []string{"CAORblan01_8301", "WAcoast33_4601"},
		Remark:        "vdatum=vdatum_4.2,base_datum=[NAD83],regions=[CAORblan01_8301],pipelines=[[]]",
		PointCount:    1200,
		OutOfCoverage: 3,
		Duration:      450 * time.Millisecond,
	}
	require.NoError(t, db.RecordJob(job))
	require.NotEmpty(t, job.ID, "RecordJob should assign an ID")

	got, err := db.Job(job.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(job, got); diff != "" {
		t.Errorf("job round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJobsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	for i, target := range []string{"mllw", "mhw", "navd88"} {
		job := &Job{
			ID:          string(rune('a' + i)),
			SourceDatum: "ellipse",
			TargetDatum: target,
			PointCount:  int64(i),
		}
		require.NoError(t, db.RecordJob(job))
	}

	jobs, err := db.Jobs(2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// same-timestamp rows fall back to ID order
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	all, err := db.Jobs(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJobEmptyRegions(t *testing.T) {
	db := openTestDB(t)

	job := &Job{SourceDatum: "ellipse", TargetDatum: "mllw"}
	require.NoError(t, db.RecordJob(job))

	got, err := db.Job(job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Regions)
}

func TestDuplicateJobID(t *testing.T) {
	db := openTestDB(t)

	job := &Job{ID: "fixed", SourceDatum: "ellipse", TargetDatum: "mllw"}
	require.NoError(t, db.RecordJob(job))
	err := db.RecordJob(&Job{ID: "fixed", SourceDatum: "ellipse", TargetDatum: "mhw"})
	require.Error(t, err)
}

package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/brightledger/hashlookup/internal/data/repos/testutil"
	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestParseFingerprintsDropsMalformedLines(t *testing.T) {
	input := strings.NewReader(strings.Join([]string{
		"0123456789abcdef0123456789abcdef",
		"not-a-hash",
		"",
		"0123456789ABCDEF0123456789ABCDEF",
		"0123456789abcdef0123456789abcde", // too short
	}, "\n"))

	fingerprints, dropped := parseFingerprints(input)
	if len(fingerprints) != 2 {
		t.Fatalf("expected 2 valid fingerprints, got %d: %v", len(fingerprints), fingerprints)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped lines, got %d", dropped)
	}
	if fingerprints[1] != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("expected uppercase fingerprint normalized to lowercase, got %q", fingerprints[1])
	}
}

type fakeJobRepo struct {
	created []*types.Job
	err     error
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, job *types.Job) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, job)
	return nil
}

type fakeTargetRepo struct {
	created []*types.Target
	err     error
}

func (f *fakeTargetRepo) BulkCreate(dbc dbctx.Context, targets []*types.Target) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, targets...)
	return nil
}

type fakeBroker struct {
	published []types.WorkUnitMessage
	failAfter int
	err       error
}

func (f *fakeBroker) PublishWorkUnit(msg types.WorkUnitMessage) error {
	if f.err != nil && len(f.published) >= f.failAfter {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

// requireDB skips the test unless a real Postgres is configured; CreateJob
// commits its job+target rows in one transaction, so it needs a real *gorm.DB
// even though the repos themselves are faked out.
func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.DB(t)
}

func TestCreateJobEmptyFileCompletesImmediately(t *testing.T) {
	db := requireDB(t)
	jobs := &fakeJobRepo{}
	targets := &fakeTargetRepo{}
	br := &fakeBroker{}
	hub := realtime.NewSSEHub(testLogger(t))
	svc := NewService(db, jobs, targets, br, hub, nil, 1000, testLogger(t))

	result, err := svc.CreateJob(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if result.TotalHashes != 0 {
		t.Fatalf("expected TotalHashes=0, got %d", result.TotalHashes)
	}
	if len(jobs.created) != 1 || jobs.created[0].Status != types.JobStatusCompleted {
		t.Fatalf("expected an immediately COMPLETED job row, got %+v", jobs.created)
	}
	if len(br.published) != 0 {
		t.Fatalf("expected no work units dispatched for an empty job, got %d", len(br.published))
	}
}

func TestCreateJobPartitionsIntoBatches(t *testing.T) {
	db := requireDB(t)
	jobs := &fakeJobRepo{}
	targets := &fakeTargetRepo{}
	br := &fakeBroker{}
	hub := realtime.NewSSEHub(testLogger(t))
	svc := NewService(db, jobs, targets, br, hub, nil, 2, testLogger(t))

	lines := []string{
		"000000000000000000000000000000a0",
		"000000000000000000000000000000b0",
		"000000000000000000000000000000c0",
	}
	for _, l := range lines {
		if len(l) != 32 {
			t.Fatalf("fixture fingerprint %q is not 32 hex characters", l)
		}
	}
	input := strings.NewReader(strings.Join(lines, "\n"))

	result, err := svc.CreateJob(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if result.TotalHashes != 3 {
		t.Fatalf("expected TotalHashes=3, got %d", result.TotalHashes)
	}
	if len(jobs.created) != 1 || jobs.created[0].BatchesExpected != 2 {
		t.Fatalf("expected 2 expected batches for batchSize=2 over 3 hashes, got %+v", jobs.created)
	}
	if len(targets.created) != 3 {
		t.Fatalf("expected 3 target rows, got %d", len(targets.created))
	}
	if len(br.published) != 2 {
		t.Fatalf("expected 2 work units dispatched, got %d", len(br.published))
	}
	if len(br.published[0].Fingerprints) != 2 || len(br.published[1].Fingerprints) != 1 {
		t.Fatalf("expected batch sizes [2,1], got [%d,%d]", len(br.published[0].Fingerprints), len(br.published[1].Fingerprints))
	}
}

func TestCreateJobPublishFailureStillReturnsJobID(t *testing.T) {
	db := requireDB(t)
	jobs := &fakeJobRepo{}
	targets := &fakeTargetRepo{}
	br := &fakeBroker{err: errors.New("nats unavailable"), failAfter: 0}
	hub := realtime.NewSSEHub(testLogger(t))
	svc := NewService(db, jobs, targets, br, hub, nil, 1000, testLogger(t))

	input := strings.NewReader("0123456789abcdef0123456789abcdef")
	result, err := svc.CreateJob(context.Background(), input)
	if err == nil {
		t.Fatalf("expected CreateJob to surface the publish failure")
	}
	if result == nil {
		t.Fatalf("expected a non-nil result even on a stranded job, to report the job id")
	}
	if len(jobs.created) != 1 {
		t.Fatalf("expected the job row to still be committed despite the publish failure")
	}
}

package jobs

import (
	"context"
	"testing"

	"github.com/brightledger/hashlookup/internal/data/repos/testutil"
	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
)

func TestResultRepoListForArtifactOrdersAndReportsMisses(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	targets := NewTargetRepo(db, testutil.Logger(t))
	results := NewResultRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	job := testutil.SeedJob(t, ctx, tx, 3, 1)

	hashes := []string{
		testutil.RandomFingerprint(t),
		testutil.RandomFingerprint(t),
		testutil.RandomFingerprint(t),
	}
	targetRows := make([]*types.Target, 0, len(hashes))
	for _, h := range hashes {
		targetRows = append(targetRows, &types.Target{JobID: job.ID, Hash: h})
	}
	if err := targets.BulkCreate(dbc, targetRows); err != nil {
		t.Fatalf("seed targets: %v", err)
	}

	// Only the first hash resolved.
	if err := results.BulkCreate(dbc, []*types.Result{
		{JobID: job.ID, Hash: hashes[0], Preimage: "15555550100"},
	}); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	rows, err := results.ListForArtifact(dbc, job.ID)
	if err != nil {
		t.Fatalf("ListForArtifact: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ListForArtifact: expected 3 rows, got %d", len(rows))
	}

	for i := 1; i < len(rows); i++ {
		if rows[i-1].Hash > rows[i].Hash {
			t.Fatalf("ListForArtifact: rows not ordered by hash, %q before %q", rows[i-1].Hash, rows[i].Hash)
		}
	}

	byHash := make(map[string]*string, len(rows))
	for i := range rows {
		byHash[rows[i].Hash] = rows[i].Preimage
	}
	if byHash[hashes[0]] == nil || *byHash[hashes[0]] != "15555550100" {
		t.Fatalf("expected preimage for %q, got %v", hashes[0], byHash[hashes[0]])
	}
	if byHash[hashes[1]] != nil {
		t.Fatalf("expected nil preimage for unmatched %q, got %v", hashes[1], byHash[hashes[1]])
	}
	if byHash[hashes[2]] != nil {
		t.Fatalf("expected nil preimage for unmatched %q, got %v", hashes[2], byHash[hashes[2]])
	}
}

func TestResultRepoBulkCreateIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	targets := NewTargetRepo(db, testutil.Logger(t))
	results := NewResultRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	job := testutil.SeedJob(t, ctx, tx, 1, 1)
	hash := testutil.RandomFingerprint(t)
	if err := targets.BulkCreate(dbc, []*types.Target{{JobID: job.ID, Hash: hash}}); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	result := &types.Result{JobID: job.ID, Hash: hash, Preimage: "15555550123"}
	if err := results.BulkCreate(dbc, []*types.Result{result}); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	// A retried delivery of the same work unit writes the same row again.
	if err := results.BulkCreate(dbc, []*types.Result{result}); err != nil {
		t.Fatalf("BulkCreate retry: %v", err)
	}

	rows, err := results.ListForArtifact(dbc, job.ID)
	if err != nil {
		t.Fatalf("ListForArtifact: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row after duplicate insert, got %d", len(rows))
	}
}

func TestResultRepoBulkCreateEmpty(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	results := NewResultRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	if err := results.BulkCreate(dbc, nil); err != nil {
		t.Fatalf("BulkCreate empty: %v", err)
	}
}

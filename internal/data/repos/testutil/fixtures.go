package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/brightledger/hashlookup/internal/domain"
)

// SeedJob inserts a running job with the given batch layout.
func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, totalHashes, batchesExpected int) *types.Job {
	tb.Helper()
	job := &types.Job{
		ID:              uuid.New(),
		Status:          types.JobStatusRunning,
		TotalHashes:     totalHashes,
		BatchesExpected: batchesExpected,
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return job
}

// SeedTargets inserts n randomly generated fingerprint targets for jobID.
func SeedTargets(tb testing.TB, ctx context.Context, tx *gorm.DB, jobID uuid.UUID, n int) []*types.Target {
	tb.Helper()
	targets := make([]*types.Target, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, &types.Target{JobID: jobID, Hash: RandomFingerprint(tb)})
	}
	if len(targets) > 0 {
		if err := tx.WithContext(ctx).Create(&targets).Error; err != nil {
			tb.Fatalf("seed targets: %v", err)
		}
	}
	return targets
}

// SeedMappingEntry inserts a known fingerprint->preimage row directly into
// the read-only mapping table, simulating the offline loader.
func SeedMappingEntry(tb testing.TB, ctx context.Context, tx *gorm.DB, fingerprintHex, preimage string) *types.MappingEntry {
	tb.Helper()
	raw, err := hex.DecodeString(fingerprintHex)
	if err != nil {
		tb.Fatalf("decode fingerprint: %v", err)
	}
	entry := &types.MappingEntry{Fingerprint: raw, PhoneNumber: preimage}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		tb.Fatalf("seed mapping entry: %v", err)
	}
	return entry
}

// RandomFingerprint returns a random 32-hex-character string.
func RandomFingerprint(tb testing.TB) string {
	tb.Helper()
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		tb.Fatalf("generate random fingerprint: %v", err)
	}
	return hex.EncodeToString(buf)
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

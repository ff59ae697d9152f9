package jobs

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

// MappingRepo looks up preimages against the precomputed, read-only
// fingerprint->preimage table. It talks to Postgres through pgx directly
// instead of GORM so a work unit's entire batch resolves in one round trip,
// per §4.3 step 2.
type MappingRepo interface {
	LookupBatch(ctx context.Context, fingerprints []string) ([]types.Match, error)
}

type mappingRepo struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewMappingRepo(pool *pgxpool.Pool, baseLog *logger.Logger) MappingRepo {
	return &mappingRepo{pool: pool, log: baseLog.With("repo", "MappingRepo")}
}

// LookupBatch decodes every fingerprint to its raw 16-byte form and issues a
// single `= ANY($1)` query against the bytea-keyed mapping table, which lets
// Postgres use the primary key index for the whole batch at once instead of
// one round trip per fingerprint.
func (r *mappingRepo) LookupBatch(ctx context.Context, fingerprints []string) ([]types.Match, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	raw := make([][]byte, 0, len(fingerprints))
	byHex := make(map[string]string, len(fingerprints))
	for _, fp := range fingerprints {
		decoded, err := hex.DecodeString(fp)
		if err != nil {
			r.log.Warn("skipping fingerprint that failed to decode", "fingerprint", fp, "error", err)
			continue
		}
		raw = append(raw, decoded)
		byHex[string(decoded)] = fp
	}
	if len(raw) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT md5_hash, phone_number
		FROM md5_phone_map_bin
		WHERE md5_hash = ANY($1)
	`, raw)
	if err != nil {
		return nil, fmt.Errorf("query mapping table: %w", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var fpBytes []byte
		var phone string
		if err := rows.Scan(&fpBytes, &phone); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		fpHex, ok := byHex[string(fpBytes)]
		if !ok {
			fpHex = hex.EncodeToString(fpBytes)
		}
		matches = append(matches, types.Match{Fingerprint: fpHex, Preimage: phone})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mapping rows: %w", err)
	}
	return matches, nil
}

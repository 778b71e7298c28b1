package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

var _ model.IdentityRegistry = (*IdentityRepository)(nil)

// IdentityRepository records which identities requested derivations.
type IdentityRepository struct {
	db *Connection
}

func NewIdentityRepository(db *Connection) *IdentityRepository {
	return &IdentityRepository{
		db: db,
	}
}

const identityColumns = `id, iss, aud, sub, zk_addr, request_count, first_seen_at, last_seen_at`

// Touch inserts the identity or bumps its request count and last-seen time.
func (r *IdentityRepository) Touch(ctx context.Context, rec model.IdentityRecord) (model.IdentityRecord, error) {
	query := `INSERT INTO identities (` + identityColumns + `)
			  VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
			  ON CONFLICT (iss, aud, sub) DO UPDATE
			  SET request_count = identities.request_count + 1,
			      zk_addr = EXCLUDED.zk_addr,
			      last_seen_at = EXCLUDED.last_seen_at
			  RETURNING ` + identityColumns

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	seen := rec.LastSeenAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}

	saved, err := scanIdentity(r.db.QueryRow(ctx, query, rec.ID, rec.Iss, rec.Aud, rec.Sub, rec.ZkAddr[:], seen))
	if err != nil {
		return model.IdentityRecord{}, fmt.Errorf("failed to touch identity: %w", err)
	}

	return saved, nil
}

// GetByZkAddr returns the identity registered under zkAddr.
func (r *IdentityRepository) GetByZkAddr(ctx context.Context, zkAddr model.ZkAddress) (model.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE zk_addr = $1
			  ORDER BY last_seen_at DESC LIMIT 1`

	rec, err := scanIdentity(r.db.QueryRow(ctx, query, zkAddr[:]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.IdentityRecord{}, model.ErrNotFound
		}
		return model.IdentityRecord{}, fmt.Errorf("failed to get identity by zk address: %w", err)
	}

	return rec, nil
}

func scanIdentity(row pgx.Row) (model.IdentityRecord, error) {
	var (
		rec    model.IdentityRecord
		zkAddr []byte
	)
	err := row.Scan(&rec.ID, &rec.Iss, &rec.Aud, &rec.Sub, &zkAddr, &rec.RequestCount, &rec.FirstSeenAt, &rec.LastSeenAt)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	if len(zkAddr) != len(rec.ZkAddr) {
		return model.IdentityRecord{}, fmt.Errorf("stored zk address is %d bytes", len(zkAddr))
	}
	copy(rec.ZkAddr[:], zkAddr)
	return rec, nil
}

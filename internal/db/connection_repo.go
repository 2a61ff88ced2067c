package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// ConnectionRepository provides access to messaging provider connections.
// Connections are owned by the surrounding application; the engine reads
// them and, on an unrecoverable send failure, clears the validity flag.
type ConnectionRepository struct {
	db DBTX
}

// NewConnectionRepository creates a new ConnectionRepository backed by the
// given database connection (pool or transaction).
func NewConnectionRepository(db DBTX) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `owner_type, owner_id, external_user_id,
	external_team_id, access_token_enc, refresh_token_enc, valid, updated_at`

// GetValidByOwner fetches the owner's valid connection. Returns (nil, nil)
// when none exists; the sweeps fall back to in-app delivery in that case.
func (r *ConnectionRepository) GetValidByOwner(ctx context.Context, owner types.Owner) (*types.Connection, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+connectionColumns+`
		 FROM connections
		 WHERE owner_type = $1 AND owner_id = $2 AND valid = TRUE`,
		string(owner.Type), owner.ID,
	)

	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch connection", err)
	}
	return conn, nil
}

// ListValid returns all valid connections. The weekly report sweep iterates
// this set.
func (r *ConnectionRepository) ListValid(ctx context.Context) ([]*types.Connection, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+connectionColumns+`
		 FROM connections
		 WHERE valid = TRUE
		 ORDER BY owner_type, owner_id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list connections", err)
	}
	defer rows.Close()

	var conns []*types.Connection
	for rows.Next() {
		c, scanErr := scanConnection(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan connection row", scanErr)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating connection rows", err)
	}

	return conns, nil
}

// MarkInvalid clears the validity flag after a send failure the engine
// cannot recover from (revoked credential, closed account). The owner must
// reconnect through the surrounding application to restore delivery.
func (r *ConnectionRepository) MarkInvalid(ctx context.Context, owner types.Owner) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE connections SET valid = FALSE, updated_at = NOW()
		 WHERE owner_type = $1 AND owner_id = $2`,
		string(owner.Type), owner.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to invalidate connection", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundConnection, "connection not found", nil)
	}
	return nil
}

func scanConnection(row rowScanner) (*types.Connection, error) {
	var (
		c         types.Connection
		ownerType string
		teamID    *string
	)

	err := row.Scan(
		&ownerType,
		&c.Owner.ID,
		&c.ExternalUserID,
		&teamID,
		&c.AccessTokenEnc,
		&c.RefreshTokenEnc,
		&c.Valid,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Owner.Type = types.OwnerType(ownerType)
	if teamID != nil {
		c.ExternalTeamID = *teamID
	}
	return &c, nil
}

package storage

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
)

// UserRepository persists users and their wallet connections. Only the
// connection address, kind and usage times are stored; signing material never
// reaches this layer.
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate resolves the user owning a wallet address, creating the account
// on first authentication.
func (r *UserRepository) GetOrCreate(ctx context.Context, walletAddress string) (*types.User, error) {
	walletAddress = strings.ToLower(walletAddress)

	user, err := r.getByWallet(ctx, walletAddress)
	if err == nil {
		return user, nil
	}
	if !errors.IsCode(err, errors.CodeNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created := &types.User{
		ID:            uuid.New().String(),
		WalletAddress: walletAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO users (id, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, query,
		created.ID, created.WalletAddress, created.CreatedAt, created.UpdatedAt,
	); err != nil {
		return nil, errors.NewDatabaseError("create user", err)
	}

	// A concurrent first-auth may have won the insert; the stored row is
	// authoritative either way.
	return r.getByWallet(ctx, walletAddress)
}

func (r *UserRepository) getByWallet(ctx context.Context, walletAddress string) (*types.User, error) {
	query := `
		SELECT id, wallet_address, created_at, updated_at
		FROM users
		WHERE wallet_address = $1
	`

	var user types.User
	err := r.db.Pool().QueryRow(ctx, query, walletAddress).Scan(
		&user.ID,
		&user.WalletAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("user", walletAddress)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get user", err)
	}
	return &user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	query := `
		SELECT id, wallet_address, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user types.User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.WalletAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get user", err)
	}
	return &user, nil
}

// TouchConnection records a wallet connection for a user, creating it on
// first use and bumping last_used on every later authentication.
func (r *UserRepository) TouchConnection(ctx context.Context, userID, address string, kind types.WalletKind, lastUsed time.Time) error {
	query := `
		INSERT INTO wallet_connections (id, user_id, address, kind, active, last_used, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)
		ON CONFLICT (user_id, address)
		DO UPDATE SET kind = EXCLUDED.kind, active = TRUE, last_used = EXCLUDED.last_used
	`
	if _, err := r.db.Pool().Exec(ctx, query,
		uuid.New().String(), userID, strings.ToLower(address), string(kind), lastUsed.UTC(),
	); err != nil {
		return errors.NewDatabaseError("touch wallet connection", err)
	}
	return nil
}

// Connections lists a user's wallet connections, most recently used first
func (r *UserRepository) Connections(ctx context.Context, userID string) ([]types.WalletConnection, error) {
	query := `
		SELECT id, user_id, address, kind, active, last_used, created_at
		FROM wallet_connections
		WHERE user_id = $1
		ORDER BY last_used DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, errors.NewDatabaseError("list wallet connections", err)
	}
	defer rows.Close()

	var connections []types.WalletConnection
	for rows.Next() {
		var conn types.WalletConnection
		var kind string
		if err := rows.Scan(
			&conn.ID, &conn.UserID, &conn.Address, &kind,
			&conn.Active, &conn.LastUsed, &conn.CreatedAt,
		); err != nil {
			return nil, errors.NewDatabaseError("scan wallet connection", err)
		}
		conn.Kind = types.WalletKind(kind)
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list wallet connections", err)
	}
	return connections, nil
}

// RemoveConnection deletes a wallet connection. Removing a user's last
// connection is rejected since it would orphan the account.
func (r *UserRepository) RemoveConnection(ctx context.Context, userID, address string) error {
	address = strings.ToLower(address)

	var total int
	countQuery := `SELECT COUNT(*) FROM wallet_connections WHERE user_id = $1`
	if err := r.db.Pool().QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return errors.NewDatabaseError("count wallet connections", err)
	}
	if total <= 1 {
		return errors.NewConflictError("cannot remove the last wallet connection")
	}

	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM wallet_connections WHERE user_id = $1 AND address = $2`,
		userID, address,
	)
	if err != nil {
		return errors.NewDatabaseError("remove wallet connection", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("wallet connection", address)
	}
	return nil
}

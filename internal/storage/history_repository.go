package storage

import (
	"context"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/portfolio"
)

// HistoryRepository stores portfolio value snapshots in ClickHouse. The table
// is append-only; every portfolio load contributes one row.
type HistoryRepository struct {
	db *ClickHouseDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *ClickHouseDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one snapshot
func (r *HistoryRepository) Append(ctx context.Context, snap *portfolio.Snapshot) error {
	query := `
		INSERT INTO portfolio_snapshots (wallet, total_value, total_annual_yield, position_count, taken_at)
		VALUES (?, ?, ?, ?, ?)
	`
	err := r.db.Conn().Exec(ctx, query,
		snap.Wallet,
		snap.TotalValue,
		snap.TotalAnnualYield,
		uint32(snap.PositionCount),
		snap.TakenAt.UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("append portfolio snapshot", err)
	}
	return nil
}

// Range returns a wallet's snapshots within [from, to], oldest first
func (r *HistoryRepository) Range(ctx context.Context, wallet string, from, to time.Time) ([]*portfolio.Snapshot, error) {
	query := `
		SELECT wallet, total_value, total_annual_yield, position_count, taken_at
		FROM portfolio_snapshots
		WHERE wallet = ? AND taken_at >= ? AND taken_at <= ?
		ORDER BY taken_at ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, wallet, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.NewDatabaseError("query portfolio snapshots", err)
	}
	defer rows.Close()

	var snapshots []*portfolio.Snapshot
	for rows.Next() {
		var snap portfolio.Snapshot
		var count uint32
		if err := rows.Scan(
			&snap.Wallet,
			&snap.TotalValue,
			&snap.TotalAnnualYield,
			&count,
			&snap.TakenAt,
		); err != nil {
			return nil, errors.NewDatabaseError("scan portfolio snapshot", err)
		}
		snap.PositionCount = int(count)
		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("query portfolio snapshots", err)
	}
	return snapshots, nil
}

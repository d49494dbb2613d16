package repository

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"parkcore/internal/entities"
)

// SpotRepository owns the spot catalog and implements the locator contract:
// RankCandidates returns spot IDs ordered by proximity rank with the
// request's constraints applied as filters.
type SpotRepository struct {
	DB *sql.DB
}

func NewSpotRepository(database *sql.DB) *SpotRepository {
	return &SpotRepository{DB: database}
}

func (r *SpotRepository) RankCandidates(c entities.Constraints) ([]string, error) {
	query := `SELECT id FROM spots WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if c.Zone != "" {
		query += fmt.Sprintf(" AND zone = $%d", idx)
		args = append(args, c.Zone)
		idx++
	}
	if c.NeedEV {
		query += " AND ev_capable = TRUE"
	}
	if c.NeedAccessible {
		query += " AND accessible = TRUE"
	}
	if len(c.SpotIDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", idx)
		args = append(args, pq.Array(c.SpotIDs))
		idx++
	}
	query += " ORDER BY proximity_rank, id"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error ranking candidate spots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning spot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SpotRepository) ListSpots() ([]entities.Spot, error) {
	rows, err := r.DB.Query(`SELECT id, zone, ev_capable, accessible, proximity_rank FROM spots ORDER BY zone, proximity_rank`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spots []entities.Spot
	for rows.Next() {
		var s entities.Spot
		if err := rows.Scan(&s.ID, &s.Zone, &s.EVCapable, &s.Accessible, &s.ProximityRank); err != nil {
			return nil, fmt.Errorf("error scanning spot: %w", err)
		}
		spots = append(spots, s)
	}
	return spots, rows.Err()
}

func (r *SpotRepository) CreateSpot(s *entities.Spot) error {
	_, err := r.DB.Exec(
		`INSERT INTO spots (id, zone, ev_capable, accessible, proximity_rank) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.Zone, s.EVCapable, s.Accessible, s.ProximityRank,
	)
	if err != nil {
		return fmt.Errorf("error creating spot %s: %w", s.ID, err)
	}
	return nil
}

func (r *SpotRepository) UpdateSpotAttributes(s *entities.Spot) error {
	res, err := r.DB.Exec(
		`UPDATE spots SET zone = $1, ev_capable = $2, accessible = $3, proximity_rank = $4 WHERE id = $5`,
		s.Zone, s.EVCapable, s.Accessible, s.ProximityRank, s.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating spot %s: %w", s.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

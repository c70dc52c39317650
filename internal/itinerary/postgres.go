package itinerary

import (
	"context"
	"encoding/json"
	"strings"

	"backend-tripmark/internal/db"
	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/shared/geo"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var selectColumns = []string{
	"id", "title", "owner_id", "location_name", "lat", "lng", "geohash", "route", "pins",
	"distance_m", "duration_sec",
	"COALESCE(saves,0)", "COALESCE(clicks,0)", "COALESCE(num_starts,0)",
	"created_at", "updated_at",
}

var selectSQL = "SELECT " + strings.Join(selectColumns, ", ") + " FROM itineraries"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository stores one row per itinerary. Missing counters read as 0.
type PostgresRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewPostgresRepository(q db.Querier, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: q, logger: logging.OrNop(logger)}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Itinerary, error) {
	return r.scan(r.db.QueryRow(ctx, selectSQL+" WHERE id=$1", id))
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Itinerary, error) {
	q := psql.Select(selectColumns...).From("itineraries").OrderBy("created_at", "id")
	if filter.OwnerID != "" {
		q = q.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build list query")
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list itineraries")
	}
	defer rows.Close()

	items := []Itinerary{}
	for rows.Next() {
		it, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "iterate itineraries")
}

func (r *PostgresRepository) Set(ctx context.Context, it Itinerary) (Itinerary, error) {
	args, err := writeArgs(it)
	if err != nil {
		return Itinerary{}, err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO itineraries (id, title, owner_id, location_name, lat, lng, geohash, route, pins,
		                         distance_m, duration_sec, saves, clicks, num_starts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE
		SET title=EXCLUDED.title, owner_id=EXCLUDED.owner_id, location_name=EXCLUDED.location_name,
		    lat=EXCLUDED.lat, lng=EXCLUDED.lng, geohash=EXCLUDED.geohash, route=EXCLUDED.route,
		    pins=EXCLUDED.pins, distance_m=EXCLUDED.distance_m, duration_sec=EXCLUDED.duration_sec,
		    saves=EXCLUDED.saves, clicks=EXCLUDED.clicks, num_starts=EXCLUDED.num_starts,
		    updated_at=now()
		RETURNING created_at, updated_at
	`, args...)
	if err := row.Scan(&it.CreatedAt, &it.UpdatedAt); err != nil {
		return Itinerary{}, errors.Wrap(err, "save itinerary")
	}
	return it, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM itineraries WHERE id=$1`, id)
	return errors.Wrap(err, "delete itinerary")
}

// RunTransaction locks the row for the duration of fn. There is no retry:
// the row lock serialises concurrent callers instead.
func (r *PostgresRepository) RunTransaction(ctx context.Context, id string, fn func(*Itinerary) error) (Itinerary, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Itinerary{}, errors.Wrap(err, "begin transaction")
	}

	it, err := r.scan(tx.QueryRow(ctx, selectSQL+" WHERE id=$1 FOR UPDATE", id))
	if err != nil {
		r.rollback(ctx, tx)
		return Itinerary{}, err
	}
	if err := fn(&it); err != nil {
		r.rollback(ctx, tx)
		return Itinerary{}, err
	}
	it.ID = id

	args, err := writeArgs(it)
	if err != nil {
		r.rollback(ctx, tx)
		return Itinerary{}, err
	}
	row := tx.QueryRow(ctx, `
		UPDATE itineraries
		SET title=$2, owner_id=$3, location_name=$4, lat=$5, lng=$6, geohash=$7, route=$8, pins=$9,
		    distance_m=$10, duration_sec=$11, saves=$12, clicks=$13, num_starts=$14, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, args...)
	if err := row.Scan(&it.UpdatedAt); err != nil {
		r.rollback(ctx, tx)
		return Itinerary{}, errors.Wrap(err, "write itinerary")
	}
	if err := tx.Commit(ctx); err != nil {
		return Itinerary{}, errors.Wrap(err, "commit transaction")
	}
	return it, nil
}

func (r *PostgresRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		r.logger.Warn("rollback failed", zap.Error(err))
	}
}

func (r *PostgresRepository) scan(row pgx.Row) (Itinerary, error) {
	var (
		it    Itinerary
		route string
		pins  []byte
	)
	err := row.Scan(&it.ID, &it.Title, &it.OwnerID, &it.Location.Name, &it.Location.Lat, &it.Location.Lng,
		&it.Location.Geohash, &route, &pins, &it.DistanceM, &it.DurationSec,
		&it.Saves, &it.Clicks, &it.NumStarts, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Itinerary{}, ErrNotFound
	}
	if err != nil {
		return Itinerary{}, errors.Wrap(err, "scan itinerary")
	}

	var ok bool
	if it.Route, ok = decodeRoute(route); !ok {
		r.logger.Warn("unreadable route, treating as empty", zap.String("itinerary_id", it.ID))
	}
	it.Pins = []Pin{}
	if len(pins) > 0 {
		if err := json.Unmarshal(pins, &it.Pins); err != nil {
			r.logger.Warn("unreadable pins, treating as empty", zap.String("itinerary_id", it.ID), zap.Error(err))
			it.Pins = []Pin{}
		}
	}
	return it, nil
}

func writeArgs(it Itinerary) ([]any, error) {
	pins := it.Pins
	if pins == nil {
		pins = []Pin{}
	}
	pinsJSON, err := json.Marshal(pins)
	if err != nil {
		return nil, errors.Wrap(err, "encode pins")
	}
	return []any{
		it.ID, it.Title, it.OwnerID, it.Location.Name, it.Location.Lat, it.Location.Lng,
		it.Location.Geohash, geo.EncodePath(it.Route), pinsJSON, it.DistanceM, it.DurationSec,
		it.Saves, it.Clicks, it.NumStarts,
	}, nil
}

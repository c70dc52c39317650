package itinerary

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-tripmark/internal/score"
	"backend-tripmark/internal/shared/geo"

	"github.com/pashagolub/pgxmock/v3"
)

var itineraryColumns = []string{
	"id", "title", "owner_id", "location_name", "lat", "lng", "geohash", "route", "pins",
	"distance_m", "duration_sec", "saves", "clicks", "num_starts", "created_at", "updated_at",
}

func itineraryRows(id, owner string, c score.Counters) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(itineraryColumns).AddRow(
		id, "Ridge walk", owner, "Summit", 1.0, 1.0, "s00twy0",
		geo.EncodePath(geo.Path{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}),
		[]byte(`[{"id":"pin-1","name":"Spring","location":{"lat":2,"lng":2}}]`),
		157000.0, int64(600), c.Saves, c.Clicks, c.NumStarts, now, now,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPostgresRepository(mock, nil)
}

func TestPostgresGet(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, title, owner_id, .*COALESCE\(saves,0\).* FROM itineraries WHERE id=\$1`).
		WithArgs("it-1").
		WillReturnRows(itineraryRows("it-1", "user-1", score.Counters{Saves: 10, Clicks: 20, NumStarts: 2}))

	it, err := repo.Get(context.Background(), "it-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if it.FlameCount() != 50 {
		t.Fatalf("expected flame count 50, got %d", it.FlameCount())
	}
	if len(it.Route) != 2 || it.Route[1] != (geo.Point{Lat: 1, Lng: 1}) {
		t.Fatalf("unexpected route %v", it.Route)
	}
	if len(it.Pins) != 1 || it.Pins[0].Location.Lat != 2 {
		t.Fatalf("unexpected pins %v", it.Pins)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`FROM itineraries WHERE id=\$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(itineraryColumns))

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresGetDamagedPins(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`FROM itineraries WHERE id=\$1`).
		WithArgs("it-1").
		WillReturnRows(pgxmock.NewRows(itineraryColumns).AddRow(
			"it-1", "t", "user-1", "", 0.0, 0.0, "", "\x01", []byte(`{broken`),
			0.0, int64(0), int64(0), int64(3), int64(0), now, now))

	it, err := repo.Get(context.Background(), "it-1")
	if err != nil {
		t.Fatalf("damaged fields must not fail the read: %v", err)
	}
	if len(it.Route) != 0 || len(it.Pins) != 0 {
		t.Fatalf("expected empty route and pins")
	}
	if it.FlameCount() != 3 {
		t.Fatalf("expected flame count 3, got %d", it.FlameCount())
	}
}

func TestPostgresListWithFilter(t *testing.T) {
	mock, repo := newMockRepo(t)

	rows := itineraryRows("it-1", "user-1", score.Counters{})
	mock.ExpectQuery(`SELECT id, title, .* FROM itineraries WHERE owner_id = \$1 ORDER BY created_at, id LIMIT 2`).
		WithArgs("user-1").
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), ListFilter{OwnerID: "user-1", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "it-1" {
		t.Fatalf("unexpected items %v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresListAll(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`FROM itineraries ORDER BY created_at, id$`).
		WillReturnRows(pgxmock.NewRows(itineraryColumns))

	items, err := repo.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list")
	}
}

func TestPostgresListError(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`FROM itineraries`).WillReturnError(errDB)

	if _, err := repo.List(context.Background(), ListFilter{}); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestPostgresSetAndDelete(t *testing.T) {
	mock, repo := newMockRepo(t)
	it := sampleItinerary("it-1", "user-1")
	it.Counters = score.Counters{Saves: 1}

	created := time.Now()
	mock.ExpectQuery(`INSERT INTO itineraries`).
		WithArgs("it-1", "Ridge walk", "user-1", "Summit", 1.0, 1.0, pgxmock.AnyArg(), geo.EncodePath(it.Route),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1), int64(0), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	saved, err := repo.Set(context.Background(), it)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !saved.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at from database")
	}

	mock.ExpectExec(`DELETE FROM itineraries`).WithArgs("it-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := repo.Delete(context.Background(), "it-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSetError(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO itineraries`).WithArgs(anyArgs(writeArgCount)...).WillReturnError(errDB)

	if _, err := repo.Set(context.Background(), sampleItinerary("it-1", "user-1")); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionCommits(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM itineraries WHERE id=\$1 FOR UPDATE`).
		WithArgs("it-1").
		WillReturnRows(itineraryRows("it-1", "user-1", score.Counters{Saves: 4}))
	mock.ExpectQuery(`UPDATE itineraries`).
		WithArgs("it-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			int64(5), int64(0), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	it, err := repo.RunTransaction(context.Background(), "it-1", func(doc *Itinerary) error {
		return doc.Increment(score.Saves)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if it.Saves != 5 || it.FlameCount() != 10 {
		t.Fatalf("unexpected result %+v", it.Counters)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionRollsBackOnFnError(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("it-1").
		WillReturnRows(itineraryRows("it-1", "user-1", score.Counters{}))
	mock.ExpectRollback()

	_, err := repo.RunTransaction(context.Background(), "it-1", func(doc *Itinerary) error {
		return doc.Increment(score.Counter("bogus"))
	})
	if !errors.Is(err, score.ErrUnknownCounter) {
		t.Fatalf("expected unknown counter, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("missing").WillReturnRows(pgxmock.NewRows(itineraryColumns))
	mock.ExpectRollback()

	_, err := repo.RunTransaction(context.Background(), "missing", func(*Itinerary) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionWriteFailure(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("it-1").
		WillReturnRows(itineraryRows("it-1", "user-1", score.Counters{}))
	mock.ExpectQuery(`UPDATE itineraries`).WithArgs(anyArgs(writeArgCount)...).WillReturnError(errDB)
	mock.ExpectRollback()

	_, err := repo.RunTransaction(context.Background(), "it-1", func(doc *Itinerary) error {
		return doc.Increment(score.Clicks)
	})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionCommitFailure(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("it-1").
		WillReturnRows(itineraryRows("it-1", "user-1", score.Counters{}))
	mock.ExpectQuery(`UPDATE itineraries`).
		WithArgs(anyArgs(writeArgCount)...).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit().WillReturnError(errDB)

	if _, err := repo.RunTransaction(context.Background(), "it-1", func(doc *Itinerary) error {
		return doc.Increment(score.NumStarts)
	}); !errors.Is(err, errDB) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRunTransactionBeginFailure(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errDB)

	called := false
	_, err := repo.RunTransaction(context.Background(), "it-1", func(*Itinerary) error {
		called = true
		return nil
	})
	if !errors.Is(err, errDB) || called {
		t.Fatalf("expected begin error without running fn, got %v", err)
	}
}

// writeArgCount is the number of bind parameters of the insert and update
// statements.
const writeArgCount = 14

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/storelens/storelens/internal/config"
)

const (
	driverLibsql   = "libsql"
	driverPostgres = "postgres"
	// pgx registers its database/sql driver under this name.
	driverPgx = "pgx"

	localBusyTimeoutMS = 5000
)

// ErrNotInitialized is returned by methods called on a nil or closed store.
var ErrNotInitialized = errors.New("store is not initialized")

// Store holds audit runs and collaborator rate limits. Clock stamps run
// timestamps; nil means time.Now.
type Store struct {
	DB     *sql.DB
	Clock  func() time.Time
	driver string
}

// backend describes how one configured driver reaches its database.
type backend struct {
	name    string // canonical driver name kept on the Store
	sqlName string // database/sql registration
	dsn     func(config.StoreConfig) (string, error)
	prepare func(ctx context.Context, db *sql.DB, dsn string) error
}

var backends = map[string]backend{
	driverLibsql:   {name: driverLibsql, sqlName: driverLibsql, dsn: buildLibsqlDSN, prepare: prepareLibsql},
	driverPostgres: {name: driverPostgres, sqlName: driverPgx, dsn: postgresDSN},
	driverPgx:      {name: driverPostgres, sqlName: driverPgx, dsn: postgresDSN},
}

// Open connects to the configured store. The default driver is libsql.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = driverLibsql
	}
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver: %s", name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := b.dsn(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(b.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", b.name, err)
	}
	if b.prepare != nil {
		if err := b.prepare(ctx, db, dsn); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", b.name, err)
	}
	return &Store{DB: db, driver: b.name}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the canonical driver name, libsql or postgres.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// prepareLibsql serializes access to a local SQLite file. libsql keeps
// pragmas per connection, so the pool is pinned to one. Remote databases
// are left alone.
func prepareLibsql(ctx context.Context, db *sql.DB, dsn string) error {
	if !isLocalDSN(dsn) {
		return nil
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"busy_timeout=" + strconv.Itoa(localBusyTimeoutMS)}
	if dsn != ":memory:" {
		pragmas = append([]string{"journal_mode=WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		// Both pragmas echo a row; libsql rejects Exec for them.
		var echoed string
		if err := db.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(&echoed); err != nil {
			return fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func (s *Store) ready(ctx context.Context) (context.Context, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, nil
}

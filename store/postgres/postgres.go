// Package postgres is the Postgres implementation of store.Driver, using
// pgvector for embedding similarity search.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/internal/profile"
	"github.com/coworklink/coworklink/store"
)

// DB is the Postgres-backed store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a connection pool against profile.DSN and verifies
// connectivity. The embedding column type and ANN index are assumed to be
// provisioned by migrations external to this package (§6: "database
// migrations... are out of scope").
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns the Postgres positional parameter "$n".
func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// placeholders returns a comma-joined "$1, $2, ..., $n" list.
func placeholders(n int) string {
	s := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			s += ", "
		}
		s += placeholder(i)
	}
	return s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func wrapNotFound(err error, format string, args ...any) error {
	if isNoRows(err) {
		return errors.Wrap(store.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return errors.Wrap(err, fmt.Sprintf(format, args...))
}

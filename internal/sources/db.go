package sources

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	// Registers the pgx stdlib driver under "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// DBClient wraps a database/sql pool for db-kind sources. A client built
// without a connection string stays unconnected and answers queries with an
// empty result.
type DBClient struct {
	db  *sql.DB
	log *slog.Logger
}

// NewDBClient opens a pool from a merged source config. The connection
// string comes from `connection_string`, the variable named by
// `connection_string_env`, or DATABASE_URL.
func NewDBClient(cfg map[string]any, log *slog.Logger) (*DBClient, error) {
	if log == nil {
		log = slog.Default()
	}
	conn := envOrDirect(cfg, "connection_string")
	if conn == "" {
		conn = os.Getenv("DATABASE_URL")
	}
	if conn == "" {
		log.Warn("db source has no connection string, queries return empty results")
		return &DBClient{log: log}, nil
	}

	db, err := sql.Open("pgx", conn)
	if err != nil {
		return nil, errors.Wrap(err, "db source: opening pool")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &DBClient{db: db, log: log}, nil
}

// Connected reports whether the client has a pool.
func (c *DBClient) Connected() bool { return c.db != nil }

// Query runs a read query and materializes the rows as maps keyed by column
// name. Unconnected clients return an empty slice.
func (c *DBClient) Query(ctx context.Context, query string, params ...any) ([]map[string]any, error) {
	if c.db == nil {
		return []map[string]any{}, nil
	}

	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errors.Wrap(err, "db source: query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "db source: reading columns")
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errors.Wrap(err, "db source: scanning row")
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "db source: iterating rows")
	}
	return results, nil
}

// Close releases the pool.
func (c *DBClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

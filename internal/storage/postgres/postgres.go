package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// num renders a decimal for a NUMERIC parameter.
func num(d decimal.Decimal) string {
	return d.String()
}

// decimalScanner collects NUMERIC columns selected as ::text.
type decimalScanner struct {
	targets []*decimal.Decimal
	raw     []string
}

func newDecimalScanner(targets ...*decimal.Decimal) *decimalScanner {
	return &decimalScanner{targets: targets, raw: make([]string, len(targets))}
}

// dests returns scan destinations for the text columns.
func (s *decimalScanner) dests() []any {
	out := make([]any, len(s.raw))
	for i := range s.raw {
		out[i] = &s.raw[i]
	}
	return out
}

// resolve parses the scanned text into the targets.
func (s *decimalScanner) resolve() error {
	for i, raw := range s.raw {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", raw, err)
		}
		*s.targets[i] = d
	}
	return nil
}

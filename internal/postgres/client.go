package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/duespay/duespay/internal/config"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	_ "github.com/lib/pq"
)

type txKey struct{}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Client wraps the sql connection pool and carries transactions through
// context, so repositories join an ambient transaction transparently.
type Client struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewClient(cfg config.PostgresConfig, log *logger.Logger) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to open postgres connection").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to ping postgres").
			Mark(ierr.ErrDatabase)
	}

	log.Infow("connected to postgres", "host", cfg.Host, "database", cfg.DBName)
	return &Client{db: db, logger: log}, nil
}

// NewClientWithDB wraps an existing connection, used by tests to run the
// repositories against a mocked database.
func NewClientWithDB(db *sql.DB, log *logger.Logger) *Client {
	return &Client{db: db, logger: log}
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Querier returns the transaction bound to ctx, or the pool when none is.
func (c *Client) Querier(ctx context.Context) Querier {
	if tx := c.TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db
}

// TxFromContext returns the transaction carried by ctx, if any.
func (c *Client) TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// WithTx runs fn inside a transaction. A transaction already carried by
// ctx is reused; otherwise one is started and committed or rolled back
// around fn.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := c.TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to begin transaction").
			Mark(ierr.ErrDatabase)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Errorw("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// Package database opens the Postgres pool and the Redis client.
package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/royalbingo/bingo-api/internal/pkg/retry"
)

// connectPolicy rides out a database container that starts after the API
func connectPolicy() retry.Policy {
	p := retry.Default(5*time.Second, func(error) bool { return true })
	p.MaxTries = 6
	p.InitialInterval = 500 * time.Millisecond
	return p
}

// NewPostgres opens the pool and waits until the server answers
func NewPostgres(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Wallet writes hold a row lock for one short transaction each
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	err = retry.Exec(context.Background(), connectPolicy(), "postgres ping", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msg("Connected to PostgreSQL")
	return db, nil
}

// ClosePostgres closes the pool
func ClosePostgres(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		return
	}
	log.Info().Msg("PostgreSQL connection closed")
}

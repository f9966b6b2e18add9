package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	// Postgres may come up after us in docker-compose.
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			log.Warn().Err(err).Str("module", "postgres").Int("attempt", attempt).Msg("connect failed")
		} else if err = pool.Ping(ctx); err != nil {
			pool.Close()
			log.Warn().Err(err).Str("module", "postgres").Int("attempt", attempt).Msg("ping failed")
		} else {
			log.Info().Str("module", "postgres").Int("attempt", attempt).Msg("database connected")
			return pool, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect after 5 attempts: %w", err)
}

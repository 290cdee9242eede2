package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer/memory"
	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer/sqlstore"
)

// openDataLayer resolves db_url to a concrete DataLayer. A "postgres://"
// DSN opens the sqlx/lib-pq-backed store; anything else (including the
// default "sqlite://" DSN, unwired per DESIGN.md) falls back to the
// in-memory store with a warning, so a bare `wavectl run` still starts.
func openDataLayer(ctx context.Context, dbURL string) (datalayer.DataLayer, func() error, error) {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		store, err := sqlstore.Open(ctx, dbURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	log.Warn().Str("db_url", dbURL).Msg("db_url is not a postgres:// DSN, using the in-memory data layer (not durable across restarts)")
	store := memory.New()
	return store, func() error { return nil }, nil
}

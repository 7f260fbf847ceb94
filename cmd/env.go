package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobplan/internal/fetcher"
	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/pipeline"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// serviceEnv holds the store and the service built on it.
type serviceEnv struct {
	Store   store.Store
	Service *pipeline.Service
}

func (e *serviceEnv) Close() {
	e.Store.Close() //nolint:errcheck
}

func initService(ctx context.Context) (*serviceEnv, error) {
	var aliases planfile.Aliases
	if cfg.Parse.AliasesPath != "" {
		a, err := planfile.LoadAliases(cfg.Parse.AliasesPath)
		if err != nil {
			return nil, err
		}
		aliases = a
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	f := fetcher.NewRouter(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	}, fetcher.FTPOptions{Timeout: timeout})

	return &serviceEnv{
		Store:   st,
		Service: pipeline.New(st, f, aliases, idgen.UUID{}),
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

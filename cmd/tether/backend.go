package main

import (
	"context"
	"database/sql"

	// The sql backend ships with SQLite linked in; other dialects need
	// the application to import its own driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tether-go/tether/internal/config"
	"github.com/tether-go/tether/internal/errors"
	"github.com/tether-go/tether/pkg/persist"
)

// openBackend builds the persist backend selected by the config. The
// returned cleanup closes whatever the backend opened; it is non-nil
// even when there is nothing to close.
func openBackend(cfg *config.Config) (persist.Backend, func(), error) {
	pc := cfg.Persist

	switch pc.Backend {
	case "", "file":
		dir := pc.Dir
		if dir == "" {
			var err error
			dir, err = persist.DefaultDir()
			if err != nil {
				return nil, nil, errors.New("E101").Wrap(err)
			}
		}
		fb, err := persist.NewFileBackend(dir)
		if err != nil {
			return nil, nil, errors.New("E101").Wrap(err)
		}
		return fb, func() { _ = fb.Close() }, nil

	case "memory":
		// Shared for the process, discarded on exit.
		return persist.Session(), func() {}, nil

	case "sql":
		if pc.DSN == "" {
			return nil, nil, errors.New("E302")
		}
		driver, dialect, err := sqlDriver(pc.Dialect)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open(driver, pc.DSN)
		if err != nil {
			return nil, nil, errors.New("E101").Wrap(err)
		}
		opts := []persist.SQLOption{persist.WithSQLDialect(dialect)}
		if pc.Table != "" {
			opts = append(opts, persist.WithSQLTable(pc.Table))
		}
		sb := persist.NewSQLBackend(db, opts...)
		if err := sb.CreateTable(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, errors.New("E101").Wrap(err)
		}
		return sb, func() { _ = db.Close() }, nil

	case "redis", "s3":
		return nil, nil, errors.Newf(errors.CategoryCLI,
			"the %s backend needs an in-process client and is not available from the CLI; construct it in application code with persist.New%sBackend",
			pc.Backend, map[string]string{"redis": "Redis", "s3": "S3"}[pc.Backend])

	default:
		return nil, nil, errors.New("E204").
			WithDetail("Persist.Backend is " + pc.Backend)
	}
}

// sqlDriver maps a config dialect name to the database/sql driver name
// and the backend dialect constant.
func sqlDriver(dialect string) (string, persist.SQLDialect, error) {
	switch dialect {
	case "", "sqlite":
		return "sqlite3", persist.DialectSQLite, nil
	case "postgres":
		return "postgres", persist.DialectPostgreSQL, nil
	case "mysql":
		return "mysql", persist.DialectMySQL, nil
	default:
		return "", 0, errors.Newf(errors.CategoryConfig,
			"unknown sql dialect %q: want sqlite, postgres, or mysql", dialect)
	}
}

// loadConfig loads tether.json from path (a file) or the working
// directory tree, falling back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load(".")
	if err != nil {
		if te, ok := err.(*errors.TetherError); ok && te.Code == "E201" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

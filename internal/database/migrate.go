package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// gooseLogger routes goose output through zap.
type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

func ensureDatabase(databaseURL string, log *zap.Logger) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Info("database created", zap.String("name", dbName))
	return nil
}

// withGoose opens databaseURL and hands it to fn with goose pointed at the
// embedded migrations.
func withGoose(databaseURL string, log *zap.Logger, fn func(db *sql.DB) error) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s: log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return fn(db)
}

// MigrateUp creates the database if needed and applies pending migrations.
func MigrateUp(databaseURL string, log *zap.Logger) error {
	if err := ensureDatabase(databaseURL, log); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	return withGoose(databaseURL, log, func(db *sql.DB) error {
		if err := goose.Up(db, migrationsDir); err != nil {
			return err
		}
		log.Info("migrate: up ok")
		return nil
	})
}

// MigrateDown rolls back the latest migration.
func MigrateDown(databaseURL string, log *zap.Logger) error {
	return withGoose(databaseURL, log, func(db *sql.DB) error {
		return goose.Down(db, migrationsDir)
	})
}

// MigrateStatus logs the applied state of every migration.
func MigrateStatus(databaseURL string, log *zap.Logger) error {
	return withGoose(databaseURL, log, func(db *sql.DB) error {
		return goose.Status(db, migrationsDir)
	})
}

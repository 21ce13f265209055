package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migration commands accepted by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate applies a goose command to the database behind p using the
// embedded migrations.
func Migrate(ctx context.Context, p *pgxpool.Pool, command string, logger *zap.Logger) error {
	switch command {
	case MigrateUp, MigrateDown, MigrateStatus:
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if p == nil {
		return fmt.Errorf("postgres pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := stdlib.OpenDBFromPool(p)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close migration connection", zap.Error(err))
		}
	}()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(&gooseLogger{logger: logger.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	var err error
	switch command {
	case MigrateUp:
		err = goose.UpContext(ctx, db, migrationsDir)
	case MigrateDown:
		err = goose.DownContext(ctx, db, migrationsDir)
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, migrationsDir)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	logger.Info("migration finished", zap.String("command", command))
	return nil
}

// gooseLogger routes goose output through zap. Fatalf logs instead of
// exiting; the error still reaches the caller.
type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Errorf(format, v...)
}

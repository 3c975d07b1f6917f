package telemetry

import (
	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/commercecore/fulfillment/internal/config"
)

// OpenDB opens an instrumented Postgres pool. Every query carried out
// through the returned handle is traced.
func OpenDB(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := otelsql.Open("postgres", cfg.URL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	if err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	return sqlx.NewDb(db, "postgres"), nil
}

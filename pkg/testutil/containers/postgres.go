//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"credregistry/internal/platform/database"
	"credregistry/internal/registry/models"
	"credregistry/migrations"
	id "credregistry/pkg/domain"
)

// registryTables lists every table the migrations create, children first.
var registryTables = []string{"outbox", "registry_events", "credentials", "issuers", "registry_owner"}

// PostgresContainer is a migrated Postgres reached through the same pool the
// server uses.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
	Pool      *database.Pool
	DB        *sql.DB
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("registry_test"),
		postgres.WithUsername("registry"),
		postgres.WithPassword("registry_test_password"),
		testcontainers.WithWaitStrategy(
			// Postgres logs readiness once for the init pass and once for real.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, err
	}

	pc, err := connectPostgres(ctx, container)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, err
	}
	return pc, nil
}

func connectPostgres(ctx context.Context, container *postgres.PostgresContainer) (*PostgresContainer, error) {
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}
	pool, err := database.New(ctx, database.DefaultConfig(dsn))
	if err != nil {
		return nil, err
	}
	if _, err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool, DB: pool.DB()}, nil
}

// TruncateAll resets every registry table. TRUNCATE is not row-level, so the
// append-only trigger on credentials does not fire.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(registryTables, ", ")+" RESTART IDENTITY CASCADE")
	return err
}

// CreateTestIssuer inserts an authorized issuer without going through the store.
func (p *PostgresContainer) CreateTestIssuer(ctx context.Context, tb testing.TB, addr id.Address, organization string) *models.Issuer {
	tb.Helper()
	issuer := &models.Issuer{Address: addr, Organization: organization, Authorized: true, UpdatedAt: time.Now().UTC()}
	if _, err := p.DB.ExecContext(ctx,
		`INSERT INTO issuers (address, organization, authorized, updated_at) VALUES ($1, $2, TRUE, $3)`,
		addr.String(), organization, issuer.UpdatedAt,
	); err != nil {
		tb.Fatalf("insert issuer %s: %v", addr, err)
	}
	return issuer
}

// CountRows returns the number of rows in table.
func (p *PostgresContainer) CountRows(ctx context.Context, tb testing.TB, table string) int {
	tb.Helper()
	var n int
	if err := p.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}

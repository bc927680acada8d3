package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/impactdao/treasury-engine/pkg/migrations/treasurydb"
	"github.com/impactdao/treasury-engine/pkg/pgutil"
)

func TestTreasuryDBMigrations_Apply(t *testing.T) {
	pgutil.RequireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, treasurydb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	expectedTables := []string{
		"treasury_stats",
		"platform_fees",
		"stakes",
		"ledger_txns",
		"yield_distributions",
		"dao_proposals",
		"proposal_allocations",
		"dao_votes",
		"gov_balances",
		"bun_migrations",
	}
	for _, table := range expectedTables {
		pgutil.AssertTableExists(t, db, table)
	}

	// Stats singleton is seeded by the first migration.
	pgutil.AssertRowCount(t, db, "treasury_stats", 1)

	pgutil.AssertIndexExists(t, db, "idx_platform_fees_source_type")
	pgutil.AssertIndexExists(t, db, "idx_stakes_staker")
	pgutil.AssertIndexExists(t, db, "uq_stakes_active_staker")
	pgutil.AssertIndexExists(t, db, "idx_dao_proposals_status")
	pgutil.AssertIndexExists(t, db, "idx_dao_votes_proposal_id")
}

func TestTreasuryDBMigrations_Rollback(t *testing.T) {
	pgutil.RequireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, treasurydb.Migrations)

	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// Roll everything back one group at a time.
	for {
		group, err := migrator.Rollback(ctx)
		if err != nil {
			t.Fatalf("Rollback() failed: %v", err)
		}
		if group.IsZero() {
			break
		}
	}

	var exists bool
	err := db.NewSelect().
		ColumnExpr("EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?)", "public", "dao_proposals").
		Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("failed to check table existence: %v", err)
	}
	if exists {
		t.Error("dao_proposals still exists after full rollback")
	}
}

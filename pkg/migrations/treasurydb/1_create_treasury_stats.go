package treasurydb

import (
	"context"
	"log"

	mghelper "github.com/impactdao/treasury-engine/pkg/pgutil/migrations"

	"github.com/impactdao/treasury-engine/pkg/ledgerstore"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating treasury_stats table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.StatsDao{}); err != nil {
			return err
		}
		// Seed the singleton row so the first read never races the first write.
		_, err := db.ExecContext(ctx, `
			INSERT INTO treasury_stats (
				id, total_fees_collected, total_fees_staked, pending_fees_to_stake,
				total_yield_distributed, operational_funds, endowment_principal,
				endowment_lifetime_yield
			) VALUES (1, 0, 0, 0, 0, 0, 0, 0)
			ON CONFLICT (id) DO NOTHING
		`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping treasury_stats table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.StatsDao{})
	})
}

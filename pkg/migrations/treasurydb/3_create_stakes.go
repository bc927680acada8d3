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
		log.Println("creating stakes table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.StakeDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &ledgerstore.StakeDao{}, "staker", "is_active"); err != nil {
			return err
		}
		// One active stake per staker; historical rows stay behind once
		// deactivated, so plain uniqueness on staker would not hold.
		_, err := db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS uq_stakes_active_staker
			ON stakes (staker) WHERE is_active
		`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping stakes table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.StakeDao{})
	})
}

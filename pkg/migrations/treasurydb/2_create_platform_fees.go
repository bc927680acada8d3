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
		log.Println("creating platform_fees table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.FeeDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &ledgerstore.FeeDao{}, "source_type", "is_staked", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping platform_fees table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.FeeDao{})
	})
}

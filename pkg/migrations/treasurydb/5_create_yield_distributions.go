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
		log.Println("creating yield_distributions table...")
		return mghelper.CreateSchema(ctx, db, &ledgerstore.DistributionDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping yield_distributions table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.DistributionDao{})
	})
}

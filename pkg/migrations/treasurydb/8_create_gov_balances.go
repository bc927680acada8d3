package treasurydb

import (
	"context"
	"log"

	mghelper "github.com/impactdao/treasury-engine/pkg/pgutil/migrations"

	"github.com/impactdao/treasury-engine/pkg/govstore"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating gov_balances table...")
		return mghelper.CreateSchema(ctx, db, &govstore.GovBalanceDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping gov_balances table...")
		return mghelper.DropTables(ctx, db, &govstore.GovBalanceDao{})
	})
}

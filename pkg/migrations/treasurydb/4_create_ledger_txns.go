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
		log.Println("creating ledger_txns table...")
		return mghelper.CreateSchema(ctx, db, &ledgerstore.LedgerTxnDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger_txns table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.LedgerTxnDao{})
	})
}

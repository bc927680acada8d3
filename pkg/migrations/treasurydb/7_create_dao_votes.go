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
		log.Println("creating dao_votes table...")
		if err := mghelper.CreateSchema(ctx, db, &govstore.VoteDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &govstore.VoteDao{}, "proposal_id", "voter")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping dao_votes table...")
		return mghelper.DropTables(ctx, db, &govstore.VoteDao{})
	})
}

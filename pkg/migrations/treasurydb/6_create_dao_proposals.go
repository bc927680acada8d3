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
		log.Println("creating dao_proposals and proposal_allocations tables...")
		if err := mghelper.CreateSchema(ctx, db, &govstore.ProposalDao{}, &govstore.AllocationDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &govstore.ProposalDao{}, "status", "voting_end_time", "proposer"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &govstore.AllocationDao{}, "proposal_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping dao_proposals and proposal_allocations tables...")
		return mghelper.DropTables(ctx, db, &govstore.AllocationDao{}, &govstore.ProposalDao{})
	})
}

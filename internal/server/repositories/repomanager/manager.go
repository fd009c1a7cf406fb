package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/profitpal/internal/dbx"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/attempts"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/identities"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/referrals"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Attempts(db dbx.DBTX) attempts.Repository
	Referrals(db dbx.DBTX) referrals.Repository
}

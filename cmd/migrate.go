package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/store/postgres"
)

// NewCmdMigrate creates the migrate command.
func NewCmdMigrate(_ *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply pending PostgreSQL schema migrations and print the schema version.
'serve' also migrates on startup. The sqlite driver creates its schema
when the database is opened.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}, migrate: true})
	if err != nil {
		return err
	}
	defer a.close()

	db, ok := a.store.(*postgres.DB)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date.\n", a.settings.StoreDriver)
		return nil
	}
	current, latest, err := db.SchemaVersion(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d of %d.\n", current, latest)
	return nil
}

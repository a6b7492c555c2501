package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/engineconfig"
	"github.com/barc/catalog/internal/storage"
	"github.com/barc/catalog/internal/storage/mysql"
	"github.com/barc/catalog/internal/storage/sqlite"
)

func newStoreForDialect(dialect string) (storage.Store, error) {
	switch dialect {
	case "", "sqlite":
		return sqlite.New(), nil
	case "mysql":
		return mysql.New(), nil
	default:
		return nil, fmt.Errorf("barc: unknown dialect %q", dialect)
	}
}

// openHandle opens (never creates) the catalog named by the --db/--dialect
// persistent flags.
func openHandle(ctx context.Context, cmd *cobra.Command) (*catalog.Handle, error) {
	dbPath, dialect, err := dbFlags(cmd)
	if err != nil {
		return nil, err
	}
	store, err := newStoreForDialect(dialect)
	if err != nil {
		return nil, err
	}
	return catalog.Open(ctx, store, dbPath, catalog.Options{Logger: logger})
}

func dbFlags(cmd *cobra.Command) (dbPath, dialect string, err error) {
	dbPath, err = cmd.Flags().GetString("db")
	if err != nil {
		return "", "", err
	}
	dialect, err = cmd.Flags().GetString("dialect")
	if err != nil {
		return "", "", err
	}
	return dbPath, dialect, nil
}

func loadEngineConfig(cmd *cobra.Command) (engineconfig.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return engineconfig.Config{}, err
	}
	return engineconfig.Load(path)
}

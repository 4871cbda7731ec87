package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/supplylist-worker/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long:  `Create the knowledge base, document log and entity tables if they do not exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

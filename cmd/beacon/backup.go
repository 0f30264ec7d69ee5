package main

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/beacon/pkg/storage"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the local queue database",
	Long: `Write a consistent copy of the local database, including queued events,
the profile cache and session bookkeeping. The copy is taken inside a read
transaction and can be used as a data directory by renaming it to beacon.db.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(cfg.DataDir, "beacon.db.backup")
		}

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("Creating backup: %s\n", out)
		if err := store.BackupFile(out); err != nil {
			return err
		}
		fmt.Println("✓ Backup created successfully")
		return nil
	},
}

func init() {
	backupCmd.Flags().StringP("out", "o", "", "Backup path (default: <data-dir>/beacon.db.backup)")
}

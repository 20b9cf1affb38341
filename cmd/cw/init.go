package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/config"
	"github.com/citeweave/citeweave/internal/storage"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new citeweave repository",
	Long: `Initialize a new citeweave repository in the current directory.

Creates:
  .citeweave/
  ├── config.json     # Default config
  ├── citeweave.db    # SQLite database
  ├── vectors/        # Embedding indexes, one file per collection
  └── pdfs/           # Stored PDF uploads`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, exitCode := getRepoRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	if config.IsRepository(root) {
		exitWithError(ExitError, "directory already contains a citeweave repository")
	}

	for _, dir := range []string{
		config.CiteweavePath(root),
		config.VectorsPath(root),
		config.PDFPath(root),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			exitWithError(ExitError, "creating %s: %v", dir, err)
		}
	}

	cfg := &config.Config{}
	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "creating config.json: %v", err)
	}

	// Opening the database creates the schema.
	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "creating database: %v", err)
	}
	db.Close()

	if humanOutput {
		fmt.Printf("Initialized citeweave repository in %s\n", root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: root})
	}

	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/export"
)

var exportCollection string

func init() {
	exportCmd.Flags().StringVarP(&exportCollection, "collection", "c", "", "Collection to export (required)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a collection as BibTeX",
	Long: `Export a collection as BibTeX.

Entries are written to stdout in collection order with citation keys of
the form authorYEARword; colliding keys get a numeric suffix.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(exportCollection)

	bib, err := export.CollectionBibTeX(a.db, collectionID)
	if err != nil {
		exitWithError(ExitError, "exporting collection: %v", err)
	}

	// BibTeX is the payload either way; --human changes nothing here.
	fmt.Print(bib)
	return nil
}

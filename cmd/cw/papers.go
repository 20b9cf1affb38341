package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var papersCollection string

func init() {
	papersCmd.AddCommand(papersListCmd)
	papersListCmd.Flags().StringVarP(&papersCollection, "collection", "c", "", "Collection to list (required)")
	rootCmd.AddCommand(papersCmd)
}

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Inspect papers in a collection",
}

var papersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers in a collection",
	RunE:  runPapersList,
}

func runPapersList(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(papersCollection)

	papers, err := a.db.ListPapers(collectionID)
	if err != nil {
		exitWithError(ExitError, "listing papers: %v", err)
	}

	if humanOutput {
		for _, p := range papers {
			year := "----"
			if p.Year > 0 {
				year = fmt.Sprintf("%d", p.Year)
			}
			fmt.Printf("%s  %s  %s  [%s]\n", p.ID, year, truncateString(p.Title, ListTitleMaxLen), p.AddedVia)
		}
		return nil
	}
	return outputJSON(papers)
}

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/paper"
)

func init() {
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage paper collections",
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsCreate,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with paper counts",
	RunE:  runCollectionsList,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <collection-id>",
	Short: "Delete a collection and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

func runCollectionsCreate(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	c := &paper.Collection{ID: uuid.New().String(), Title: args[0]}
	if err := a.db.CreateCollection(c); err != nil {
		exitWithError(ExitError, "creating collection: %v", err)
	}

	if humanOutput {
		fmt.Printf("Created collection %s (%s)\n", c.Title, c.ID)
	} else {
		outputJSON(c)
	}
	return nil
}

// collectionSummary is a collection with its paper count.
type collectionSummary struct {
	paper.Collection
	Papers int `json:"papers"`
}

func runCollectionsList(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collections, err := a.db.ListCollections()
	if err != nil {
		exitWithError(ExitError, "listing collections: %v", err)
	}

	summaries := make([]collectionSummary, 0, len(collections))
	for _, c := range collections {
		count, err := a.db.CountPapers(c.ID)
		if err != nil {
			exitWithError(ExitError, "counting papers: %v", err)
		}
		summaries = append(summaries, collectionSummary{Collection: c, Papers: count})
	}

	if humanOutput {
		for _, s := range summaries {
			fmt.Printf("%s  %s (%d papers)\n", s.ID, truncateString(s.Title, ListTitleMaxLen), s.Papers)
		}
		return nil
	}
	return outputJSON(summaries)
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	id := a.requireCollection(args[0])
	if err := a.db.DeleteCollection(id); err != nil {
		exitWithError(ExitError, "deleting collection: %v", err)
	}
	if err := a.vec.DropCollection(id); err != nil {
		exitWithError(ExitError, "dropping vector index: %v", err)
	}

	if humanOutput {
		fmt.Printf("Deleted collection %s\n", id)
	} else {
		outputJSON(StatusResponse{Status: "deleted", ID: id})
	}
	return nil
}

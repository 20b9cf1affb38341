// Package main provides the cw CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	// A .env in the working directory supplies CITEWEAVE_* overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Hybrid retrieval and citation graph engine for paper collections",
	Long: `cw manages collections of scholarly papers with hybrid search and
citation graph expansion.

Papers are ingested from PDFs or bibliographic search, deduplicated by
DOI and title/year identity, chunked, and indexed both lexically and by
embedding. Citation graphs grow outward from seed papers by resolving
referenced works against the Crossref API. All commands output JSON by
default for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// getRepoRoot returns the repository root, or exits with an error if not in a repository.
func getRepoRoot() (string, int) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}

	// Check CW_ROOT environment variable first
	if root := os.Getenv("CW_ROOT"); root != "" {
		cwd = root
	}

	return cwd, 0
}

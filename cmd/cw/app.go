package main

import (
	"fmt"
	"os"

	"github.com/citeweave/citeweave/internal/config"
	"github.com/citeweave/citeweave/internal/crossref"
	"github.com/citeweave/citeweave/internal/embedding"
	"github.com/citeweave/citeweave/internal/fusion"
	"github.com/citeweave/citeweave/internal/graph"
	"github.com/citeweave/citeweave/internal/ingest"
	"github.com/citeweave/citeweave/internal/lexical"
	"github.com/citeweave/citeweave/internal/resolve"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/vector"
)

// app bundles the services a command needs, wired from the repository at the
// current root.
type app struct {
	root     string
	cfg      *config.Config
	db       *storage.DB
	resolver *resolve.Resolver
	lex      *lexical.Index
	vec      *vector.Store
	provider *embedding.OllamaProvider
	client   *crossref.Client
	ingestor *ingest.Ingestor
	builder  *graph.Builder
	ranker   *fusion.Ranker
	locks    *graph.BuildLocks
}

// buildLocks is process-wide: one binary invocation must not start two
// builds over the same collection even through separate app instances.
var buildLocks = graph.NewBuildLocks()

// openApp locates the repository and wires the service graph. Exits with a
// config error when run outside a repository.
func openApp() *app {
	cwd, exitCode := getRepoRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	root, err := config.FindRepository(cwd)
	if err != nil {
		if humanOutput {
			fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		} else {
			outputJSON(ErrorResponse{Error: err.Error()})
		}
		os.Exit(ExitConfigError)
	}

	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}

	provider := newProvider()
	vec := vector.NewStore(config.VectorsPath(root), provider.ModelName(), provider.Dimensions())
	lex := lexical.NewIndex(db)
	resolver := resolve.NewResolver(db)
	client := newCrossrefClient(cfg)
	ingestor := ingest.New(db, resolver, lex, vec, provider, client)

	builder := graph.NewBuilder(db, resolver, client)
	builder.SetPaperHook(ingestor.IndexDiscoveredPaper)

	return &app{
		root:     root,
		cfg:      cfg,
		db:       db,
		resolver: resolver,
		lex:      lex,
		vec:      vec,
		provider: provider,
		client:   client,
		ingestor: ingestor,
		builder:  builder,
		ranker:   fusion.NewRanker(lex, vec),
		locks:    buildLocks,
	}
}

func (a *app) Close() {
	a.db.Close()
}

// newProvider builds the embedding provider from global config.
func newProvider() *embedding.OllamaProvider {
	var opts []embedding.OllamaOption
	if url := config.GetOllamaURL(); url != "" {
		opts = append(opts, embedding.WithBaseURL(url))
	}
	if model := config.GetEmbeddingModel(); model != "" {
		opts = append(opts, embedding.WithModel(model))
	}
	if cfg, _ := config.LoadGlobalConfig(); cfg != nil && cfg.EmbeddingDims > 0 {
		opts = append(opts, embedding.WithDimensions(cfg.EmbeddingDims))
	}
	return embedding.NewOllamaProvider(opts...)
}

// newCrossrefClient builds the bibliographic client. The mailto is taken
// from the repo config first, global config second.
func newCrossrefClient(cfg *config.Config) *crossref.Client {
	mailto := cfg.Mailto
	if mailto == "" {
		mailto = config.GetMailto()
	}

	opts := []crossref.ClientOption{crossref.WithMailto(mailto)}
	if base := config.GetCrossrefBaseURL(); base != "" {
		opts = append(opts, crossref.WithBaseURL(base))
	}
	return crossref.NewClient(opts...)
}

// requireCollection resolves a collection flag value, exiting with a data
// error when the collection does not exist.
func (a *app) requireCollection(id string) string {
	if id == "" {
		exitWithError(ExitDataError, "a collection is required (--collection)")
	}
	if _, err := a.db.GetCollection(id); err != nil {
		exitWithError(ExitDataError, "collection %s not found", id)
	}
	return id
}

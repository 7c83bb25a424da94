package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version is the current cargo-goodtimes version.
var Version = "0.2.0"

// cliFlags holds raw flag values before they are merged into a Config.
type cliFlags struct {
	configPath   string
	manifestPath string
	profile      string
	features     []string
	allFeatures  bool
	includeDeps  bool
	noOpen       bool
	top          int
	outputDir    string
	logLevel     string
	logFormat    string
	neo4jURI     string
	neo4jUser    string
	neo4jPass    string
	neo4jClean   bool

	metadataFile string
	timingsFile  string
	goDir        string
}

var flags cliFlags

var rootCmd = &cobra.Command{
	Use:           "cargo-goodtimes",
	Short:         "Interactive compilation timing analyzer",
	Long:          `cargo-goodtimes runs an instrumented cargo build, attributes compile time to each crate and reports the critical path: the chain of dependent crates that bounds total build time.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBuild,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze saved cargo metadata and a timing report without building",
	RunE:  runAnalyze,
}

var goPkgsCmd = &cobra.Command{
	Use:   "gopkgs",
	Short: "Analyze the package dependency graph of a Go module",
	RunE:  runGoPkgs,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to goodtimes.yaml (default: next to the manifest)")
	pf.BoolVar(&flags.includeDeps, "include-deps", false, "Include external dependencies in the graph and rebuild them")
	pf.BoolVar(&flags.noOpen, "no-open", false, "Don't open the report in a browser")
	pf.IntVar(&flags.top, "top", 10, "Number of slowest crates to list in the summary (0 disables)")
	pf.StringVarP(&flags.outputDir, "output", "o", "", "Directory for index.html and graph.json")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&flags.neo4jURI, "neo4j-uri", "", "Neo4j bolt URI; exports the graph when set")
	pf.StringVar(&flags.neo4jUser, "neo4j-user", "neo4j", "Neo4j username")
	pf.StringVar(&flags.neo4jPass, "neo4j-pass", "", "Neo4j password (or GOODTIMES_NEO4J_PASS)")
	pf.BoolVar(&flags.neo4jClean, "neo4j-clean", false, "Remove previously exported crates before loading")

	rootCmd.Flags().StringVar(&flags.manifestPath, "manifest-path", ".", "Path to Cargo.toml or directory containing it")
	rootCmd.Flags().StringVar(&flags.profile, "profile", "dev", "Build profile")
	rootCmd.Flags().StringSliceVar(&flags.features, "features", nil, "Features to enable (comma-separated)")
	rootCmd.Flags().BoolVar(&flags.allFeatures, "all-features", false, "Enable all features")

	analyzeCmd.Flags().StringVar(&flags.metadataFile, "metadata", "", "Output of `cargo metadata --format-version 1`")
	analyzeCmd.Flags().StringVar(&flags.timingsFile, "timings", "", "cargo-timing.html written by `cargo build --timings`")
	_ = analyzeCmd.MarkFlagRequired("metadata")
	_ = analyzeCmd.MarkFlagRequired("timings")

	goPkgsCmd.Flags().StringVar(&flags.goDir, "dir", ".", "Go module root directory")
	goPkgsCmd.Flags().StringVar(&flags.timingsFile, "timings", "", "Optional timing report to reconcile against package names")

	rootCmd.AddCommand(analyzeCmd, goPkgsCmd)
}

// cargoArgs drops the subcommand name cargo passes when invoked as
// `cargo goodtimes ...`.
func cargoArgs(args []string) []string {
	if len(args) > 0 && args[0] == "goodtimes" {
		return args[1:]
	}
	return args
}

// loadConfig merges the config file with every flag set on the command line.
func loadConfig(cmd *cobra.Command, manifestPath string) (*Config, error) {
	path, required := flags.configPath, true
	if path == "" {
		path, required = DefaultConfigPath(manifestPath), false
	}
	cfg, err := LoadConfig(path, required)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("manifest-path") {
		cfg.ManifestPath = flags.manifestPath
	}
	if changed("profile") {
		cfg.Profile = flags.profile
	}
	if changed("features") {
		cfg.Features = flags.features
	}
	if changed("all-features") {
		cfg.AllFeatures = flags.allFeatures
	}
	if changed("include-deps") {
		cfg.IncludeDeps = flags.includeDeps
	}
	if changed("no-open") {
		cfg.NoOpen = flags.noOpen
	}
	if changed("top") {
		cfg.Top = flags.top
	}
	if changed("output") {
		cfg.OutputDir = flags.outputDir
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if changed("neo4j-uri") {
		cfg.Neo4j.URI = flags.neo4jURI
	}
	if changed("neo4j-user") {
		cfg.Neo4j.User = flags.neo4jUser
	}
	if changed("neo4j-pass") {
		cfg.Neo4j.Password = flags.neo4jPass
	}
	if changed("neo4j-clean") {
		cfg.Neo4j.Clean = flags.neo4jClean
	}
	return cfg, nil
}

// newSink connects to Neo4j when configured. The returned close func is
// always safe to call.
func newSink(ctx context.Context, cfg *Config, logger *slog.Logger) (GraphSink, func(), error) {
	if cfg.Neo4j.URI == "" {
		return nil, func() {}, nil
	}
	if cfg.Neo4j.Password == "" {
		return nil, nil, fmt.Errorf("--neo4j-pass is required when --neo4j-uri is set")
	}
	loader, err := NewNeo4jLoader(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Clean, logger)
	if err != nil {
		return nil, nil, err
	}
	return loader, loader.Close, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, flags.manifestPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	manifest, err := ResolveManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}
	logger.Info("using manifest", "path", manifest)

	sink, closeSink, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	p := &Pipeline{
		Runner:      NewCargoRunner(manifest, logger),
		Options:     cfg.BuildOptions(),
		IncludeDeps: cfg.IncludeDeps,
		OutputDir:   cfg.OutputDir,
		Open:        !cfg.NoOpen,
		Top:         cfg.Top,
		Summary:     cmd.OutOrStdout(),
		Sink:        sink,
		Logger:      logger,
	}
	_, err = p.Run(ctx)
	return err
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, filepath.Dir(flags.metadataFile))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	f, err := os.Open(flags.metadataFile)
	if err != nil {
		return fmt.Errorf("opening metadata: %w", err)
	}
	meta, err := DecodeMetadata(f)
	f.Close()
	if err != nil {
		return err
	}

	graph, err := LoadDependencyGraph(meta, cfg.IncludeDeps)
	if err != nil {
		return fmt.Errorf("loading dependency graph: %w", err)
	}
	logger.Info("loaded crates", "crates", len(graph.Nodes), "edges", len(graph.Edges))

	if err := ApplyTimingsFile(graph, flags.timingsFile); err != nil {
		return fmt.Errorf("applying timings: %w", err)
	}

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir(filepath.Dir(flags.timingsFile))
	}
	return publish(ctx, cmd, cfg, graph, outDir, logger)
}

func runGoPkgs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, flags.goDir)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	absDir, err := filepath.Abs(flags.goDir)
	if err != nil {
		return err
	}
	modulePath, err := DetectModulePath(absDir)
	if err != nil {
		return fmt.Errorf("cannot detect Go module: %w", err)
	}
	logger.Info("loading packages", "module", modulePath, "dir", absDir)

	pkgs, err := LoadPackages(absDir)
	if err != nil {
		return err
	}
	collector := NewCollector(modulePath)
	collector.Collect(pkgs)

	graph, err := LoadDependencyGraph(collector.Metadata(), cfg.IncludeDeps)
	if err != nil {
		return fmt.Errorf("loading dependency graph: %w", err)
	}
	logger.Info("loaded packages", "packages", len(graph.Nodes), "edges", len(graph.Edges))

	if flags.timingsFile != "" {
		if err := ApplyTimingsFile(graph, flags.timingsFile); err != nil {
			return fmt.Errorf("applying timings: %w", err)
		}
	} else {
		ComputeCriticalPath(graph)
	}

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = filepath.Join(absDir, "goodtimes")
	}
	return publish(ctx, cmd, cfg, graph, outDir, logger)
}

// publish hands an already annotated graph to the report writers.
func publish(ctx context.Context, cmd *cobra.Command, cfg *Config, graph *BuildGraph, outDir string, logger *slog.Logger) error {
	sink, closeSink, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	p := &Pipeline{
		Open:    !cfg.NoOpen,
		Top:     cfg.Top,
		Summary: cmd.OutOrStdout(),
		Sink:    sink,
	}
	return p.publish(graph, outDir, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetArgs(cargoArgs(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Runner is the build tool collaborator driven by the pipeline.
type Runner interface {
	LoadGraph(ctx context.Context, includeDeps bool) (*BuildGraph, error)
	TargetDir(ctx context.Context) (string, error)
	WorkspacePackageNames(ctx context.Context) ([]string, error)
	PrebuildDeps(ctx context.Context, opts BuildOptions) error
	RunTimedBuild(ctx context.Context, opts BuildOptions) error
	Clean(ctx context.Context, packages []string) error
}

// GraphSink receives the finished graph, e.g. a Neo4j loader.
type GraphSink interface {
	LoadGraph(graph *BuildGraph) error
}

// Pipeline runs one timed build and produces the annotated graph.
type Pipeline struct {
	Runner      Runner
	Options     BuildOptions
	IncludeDeps bool
	OutputDir   string // defaults to <target>/cargo-goodtimes
	Open        bool
	Top         int
	Summary     io.Writer // optional text summary destination
	Sink        GraphSink // optional
	Logger      *slog.Logger

	openBrowser func(path string) error
}

// Run executes load → clean → build → timings → output.
func (p *Pipeline) Run(ctx context.Context) (*BuildGraph, error) {
	log := p.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	graph, err := p.Runner.LoadGraph(ctx, p.IncludeDeps)
	if err != nil {
		return nil, fmt.Errorf("loading dependency graph: %w", err)
	}
	log.Info("loaded crates", "crates", len(graph.Nodes), "edges", len(graph.Edges))

	if p.IncludeDeps {
		// Full clean so third-party deps are also recompiled and timed.
		log.Info("cleaning all crates")
		if err := p.Runner.Clean(ctx, nil); err != nil {
			return nil, err
		}
	} else {
		log.Info("pre-building dependencies")
		if err := p.Runner.PrebuildDeps(ctx, p.Options); err != nil {
			return nil, err
		}
		names, err := p.Runner.WorkspacePackageNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing workspace packages: %w", err)
		}
		if len(names) > 0 {
			log.Info("cleaning workspace crates", "count", len(names))
			if err := p.Runner.Clean(ctx, names); err != nil {
				return nil, err
			}
		}
	}

	log.Info("running timed build")
	if err := p.Runner.RunTimedBuild(ctx, p.Options); err != nil {
		return nil, err
	}

	targetDir, err := p.Runner.TargetDir(ctx)
	if err != nil {
		return nil, fmt.Errorf("locating target directory: %w", err)
	}
	if err := ApplyTimingsFile(graph, TimingReportPath(targetDir)); err != nil {
		return nil, fmt.Errorf("applying timings: %w", err)
	}
	log.Info("build complete",
		"critical_path_len", len(graph.CriticalPath),
		"critical_path_ms", graph.CriticalPathDuration(),
	)

	outDir := p.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir(targetDir)
	}
	if err := p.publish(graph, outDir, log); err != nil {
		return nil, err
	}
	return graph, nil
}

// publish writes the report files, summary and optional sink export.
func (p *Pipeline) publish(graph *BuildGraph, outDir string, log *slog.Logger) error {
	htmlPath, err := WriteReport(graph, outDir)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	log.Info("wrote report", "path", htmlPath)

	if p.Summary != nil {
		if err := WriteSummary(p.Summary, graph, p.Top); err != nil {
			return err
		}
	}

	if p.Sink != nil {
		if err := p.Sink.LoadGraph(graph); err != nil {
			return fmt.Errorf("exporting graph: %w", err)
		}
		log.Info("exported graph to neo4j")
	}

	if p.Open {
		open := p.openBrowser
		if open == nil {
			open = OpenBrowser
		}
		if err := open(htmlPath); err != nil {
			return fmt.Errorf("opening browser: %w", err)
		}
	}
	return nil
}

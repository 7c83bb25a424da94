package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records calls and writes a timing report on RunTimedBuild.
type fakeRunner struct {
	targetDir string
	graph     *BuildGraph
	report    string
	names     []string
	buildErr  error

	calls   []string
	cleaned [][]string
}

func (f *fakeRunner) LoadGraph(ctx context.Context, includeDeps bool) (*BuildGraph, error) {
	f.calls = append(f.calls, "load")
	return f.graph, nil
}

func (f *fakeRunner) TargetDir(ctx context.Context) (string, error) {
	return f.targetDir, nil
}

func (f *fakeRunner) WorkspacePackageNames(ctx context.Context) ([]string, error) {
	return f.names, nil
}

func (f *fakeRunner) PrebuildDeps(ctx context.Context, opts BuildOptions) error {
	f.calls = append(f.calls, "prebuild")
	return nil
}

func (f *fakeRunner) RunTimedBuild(ctx context.Context, opts BuildOptions) error {
	f.calls = append(f.calls, "build")
	if f.buildErr != nil {
		return f.buildErr
	}
	if f.report == "" {
		return nil
	}
	path := TimingReportPath(f.targetDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(f.report), 0o644)
}

func (f *fakeRunner) Clean(ctx context.Context, packages []string) error {
	f.calls = append(f.calls, "clean")
	f.cleaned = append(f.cleaned, packages)
	return nil
}

type recordingSink struct{ graphs []*BuildGraph }

func (s *recordingSink) LoadGraph(graph *BuildGraph) error {
	s.graphs = append(s.graphs, graph)
	return nil
}

func newFakeRunner(t *testing.T) *fakeRunner {
	return &fakeRunner{
		targetDir: t.TempDir(),
		graph:     newTestGraph(nil, "A->B", "B->C"),
		names:     []string{"A", "B", "C"},
		report: timingHTML(`[
			{"name":"A","version":"1.0.0","target":"","start":0.05,"duration":0.01},
			{"name":"B","version":"1.0.0","target":"","start":0.03,"duration":0.02},
			{"name":"C","version":"1.0.0","target":"","start":0.0,"duration":0.03},
			{"name":"C","version":"1.0.0","target":" build script","start":0.0,"duration":0.5}
		]`),
	}
}

func TestPipeline_WorkspaceOnly(t *testing.T) {
	runner := newFakeRunner(t)
	sink := &recordingSink{}
	var summary bytes.Buffer

	p := &Pipeline{Runner: runner, Summary: &summary, Top: 3, Sink: sink}
	g, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"load", "prebuild", "clean", "build"}, runner.calls)
	assert.Equal(t, [][]string{{"A", "B", "C"}}, runner.cleaned)

	assert.Equal(t, []CrateID{"C", "B", "A"}, g.CriticalPath)
	assert.InDelta(t, 60.0, g.CriticalPathDuration(), 1e-6)

	outDir := DefaultOutputDir(runner.targetDir)
	assert.FileExists(t, filepath.Join(outDir, "index.html"))
	assert.FileExists(t, filepath.Join(outDir, "graph.json"))
	assert.Contains(t, summary.String(), "Critical path (3 crates, 60 ms)")
	require.Len(t, sink.graphs, 1)
	assert.Same(t, g, sink.graphs[0])
}

func TestPipeline_IncludeDepsCleansEverything(t *testing.T) {
	runner := newFakeRunner(t)
	outDir := t.TempDir()

	p := &Pipeline{Runner: runner, IncludeDeps: true, OutputDir: outDir}
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"load", "clean", "build"}, runner.calls)
	assert.Equal(t, [][]string{nil}, runner.cleaned)
	assert.FileExists(t, filepath.Join(outDir, "index.html"))
}

func TestPipeline_OpensBrowser(t *testing.T) {
	runner := newFakeRunner(t)
	var opened string

	p := &Pipeline{Runner: runner, Open: true}
	p.openBrowser = func(path string) error {
		opened = path
		return nil
	}
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultOutputDir(runner.targetDir), "index.html"), opened)
}

func TestPipeline_MissingReport(t *testing.T) {
	runner := newFakeRunner(t)
	runner.report = ""

	p := &Pipeline{Runner: runner}
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReportMissing)
	assert.Contains(t, err.Error(), "applying timings")
}

func TestPipeline_BuildFailure(t *testing.T) {
	runner := newFakeRunner(t)
	runner.buildErr = errors.New("cargo check failed: exit status 101")

	p := &Pipeline{Runner: runner}
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, runner.buildErr)
	assert.NoDirExists(t, DefaultOutputDir(runner.targetDir))
}

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BuildOptions are the cargo flags shared by every check invocation.
type BuildOptions struct {
	Profile     string
	Features    []string
	AllFeatures bool
}

// CargoRunner invokes cargo subcommands for one manifest.
type CargoRunner struct {
	Bin          string // cargo executable, "cargo" when empty
	ManifestPath string
	Stdout       io.Writer // inherited output of build and clean steps
	Stderr       io.Writer
	Logger       *slog.Logger
}

// NewCargoRunner creates a runner for the given manifest that forwards cargo
// output to the process's stdio.
func NewCargoRunner(manifestPath string, logger *slog.Logger) *CargoRunner {
	return &CargoRunner{
		Bin:          "cargo",
		ManifestPath: manifestPath,
		Stdout:       os.Stderr,
		Stderr:       os.Stderr,
		Logger:       logger,
	}
}

func (r *CargoRunner) command(ctx context.Context, args ...string) *exec.Cmd {
	bin := r.Bin
	if bin == "" {
		bin = "cargo"
	}
	return exec.CommandContext(ctx, bin, args...)
}

// checkArgs builds the arguments for `cargo check` with the given options.
func checkArgs(manifestPath string, opts BuildOptions) []string {
	args := []string{"check", "--manifest-path", manifestPath}

	switch opts.Profile {
	case "", "dev":
	case "release":
		args = append(args, "--release")
	default:
		args = append(args, "--profile", opts.Profile)
	}

	if opts.AllFeatures {
		args = append(args, "--all-features")
	} else if len(opts.Features) > 0 {
		args = append(args, "--features", strings.Join(opts.Features, ","))
	}
	return args
}

// Metadata runs `cargo metadata` and decodes its output.
func (r *CargoRunner) Metadata(ctx context.Context, noDeps bool) (*ResolvedMetadata, error) {
	args := []string{"metadata", "--format-version", "1", "--manifest-path", r.ManifestPath}
	if noDeps {
		args = append(args, "--no-deps")
	}
	cmd := r.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("cargo metadata failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return DecodeMetadata(bytes.NewReader(out))
}

// LoadGraph loads the dependency graph of the manifest's workspace.
func (r *CargoRunner) LoadGraph(ctx context.Context, includeDeps bool) (*BuildGraph, error) {
	meta, err := r.Metadata(ctx, false)
	if err != nil {
		return nil, err
	}
	return LoadDependencyGraph(meta, includeDeps)
}

// TargetDir returns the workspace's target directory.
func (r *CargoRunner) TargetDir(ctx context.Context) (string, error) {
	meta, err := r.Metadata(ctx, true)
	if err != nil {
		return "", err
	}
	if meta.TargetDirectory == "" {
		return "", fmt.Errorf("cargo metadata did not report a target directory")
	}
	return meta.TargetDirectory, nil
}

// WorkspacePackageNames returns the names of all workspace member packages.
func (r *CargoRunner) WorkspacePackageNames(ctx context.Context) ([]string, error) {
	meta, err := r.Metadata(ctx, true)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(meta.Packages))
	for _, p := range meta.Packages {
		names = append(names, p.Name)
	}
	return names, nil
}

// PrebuildDeps runs a check without --timings so external dependencies are
// compiled before workspace crates are cleaned.
func (r *CargoRunner) PrebuildDeps(ctx context.Context, opts BuildOptions) error {
	cmd := r.command(ctx, checkArgs(r.ManifestPath, opts)...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cargo check (pre-build deps) failed: %w", err)
	}
	return nil
}

// cargoMessage is the part of a --message-format=json line we look at.
type cargoMessage struct {
	Reason  string `json:"reason"`
	Fresh   bool   `json:"fresh"`
	Success *bool  `json:"success"`
}

// RunTimedBuild runs the instrumented check that writes the timing report.
// The JSON message stream is drained so cargo never blocks on stdout.
func (r *CargoRunner) RunTimedBuild(ctx context.Context, opts BuildOptions) error {
	args := append(checkArgs(r.ManifestPath, opts), "--message-format=json", "--timings")
	cmd := r.command(ctx, args...)
	cmd.Stderr = r.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capturing cargo stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting cargo check: %w", err)
	}

	fresh, rebuilt, err := drainMessages(stdout)
	if err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("reading cargo messages: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("cargo check failed: %w", err)
	}
	if r.Logger != nil {
		r.Logger.Debug("build artifacts", "fresh", fresh, "rebuilt", rebuilt)
	}
	return nil
}

// drainMessages consumes cargo's JSON message stream and counts artifacts.
// Lines that are not JSON (for example build script output) are skipped.
func drainMessages(r io.Reader) (fresh, rebuilt int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg cargoMessage
		if json.Unmarshal(line, &msg) != nil {
			continue
		}
		if msg.Reason == "compiler-artifact" {
			if msg.Fresh {
				fresh++
			} else {
				rebuilt++
			}
		}
	}
	return fresh, rebuilt, sc.Err()
}

// Clean removes build artifacts, only for the named packages when given.
func (r *CargoRunner) Clean(ctx context.Context, packages []string) error {
	args := []string{"clean", "--manifest-path", r.ManifestPath}
	for _, p := range packages {
		args = append(args, "-p", p)
	}
	cmd := r.command(ctx, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cargo clean failed: %w", err)
	}
	return nil
}

// TimingReportPath returns where cargo writes the --timings HTML report.
func TimingReportPath(targetDir string) string {
	return filepath.Join(targetDir, "cargo-timings", "cargo-timing.html")
}

// ResolveManifest accepts a Cargo.toml path or a directory containing one
// and returns the absolute manifest path.
func ResolveManifest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %s", path)
	}
	manifest := path
	if info.IsDir() {
		manifest = filepath.Join(path, "Cargo.toml")
		if _, err := os.Stat(manifest); err != nil {
			return "", fmt.Errorf("no Cargo.toml found in %s", path)
		}
	}
	abs, err := filepath.Abs(manifest)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

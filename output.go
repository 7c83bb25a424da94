package main

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"text/tabwriter"
)

//go:embed assets/index.html.tmpl
var indexTemplateSource string

var indexTemplate = template.Must(template.New("index").Parse(indexTemplateSource))

// DefaultOutputDir is where reports go when no output directory is given.
func DefaultOutputDir(targetDir string) string {
	return filepath.Join(targetDir, "cargo-goodtimes")
}

// WriteJSON writes the graph as indented JSON.
func WriteJSON(w io.Writer, graph *BuildGraph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(graph)
}

// RenderHTML renders the self-contained visualization page.
func RenderHTML(w io.Writer, graph *BuildGraph) error {
	// json.Marshal escapes <, > and &, so "</script" cannot end the tag early.
	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return indexTemplate.Execute(w, struct {
		Title     string
		GraphJSON template.JS
	}{
		Title:     "cargo goodtimes",
		GraphJSON: template.JS(data),
	})
}

// WriteReport writes index.html and graph.json into outDir and returns the
// HTML path.
func WriteReport(graph *BuildGraph, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	var html bytes.Buffer
	if err := RenderHTML(&html, graph); err != nil {
		return "", err
	}
	htmlPath := filepath.Join(outDir, "index.html")
	if err := os.WriteFile(htmlPath, html.Bytes(), 0o644); err != nil {
		return "", err
	}

	var js bytes.Buffer
	if err := WriteJSON(&js, graph); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(outDir, "graph.json"), js.Bytes(), 0o644); err != nil {
		return "", err
	}
	return htmlPath, nil
}

// WriteSummary prints the critical path followed by the slowest crates.
func WriteSummary(w io.Writer, graph *BuildGraph, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Critical path (%d crates, %.0f ms)\n", len(graph.CriticalPath), graph.CriticalPathDuration())
	fmt.Fprintln(tw, "#\tCRATE\tDURATION\tSTART")
	for i, id := range graph.CriticalPath {
		n := graph.Nodes[id]
		if n == nil {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s %s\t%s\t%s\n", i+1, n.Name, n.Version, formatMs(n.DurationMs), formatMs(n.StartMs))
	}

	if top > 0 {
		nodes := slowest(graph, top)
		fmt.Fprintf(tw, "\nSlowest crates\n")
		fmt.Fprintln(tw, "CRATE\tDURATION\tFRESH")
		for _, n := range nodes {
			fmt.Fprintf(tw, "%s %s\t%s\t%t\n", n.Name, n.Version, formatMs(n.DurationMs), n.Fresh)
		}
	}
	return tw.Flush()
}

// slowest returns up to n timed nodes ordered by duration, longest first.
func slowest(graph *BuildGraph, n int) []*CrateNode {
	var timed []*CrateNode
	for _, id := range graph.SortedIDs() {
		if node := graph.Nodes[id]; node.DurationMs != nil {
			timed = append(timed, node)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool { return *timed[i].DurationMs > *timed[j].DurationMs })
	if len(timed) > n {
		timed = timed[:n]
	}
	return timed
}

func formatMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f ms", *v)
}

// OpenBrowser opens the report in the platform's default browser.
func OpenBrowser(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	url := "file://" + filepath.ToSlash(abs)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

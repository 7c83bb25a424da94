package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func testPackages() []*packages.Package {
	mainMod := &packages.Module{Path: "example.com/app", Main: true}
	yaml := &packages.Package{
		ID: "gopkg.in/yaml.v3", PkgPath: "gopkg.in/yaml.v3", Name: "yaml",
		Module:  &packages.Module{Path: "gopkg.in/yaml.v3", Version: "v3.0.1"},
		Imports: map[string]*packages.Package{},
	}
	fmtPkg := &packages.Package{ID: "fmt", PkgPath: "fmt", Name: "fmt", Imports: map[string]*packages.Package{}}
	store := &packages.Package{
		ID: "example.com/app/internal/store", PkgPath: "example.com/app/internal/store", Name: "store",
		Module:  mainMod,
		Imports: map[string]*packages.Package{"fmt": fmtPkg, "gopkg.in/yaml.v3": yaml},
	}
	app := &packages.Package{
		ID: "example.com/app", PkgPath: "example.com/app", Name: "main",
		Module:  mainMod,
		Imports: map[string]*packages.Package{"fmt": fmtPkg, "example.com/app/internal/store": store},
	}
	// Shares a prefix with the module path but lives elsewhere.
	other := &packages.Package{
		ID: "example.com/application", PkgPath: "example.com/application", Name: "application",
		Module:  &packages.Module{Path: "example.com/application", Version: "v0.1.0"},
		Imports: map[string]*packages.Package{},
	}
	app.Imports["example.com/application"] = other
	return []*packages.Package{app, store}
}

func TestCollector_Metadata(t *testing.T) {
	c := NewCollector("example.com/app")
	c.Collect(testPackages())
	meta := c.Metadata()

	assert.Equal(t, []string{"example.com/app", "example.com/app/internal/store"}, meta.WorkspaceMembers)
	require.Len(t, meta.Packages, 5)

	versions := map[string]string{}
	for _, p := range meta.Packages {
		versions[p.ID] = p.Version
	}
	assert.Equal(t, "(devel)", versions["example.com/app"])
	assert.Equal(t, "std", versions["fmt"])
	assert.Equal(t, "v3.0.1", versions["gopkg.in/yaml.v3"])
	assert.Equal(t, "v0.1.0", versions["example.com/application"])
}

func TestCollector_FeedsGraphBuilder(t *testing.T) {
	c := NewCollector("example.com/app")
	c.Collect(testPackages())

	g, err := LoadDependencyGraph(c.Metadata(), false)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, DepEdge{
		From:     "example.com/app",
		To:       "example.com/app/internal/store",
		DepKinds: []string{"normal"},
	}, g.Edges[0])

	full, err := LoadDependencyGraph(c.Metadata(), true)
	require.NoError(t, err)
	assert.Len(t, full.Nodes, 5)
	assert.Len(t, full.Edges, 5)
	require.NoError(t, full.Validate())
}

func TestDetectModulePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/app\n\ngo 1.22\n"), 0o644))

	path, err := DetectModulePath(dir)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app", path)

	_, err = DetectModulePath(t.TempDir())
	assert.ErrorContains(t, err, "cannot read go.mod")

	noModule := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noModule, "go.mod"), []byte("go 1.22\n"), 0o644))
	_, err = DetectModulePath(noModule)
	assert.ErrorContains(t, err, "module directive not found")
}

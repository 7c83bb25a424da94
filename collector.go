package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"
)

// Collector gathers package resolution data for a Go module using
// golang.org/x/tools/go/packages, in the same shape cargo metadata provides.
type Collector struct {
	RootModule string

	packages map[string]Package
	nodes    map[string]*ResolveNode
}

// NewCollector creates a Collector scoped to the given root module path.
func NewCollector(rootModule string) *Collector {
	return &Collector{
		RootModule: rootModule,
		packages:   make(map[string]Package),
		nodes:      make(map[string]*ResolveNode),
	}
}

// isProjectPackage reports whether pkgPath belongs to the analysed module.
func (c *Collector) isProjectPackage(pkgPath string) bool {
	return pkgPath == c.RootModule || strings.HasPrefix(pkgPath, c.RootModule+"/")
}

// LoadPackages loads every package of the module in dir with its imports.
func LoadPackages(dir string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps | packages.NeedModule,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	return pkgs, nil
}

// packageVersion derives a display version for a Go package.
func packageVersion(pkg *packages.Package) string {
	switch {
	case pkg.Module == nil:
		return "std"
	case pkg.Module.Main:
		return "(devel)"
	case pkg.Module.Replace != nil && pkg.Module.Replace.Version != "":
		return pkg.Module.Replace.Version
	default:
		return pkg.Module.Version
	}
}

// Collect walks pkgs and every transitive import, recording packages and
// their import edges.
func (c *Collector) Collect(pkgs []*packages.Package) {
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		if _, ok := c.packages[pkg.PkgPath]; ok {
			return
		}
		c.packages[pkg.PkgPath] = Package{
			ID:      pkg.PkgPath,
			Name:    pkg.PkgPath,
			Version: packageVersion(pkg),
		}

		node := &ResolveNode{ID: pkg.PkgPath}
		imports := make([]string, 0, len(pkg.Imports))
		for path := range pkg.Imports {
			imports = append(imports, path)
		}
		sort.Strings(imports)
		for _, path := range imports {
			imp := pkg.Imports[path]
			node.Deps = append(node.Deps, NodeDep{
				Name:     imp.Name,
				Pkg:      imp.PkgPath,
				DepKinds: []DepKindInfo{{}},
			})
		}
		c.nodes[pkg.PkgPath] = node
	})
}

// Metadata returns the collected data as ResolvedMetadata. Project packages
// become workspace members.
func (c *Collector) Metadata() *ResolvedMetadata {
	meta := &ResolvedMetadata{Resolve: &Resolve{}}

	ids := make([]string, 0, len(c.packages))
	for id := range c.packages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		meta.Packages = append(meta.Packages, c.packages[id])
		meta.Resolve.Nodes = append(meta.Resolve.Nodes, *c.nodes[id])
		if c.isProjectPackage(id) {
			meta.WorkspaceMembers = append(meta.WorkspaceMembers, id)
		}
	}
	return meta
}

// DetectModulePath reads the go.mod file in dir and returns the module path.
func DetectModulePath(dir string) (string, error) {
	gomod := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", fmt.Errorf("cannot read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("module directive not found in go.mod")
	}
	return path, nil
}

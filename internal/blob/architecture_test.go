package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestInfraIsReachedThroughFacades keeps handlers, media and the CLI on the
// blob.Store and core.Service surfaces instead of concrete infra drivers.
func TestInfraIsReachedThroughFacades(t *testing.T) {
	facades := []struct {
		infra  string
		facade string
	}{
		{infra: "inmoelegance/internal/infra/blob", facade: "inmoelegance/internal/blob"},
		{infra: "inmoelegance/internal/infra/persistence", facade: "inmoelegance/internal/core"},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "inmoelegance/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		path := strings.TrimSuffix(pkg.PkgPath, "_test")
		for _, f := range facades {
			if within(path, f.facade) || within(path, f.infra) {
				continue
			}
			for importPath := range pkg.Imports {
				if !within(importPath, f.infra) {
					continue
				}
				v := path + " imports " + importPath
				if !seen[v] {
					seen[v] = true
					violations = append(violations, v)
				}
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("infra package used outside its facade: %s", v)
	}
}

func within(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

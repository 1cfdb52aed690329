package persistence

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyPersistencePackageImportsInfra ensures that the persistence infra
// drivers stay behind the factory: everything else depends on claims.Store.
func TestOnlyPersistencePackageImportsInfra(t *testing.T) {
	infraPrefix := "claimstack/internal/infra/persistence"
	allowedPrefix := "claimstack/internal/persistence"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "claimstack/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) || strings.HasPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == infraPrefix || strings.HasPrefix(importPath, infraPrefix+"/") {
				violations = append(violations, pkg.PkgPath+": "+importPath)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of persistence infra package: %s", v)
		}
		t.Fatalf("found %d forbidden imports of persistence infra packages", len(violations))
	}
}

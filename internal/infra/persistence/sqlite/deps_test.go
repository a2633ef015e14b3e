package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

var allowedInternalImports = map[string]struct{}{
	"inmoelegance/pkg/domain":                        {},
	"inmoelegance/internal/infra/persistence/memory": {},
}

func TestImportsAreDomainOrMemory(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "inmoelegance/") {
			continue
		}
		if _, ok := allowedInternalImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}

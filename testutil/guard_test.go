package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"infra", InfraImportForbidden, "chebi2gene/internal/infra/blob/s3", true},
		{"infra facade", InfraImportForbidden, "chebi2gene/internal/blob", false},
		{"adapter", AdapterImportForbidden, "chebi2gene/internal/adapters/web", true},
		{"adapter core", AdapterImportForbidden, "chebi2gene/internal/core", false},
		{"internal", InternalImportForbidden, "example.com/mod/internal/x", true},
		{"public", InternalImportForbidden, "example.com/mod/pkg/x", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Fatalf("%s(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestAssertNoDirectImportsIgnoresTestsAndDirs checks that _test.go files
// and subdirectories are skipped.
func TestAssertNoDirectImportsIgnoresTestsAndDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	writeFile(t, dir, "main_test.go", "package tmp\nimport \"chebi2gene/internal/infra/blob/fs\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	AssertNoDirectImports(t, dir, InfraImportForbidden, "none expected")
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"chebi2gene/internal/infra/blob/fs\"\n")
	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "(in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	writeFile(t, dir, "broken.go", "package")
	if _, err := directImportViolations(dir, InfraImportForbidden); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InfraImportForbidden); err == nil {
		t.Fatal("expected read error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailHelpers(t *testing.T) {
	var r recordingFatal
	failIfTransitiveViolations(&r, "reason", nil)
	failIfDirectViolations(&r, "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfTransitiveViolations(&r, "drivers", []string{"x/internal/infra/blob/fs"})
	if !strings.Contains(r.msg, "drivers") || !strings.Contains(r.msg, "infra/blob/fs") {
		t.Fatalf("message %q", r.msg)
	}
	failIfDirectViolations(&r, "layering", []string{"a (in b.go)"})
	if !strings.Contains(r.msg, "forbidden direct imports") {
		t.Fatalf("message %q", r.msg)
	}
}

func TestTransitiveViolationsUsesLoader(t *testing.T) {
	orig := loadDeps
	t.Cleanup(func() { loadDeps = orig })

	loadDeps = func(string) ([]string, error) {
		return []string{"chebi2gene/internal/core", "chebi2gene/internal/infra/blob/s3"}, nil
	}
	viols, err := transitiveDependencyViolations("./...", InfraImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "chebi2gene/internal/infra/blob/s3" {
		t.Fatalf("viols=%v err=%v", viols, err)
	}

	loadDeps = func(string) ([]string, error) { return nil, errors.New("boom") }
	if _, err := transitiveDependencyViolations("./...", InfraImportForbidden); err == nil {
		t.Fatal("expected loader error")
	}
}

// TestAssertNoTransitiveDependency loads the real module graph.
func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, "chebi2gene/internal/identifier", func(string) bool { return false }, "none")
}

package testutil

import (
	"go/types"
	"sort"
	"testing"

	"golang.org/x/tools/go/packages"
)

// AssertImplementationsConfined fails if a named type outside allowed
// implements the interface ifacePkg.ifaceName. It keeps new storage backends
// from appearing anywhere but the vetted driver packages.
func AssertImplementationsConfined(t testing.TB, pattern, ifacePkg, ifaceName string, allowed ...string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	iface := lookupInterface(pkgs, ifacePkg, ifaceName)
	if iface == nil {
		t.Fatalf("%s.%s not found or not an interface", ifacePkg, ifaceName)
	}
	ok := make(map[string]struct{}, len(allowed))
	for _, p := range allowed {
		ok[p] = struct{}{}
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			tn, isType := scope.Lookup(name).(*types.TypeName)
			if !isType || tn.IsAlias() {
				continue
			}
			named, isNamed := tn.Type().(*types.Named)
			if !isNamed || types.IsInterface(named) {
				continue
			}
			if !types.Implements(named, iface) && !types.Implements(types.NewPointer(named), iface) {
				continue
			}
			if _, fine := ok[p.PkgPath]; !fine {
				unexpected = append(unexpected, p.PkgPath+"."+name)
			}
		}
	}
	sort.Strings(unexpected)
	if len(unexpected) > 0 {
		t.Fatalf("unexpected %s implementations (extend the allowed list when adding a backend):\n%v", ifaceName, unexpected)
	}
}

func lookupInterface(pkgs []*packages.Package, pkgPath, name string) *types.Interface {
	var found *types.Interface
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if found != nil || p.PkgPath != pkgPath || p.Types == nil {
			return
		}
		obj := p.Types.Scope().Lookup(name)
		if obj == nil {
			return
		}
		if iface, ok := obj.Type().Underlying().(*types.Interface); ok {
			found = iface
		}
	})
	return found
}

package export

import (
	"testing"

	"chebi2gene/testutil"
)

func TestNoDriverImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "exports reach storage through the blob and persistence facades")
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "exports are independent of the HTTP layer")
}

package aggregate

import (
	"testing"

	"territorycore/testutil"
)

func TestAggregateStaysPure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.PackagesForbidden("internal/engine", "internal/core", "internal/infra", "internal/adapters", "internal/blob", "cmd"),
		"pipelines are pure functions over a snapshot")
}

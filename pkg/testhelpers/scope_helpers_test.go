//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/arcwise-inc/arc-engine/pkg/database"
)

func mustScope(t *testing.T, ctx context.Context) *database.UserScope {
	t.Helper()
	scope, ok := database.GetUserScope(ctx)
	if !ok {
		t.Fatal("no user scope in context")
	}
	return scope
}

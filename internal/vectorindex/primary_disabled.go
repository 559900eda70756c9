//go:build !(sqlite_vec && cgo)

package vectorindex

import (
	"context"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/storage"
)

// tryNewPrimaryBackend is the default, cgo-free build: no ANN backend
// is available and Index always runs on the fallback path.
func tryNewPrimaryBackend(_ context.Context, _ *storage.Engine, _ int) primaryBackend {
	return nil
}

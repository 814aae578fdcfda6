package analyzer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/objectid"
)

func TestProduceRequiresManifest(t *testing.T) {
	a := NewCargoAnalyzer()
	_, err := a.Produce(t.TempDir(), objectid.ID{})
	require.True(t, ctxerr.IsKind(err, ctxerr.KindNoCargoManifest), "got %v", err)
}

func TestMetadataParsing(t *testing.T) {
	raw := `{
		"packages": [
			{
				"name": "ctx-core",
				"version": "0.1.0",
				"dependencies": [{"name": "serde"}, {"name": "zstd"}],
				"targets": [{"name": "ctx_core", "kind": ["lib"]}]
			}
		]
	}`

	var meta cargoMetadata
	require.NoError(t, json.Unmarshal([]byte(raw), &meta))
	require.Len(t, meta.Packages, 1)
	require.Equal(t, "ctx-core", meta.Packages[0].Name)
	require.Len(t, meta.Packages[0].Dependencies, 2)
	require.Equal(t, "ctx_core", meta.Packages[0].Targets[0].Name)
}

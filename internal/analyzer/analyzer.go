// Package analyzer defines the edge-producer contract that external
// analyzers (cargo metadata, language servers) satisfy, plus the cargo
// metadata adapter. Producers return batches of evidence-carrying edges and
// optional snapshots; the repository turns them into commits.
package analyzer

import (
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// Batch is one analyzer run's output: edges plus an optional raw snapshot of
// the analyzer's source data.
type Batch struct {
	Edges    []model.Edge
	Snapshot []byte
}

// EdgeProducer is implemented by every external analyzer adapter. Every edge
// in a returned batch must carry Evidence with an enumerated tool and a
// confidence band.
type EdgeProducer interface {
	// Name identifies the producer for logs and reports.
	Name() string
	// Produce runs the analyzer against the workspace rooted at root,
	// recording evidence against the given commit.
	Produce(root string, commitID objectid.ID) (Batch, error)
}

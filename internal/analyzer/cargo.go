package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// CargoAnalyzer produces package/target/crate nodes and dependency edges
// from `cargo metadata`.
type CargoAnalyzer struct {
	// Timeout bounds the cargo invocation.
	Timeout time.Duration
}

// NewCargoAnalyzer returns an analyzer with a one-minute timeout.
func NewCargoAnalyzer() *CargoAnalyzer {
	return &CargoAnalyzer{Timeout: time.Minute}
}

// Name implements EdgeProducer.
func (c *CargoAnalyzer) Name() string {
	return "cargo"
}

// cargoMetadata is the subset of `cargo metadata --format-version 1` output
// the adapter consumes.
type cargoMetadata struct {
	Packages []struct {
		Name         string `json:"name"`
		Version      string `json:"version"`
		Dependencies []struct {
			Name string `json:"name"`
		} `json:"dependencies"`
		Targets []struct {
			Name string   `json:"name"`
			Kind []string `json:"kind"`
		} `json:"targets"`
	} `json:"packages"`
}

// Produce runs cargo metadata in the workspace and converts its package
// graph into edges: DependsOn between packages, TargetOf from target to
// package, CrateFromTarget from crate to target. All evidence is
// tool=Cargo, confidence=High. The raw JSON becomes the snapshot.
func (c *CargoAnalyzer) Produce(root string, commitID objectid.ID) (Batch, error) {
	if !fileExists(filepath.Join(root, "Cargo.toml")) {
		return Batch{}, ctxerr.New(ctxerr.KindNoCargoManifest, "no Cargo.toml in "+root)
	}
	cargoPath, err := exec.LookPath("cargo")
	if err != nil {
		return Batch{}, ctxerr.New(ctxerr.KindCargoNotFound, "cargo not found on PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cargoPath, "metadata", "--format-version", "1")
	cmd.Dir = root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Batch{}, ctxerr.New(ctxerr.KindIo, "cargo metadata timed out")
		}
		return Batch{}, ctxerr.Wrap(err, ctxerr.KindIo, "run cargo metadata")
	}

	var meta cargoMetadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return Batch{}, ctxerr.Wrap(err, ctxerr.KindDeserialization, "parse cargo metadata")
	}

	evidence := model.Evidence{
		CommitID:   commitID,
		Tool:       model.ToolCargo,
		Confidence: model.ConfidenceHigh,
	}

	var edges []model.Edge
	for _, pkg := range meta.Packages {
		pkgNode := model.NodeID{Kind: model.NodePackage, ID: pkg.Name}

		for _, dep := range pkg.Dependencies {
			edges = append(edges, model.Edge{
				From:     pkgNode,
				To:       model.NodeID{Kind: model.NodePackage, ID: dep.Name},
				Label:    model.LabelDependsOn,
				Evidence: evidence,
			})
		}
		for _, target := range pkg.Targets {
			targetNode := model.NodeID{Kind: model.NodeTarget, ID: pkg.Name + "/" + target.Name}
			edges = append(edges, model.Edge{
				From:     targetNode,
				To:       pkgNode,
				Label:    model.LabelTargetOf,
				Evidence: evidence,
			})
			edges = append(edges, model.Edge{
				From:     model.NodeID{Kind: model.NodeCrate, ID: target.Name},
				To:       targetNode,
				Label:    model.LabelCrateFromTarget,
				Evidence: evidence,
			})
		}
	}

	return Batch{Edges: edges, Snapshot: stdout.Bytes()}, nil
}

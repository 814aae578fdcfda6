// Package pack implements the retrieval pipeline: query parsing into seed
// nodes, graph expansion, file content collection, narrative inclusion, and
// token-budgeted assembly of a prompt pack.
package pack

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/graph"
	"github.com/ctxgraph/ctx/internal/index"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/narrative"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

// RetrievalConfig controls the retrieval pipeline.
type RetrievalConfig struct {
	TokenBudget       int
	ResponseReserve   int
	ExpansionDepth    int
	ExpandLabels      []model.EdgeLabel
	MaxExpandedNodes  int
	IncludeActiveTask bool
	IncludeLog        bool
}

// DefaultRetrievalConfig is a reasonable interactive configuration.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TokenBudget:      10000,
		ResponseReserve:  2000,
		ExpansionDepth:   2,
		ExpandLabels:     graph.DefaultExpansionConfig().Labels,
		MaxExpandedNodes: 50,
		IncludeActiveTask: true,
		IncludeLog:        true,
	}
}

// ChunkKind classifies a retrieved chunk.
type ChunkKind string

const (
	ChunkFileContent ChunkKind = "file_content"
)

// RetrievedChunk is one admitted piece of content.
type RetrievedChunk struct {
	Title          string      `json:"title"`
	ObjectID       objectid.ID `json:"-"`
	ObjectIDHex    string      `json:"object_id"`
	Snippet        string      `json:"snippet"`
	RelevanceScore int         `json:"relevance_score"`
	ChunkKind      ChunkKind   `json:"chunk_kind"`
}

// GraphContext is the expansion diagnostic included in every pack.
type GraphContext struct {
	SeedNodes      []string `json:"seed_nodes"`
	ExpandedNodes  []string `json:"expanded_nodes"`
	ExpansionDepth int      `json:"expansion_depth"`
	SccDagUsed     bool     `json:"scc_dag_used"`
}

// TokenBudget reports the budget arithmetic of a pack.
type TokenBudget struct {
	Total               int `json:"total"`
	Used                int `json:"used"`
	ReservedForResponse int `json:"reserved_for_response"`
}

// PromptPack is the assembled retrieval result.
type PromptPack struct {
	Task            string           `json:"task"`
	HeadCommit      string           `json:"head_commit"`
	Retrieved       []RetrievedChunk `json:"retrieved"`
	GraphContext    GraphContext     `json:"graph_context"`
	RecentNarrative string           `json:"recent_narrative"`
	TokenBudget     TokenBudget      `json:"token_budget"`
}

// ToJSON renders the pack structurally.
func (p *PromptPack) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", ctxerr.Wrap(err, ctxerr.KindSerialization, "render pack as json")
	}
	return string(data), nil
}

// ToText renders the pack as a human-readable layout.
func (p *PromptPack) ToText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Context Pack\n\n")
	fmt.Fprintf(&b, "Task: %s\n", p.Task)
	fmt.Fprintf(&b, "HEAD: %s\n", p.HeadCommit)
	fmt.Fprintf(&b, "Budget: %d used of %d (reserve %d)\n\n",
		p.TokenBudget.Used, p.TokenBudget.Total, p.TokenBudget.ReservedForResponse)

	fmt.Fprintf(&b, "## Graph\n\n")
	fmt.Fprintf(&b, "Seeds: %s\n", strings.Join(p.GraphContext.SeedNodes, ", "))
	fmt.Fprintf(&b, "Expanded %d node(s) to depth %d\n\n",
		len(p.GraphContext.ExpandedNodes), p.GraphContext.ExpansionDepth)

	for _, chunk := range p.Retrieved {
		fmt.Fprintf(&b, "## %s (relevance %d)\n\n%s\n\n", chunk.Title, chunk.RelevanceScore, chunk.Snippet)
	}
	if p.RecentNarrative != "" {
		fmt.Fprintf(&b, "## Narrative\n\n%s\n", p.RecentNarrative)
	}
	return b.String()
}

// EstimateTokens uses the chars/4 heuristic.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// Deps are the collaborators the pipeline reads from.
type Deps struct {
	Index     *index.Index
	Store     *store.Store
	Narrative *narrative.Space
	Head      objectid.ID
}

// Build runs the full pipeline for a query.
func Build(query string, cfg RetrievalConfig, deps Deps) (*PromptPack, error) {
	seeds, err := ParseQueryForSeeds(query, deps.Index)
	if err != nil {
		return nil, err
	}

	var expansion graph.ExpansionResult
	if len(seeds) > 0 {
		expansion, err = graph.ExpandFromSeeds(seeds, graph.ExpansionConfig{
			MaxDepth:      cfg.ExpansionDepth,
			Labels:        cfg.ExpandLabels,
			MaxNodes:      cfg.MaxExpandedNodes,
			Bidirectional: true,
		}, deps.Index)
		if err != nil {
			return nil, err
		}
	} else {
		expansion.Depths = map[model.NodeID]int{}
	}

	// Collect file contents for expanded File nodes. Non-UTF-8 blobs and
	// unresolvable paths are skipped, not errors.
	var chunks []RetrievedChunk
	for _, node := range expansion.Nodes {
		if node.Kind != model.NodeFile {
			continue
		}
		blobID, found, err := deps.Index.LookupPath(node.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		content, err := deps.Store.GetBlob(blobID)
		if err != nil {
			continue
		}
		if !utf8.Valid(content) {
			continue
		}
		depth := expansion.Depths[node]
		chunks = append(chunks, RetrievedChunk{
			Title:          node.ID,
			ObjectID:       blobID,
			ObjectIDHex:    blobID.Hex(),
			Snippet:        string(content),
			RelevanceScore: 1000 / (1 + depth),
			ChunkKind:      ChunkFileContent,
		})
	}

	narrativeContent := collectNarrative(cfg, deps.Narrative)

	// Budget: narrative first, then chunks by descending relevance until the
	// first rejection.
	available := cfg.TokenBudget - cfg.ResponseReserve
	if available < 0 {
		available = 0
	}
	used := EstimateTokens(narrativeContent)

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].RelevanceScore > chunks[j].RelevanceScore
	})

	var selected []RetrievedChunk
	for _, chunk := range chunks {
		cost := EstimateTokens(chunk.Snippet)
		if used+cost > available {
			break
		}
		used += cost
		selected = append(selected, chunk)
	}

	seedLabels := make([]string, 0, len(seeds))
	for _, s := range seeds {
		seedLabels = append(seedLabels, graph.NodeLabel(s))
	}
	expandedLabels := make([]string, 0, len(expansion.Nodes))
	for _, n := range expansion.Nodes {
		expandedLabels = append(expandedLabels, graph.NodeLabel(n))
	}

	return &PromptPack{
		Task:       query,
		HeadCommit: deps.Head.Hex(),
		Retrieved:  selected,
		GraphContext: GraphContext{
			SeedNodes:      seedLabels,
			ExpandedNodes:  expandedLabels,
			ExpansionDepth: cfg.ExpansionDepth,
			SccDagUsed:     false,
		},
		RecentNarrative: narrativeContent,
		TokenBudget: TokenBudget{
			Total:               cfg.TokenBudget,
			Used:                used,
			ReservedForResponse: cfg.ResponseReserve,
		},
	}, nil
}

// collectNarrative includes the first task file and up to five log files,
// most recent first. Narrative read failures degrade to omission.
func collectNarrative(cfg RetrievalConfig, space *narrative.Space) string {
	if space == nil || (!cfg.IncludeActiveTask && !cfg.IncludeLog) {
		return ""
	}
	files, err := space.ListFiles()
	if err != nil {
		return ""
	}

	var b strings.Builder
	if cfg.IncludeActiveTask {
		for _, f := range files {
			if strings.HasPrefix(f, "tasks/") && strings.HasSuffix(f, ".md") {
				if content, err := space.ReadFile(f); err == nil && utf8.Valid(content) {
					fmt.Fprintf(&b, "## Task: %s\n\n%s\n\n", f, content)
				}
				break
			}
		}
	}
	if cfg.IncludeLog {
		var logs []string
		for _, f := range files {
			if strings.HasPrefix(f, "log/") && strings.HasSuffix(f, ".md") {
				logs = append(logs, f)
			}
		}
		// Names are dated; descending sort puts the most recent first.
		sort.Sort(sort.Reverse(sort.StringSlice(logs)))
		for i, f := range logs {
			if i >= 5 {
				break
			}
			if content, err := space.ReadFile(f); err == nil && utf8.Valid(content) {
				fmt.Fprintf(&b, "## Log: %s\n\n%s\n\n", f, content)
			}
		}
	}
	return b.String()
}

// ParseQueryForSeeds tokenizes the query and resolves path-like tokens
// through the path table and identifier runs through the Item and Module
// name namespaces.
func ParseQueryForSeeds(query string, idx *index.Index) ([]model.NodeID, error) {
	var seeds []model.NodeID
	seen := make(map[model.NodeID]struct{})

	add := func(node model.NodeID) {
		if _, ok := seen[node]; ok {
			return
		}
		seen[node] = struct{}{}
		seeds = append(seeds, node)
	}

	tokens := strings.FieldsFunc(query, func(c rune) bool {
		return unicode.IsSpace(c) || c == ',' || c == ';'
	})

	for _, token := range tokens {
		if looksLikePath(token) {
			normalized := strings.Trim(token, `"'`)
			if _, found, err := idx.LookupPath(normalized); err != nil {
				return nil, err
			} else if found {
				add(model.NodeID{Kind: model.NodeFile, ID: normalized})
			}
		}

		for _, ident := range extractIdentifiers(token) {
			itemIDs, err := idx.LookupName(index.NsItem, ident)
			if err != nil {
				return nil, err
			}
			if len(itemIDs) > 0 {
				add(model.NodeID{Kind: model.NodeItem, ID: ident})
			}

			moduleIDs, err := idx.LookupName(index.NsModule, ident)
			if err != nil {
				return nil, err
			}
			if len(moduleIDs) > 0 {
				add(model.NodeID{Kind: model.NodeModule, ID: ident})
			}
		}
	}
	return seeds, nil
}

var pathExtensions = []string{".rs", ".py", ".js", ".ts", ".toml", ".md", ".go"}

func looksLikePath(s string) bool {
	if strings.Contains(s, "/") {
		return true
	}
	for _, ext := range pathExtensions {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// extractIdentifiers yields alphanumeric/underscore runs, splitting on
// everything else including the :: separators of qualified names.
func extractIdentifiers(s string) []string {
	var idents []string
	start := -1
	for i, c := range s {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			idents = append(idents, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		idents = append(idents, s[start:])
	}
	return idents
}

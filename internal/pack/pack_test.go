package pack

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctxgraph/ctx/internal/index"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/narrative"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

func testID(b byte) objectid.ID {
	var raw [objectid.Len]byte
	for i := range raw {
		raw[i] = b
	}
	return objectid.FromBytes(raw)
}

type env struct {
	idx   *index.Index
	store *store.Store
	space *narrative.Space
	head  objectid.ID
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.Create(filepath.Join(dir, "ctx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return env{
		idx:   idx,
		store: store.New(filepath.Join(dir, "objects")),
		space: narrative.New(dir),
		head:  testID(0xdd),
	}
}

func (e env) deps() Deps {
	return Deps{Index: e.idx, Store: e.store, Narrative: e.space, Head: e.head}
}

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"login_handler", []string{"login_handler"}},
		{"auth::session::login", []string{"auth", "session", "login"}},
		{"fix(bug)", []string{"fix", "bug"}},
		{"...", nil},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, extractIdentifiers(tt.input), "input %q", tt.input)
	}
}

func TestLooksLikePath(t *testing.T) {
	require.True(t, looksLikePath("src/main.rs"))
	require.True(t, looksLikePath("README.md"))
	require.True(t, looksLikePath("config.toml"))
	require.False(t, looksLikePath("login_handler"))
	require.False(t, looksLikePath("SomeType"))
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestSeedsFromPathAndName(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.idx.IndexFilePath("src/auth.rs", testID(1)))

	// Put a name entry via an edge whose endpoint is an Item.
	item := model.NodeID{Kind: model.NodeItem, ID: "auth::login"}
	fileNode := model.NodeID{Kind: model.NodeFile, ID: "src/auth.rs"}
	batch := model.EdgeBatch{Edges: []model.Edge{{
		From: fileNode, To: item, Label: model.LabelDefines,
		Evidence: model.Evidence{CommitID: testID(2), Tool: model.ToolParser, Confidence: model.ConfidenceHigh},
	}}}
	require.NoError(t, e.idx.AddCommitEdges(testID(2), model.Commit{}, []model.EdgeBatch{batch}))

	seeds, err := ParseQueryForSeeds(`fix login in "src/auth.rs"`, e.idx)
	require.NoError(t, err)

	require.Contains(t, seeds, model.NodeID{Kind: model.NodeFile, ID: "src/auth.rs"})
	require.Contains(t, seeds, model.NodeID{Kind: model.NodeItem, ID: "login"})
}

func TestSeedsNoMatches(t *testing.T) {
	e := newEnv(t)
	seeds, err := ParseQueryForSeeds("completely unknown identifiers", e.idx)
	require.NoError(t, err)
	require.Empty(t, seeds)
}

func TestBuildEmptyQuery(t *testing.T) {
	e := newEnv(t)

	p, err := Build("nothing matches here", RetrievalConfig{
		TokenBudget:     1000,
		ResponseReserve: 100,
		ExpansionDepth:  2,
		ExpandLabels:    []model.EdgeLabel{model.LabelImports},
	}, e.deps())
	require.NoError(t, err)

	require.Empty(t, p.Retrieved)
	require.Empty(t, p.GraphContext.ExpandedNodes)
	require.Equal(t, 0, p.TokenBudget.Used)
	require.Equal(t, e.head.Hex(), p.HeadCommit)
}

func TestBuildRetrievesFileContent(t *testing.T) {
	e := newEnv(t)

	content := []byte("pub fn login() {}")
	blobID, err := e.store.PutBlob(content)
	require.NoError(t, err)
	require.NoError(t, e.idx.IndexFilePath("src/auth.rs", blobID))

	p, err := Build("src/auth.rs", RetrievalConfig{
		TokenBudget:     1000,
		ResponseReserve: 100,
		ExpansionDepth:  1,
		ExpandLabels:    []model.EdgeLabel{model.LabelImports},
	}, e.deps())
	require.NoError(t, err)

	require.Len(t, p.Retrieved, 1)
	require.Equal(t, "src/auth.rs", p.Retrieved[0].Title)
	require.Equal(t, string(content), p.Retrieved[0].Snippet)
	require.Equal(t, 1000, p.Retrieved[0].RelevanceScore)
	require.Equal(t, EstimateTokens(string(content)), p.TokenBudget.Used)
}

func TestBudgetSmallerThanNarrative(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.space.EnsureStructure())

	// A task file large enough to exceed the whole budget.
	_, err := e.space.CreateTask("big", strings.Repeat("narrative text ", 200))
	require.NoError(t, err)

	blobID, err := e.store.PutBlob([]byte("fn f() {}"))
	require.NoError(t, err)
	require.NoError(t, e.idx.IndexFilePath("src/f.rs", blobID))

	p, err := Build("src/f.rs", RetrievalConfig{
		TokenBudget:       100,
		ResponseReserve:   50,
		ExpansionDepth:    1,
		ExpandLabels:      []model.EdgeLabel{model.LabelImports},
		IncludeActiveTask: true,
	}, e.deps())
	require.NoError(t, err)

	require.Empty(t, p.Retrieved)
	require.Equal(t, EstimateTokens(p.RecentNarrative), p.TokenBudget.Used)
	require.NotEmpty(t, p.RecentNarrative)
}

func TestNarrativeLogSelection(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.space.EnsureStructure())

	for _, date := range []string{"2026-01-01", "2026-01-02", "2026-01-03",
		"2026-01-04", "2026-01-05", "2026-01-06"} {
		_, err := e.space.AppendLog(date, "10:00", "entry for "+date)
		require.NoError(t, err)
	}

	p, err := Build("anything", RetrievalConfig{
		TokenBudget:     100000,
		ResponseReserve: 100,
		ExpansionDepth:  1,
		ExpandLabels:    []model.EdgeLabel{model.LabelImports},
		IncludeLog:      true,
	}, e.deps())
	require.NoError(t, err)

	// Only the five most recent logs appear; the oldest is cut.
	require.Contains(t, p.RecentNarrative, "2026-01-06")
	require.Contains(t, p.RecentNarrative, "2026-01-02")
	require.NotContains(t, p.RecentNarrative, "entry for 2026-01-01")
}

func TestNonUTF8BlobSkipped(t *testing.T) {
	e := newEnv(t)

	blobID, err := e.store.PutBlob([]byte{0xff, 0xfe, 0x00, 0x80})
	require.NoError(t, err)
	require.NoError(t, e.idx.IndexFilePath("bin/blob.rs", blobID))

	p, err := Build("bin/blob.rs", RetrievalConfig{
		TokenBudget:     1000,
		ResponseReserve: 0,
		ExpansionDepth:  1,
		ExpandLabels:    []model.EdgeLabel{model.LabelImports},
	}, e.deps())
	require.NoError(t, err)
	require.Empty(t, p.Retrieved)
}

func TestPackRendering(t *testing.T) {
	e := newEnv(t)
	p, err := Build("render me", RetrievalConfig{TokenBudget: 10, ExpandLabels: nil}, e.deps())
	require.NoError(t, err)

	jsonOut, err := p.ToJSON()
	require.NoError(t, err)
	require.Contains(t, jsonOut, `"task": "render me"`)

	text := p.ToText()
	require.Contains(t, text, "render me")
	require.Contains(t, text, "HEAD:")
}

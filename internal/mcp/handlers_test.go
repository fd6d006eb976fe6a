package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/retrieval"
	"github.com/bull/docqa-server/internal/storage"
)

// connect runs the server over in-memory transports and returns a client session.
func connect(t *testing.T, cfg Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := NewServer(cfg)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s returned an error: %+v", name, res.Content)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestTools_Registered(t *testing.T) {
	session := connect(t, Config{Snapshots: fakeManifests{manifest: readyManifest}})

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_document", "search_document", "index_status"}, names)
}

func TestAskDocumentTool(t *testing.T) {
	asker := fakeAsker{answer: &answer.Answer{Answer: "The warranty lasts two years."}}
	session := connect(t, Config{Asker: asker, Snapshots: fakeManifests{manifest: readyManifest}})

	out := callTool[AskDocumentOutput](t, session, "ask_document", map[string]any{"question": "How long is the warranty?"})
	assert.Equal(t, "How long is the warranty?", out.Question)
	assert.Equal(t, "The warranty lasts two years.", out.Answer)
	assert.False(t, out.Fallback)
}

func TestAskDocumentTool_NotReady(t *testing.T) {
	session := connect(t, Config{Asker: fakeAsker{err: errNotReady}, Snapshots: fakeManifests{err: storage.ErrNotFound}})

	out := callTool[AskDocumentOutput](t, session, "ask_document", map[string]any{"question": "q"})
	assert.Empty(t, out.Answer)
	assert.Equal(t, notReadyMessage, out.Message)
}

func TestSearchDocumentTool(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.SearchResult{
		{Rank: 1, ChunkOrdinal: 3, Distance: 0.25, Text: "closest"},
		{Rank: 2, ChunkOrdinal: 0, Distance: 0.5, Text: "next"},
	}}
	session := connect(t, Config{Retriever: retriever, Snapshots: fakeManifests{manifest: readyManifest}})

	out := callTool[SearchDocumentOutput](t, session, "search_document", map[string]any{"query": "q", "max_results": 50})
	require.Len(t, out.Results, 2)
	assert.Equal(t, 3, out.Results[0].ChunkOrdinal)
	assert.Equal(t, maxMaxResults, retriever.gotK)
}

func TestSearchDocumentTool_DefaultsAndEmpty(t *testing.T) {
	retriever := &fakeRetriever{}
	session := connect(t, Config{Retriever: retriever, Snapshots: fakeManifests{manifest: readyManifest}})

	out := callTool[SearchDocumentOutput](t, session, "search_document", map[string]any{"query": "q"})
	assert.Empty(t, out.Results)
	assert.NotEmpty(t, out.Message)
	assert.Equal(t, defaultMaxResults, retriever.gotK)
}

func TestSearchDocumentTool_NotReady(t *testing.T) {
	session := connect(t, Config{Retriever: &fakeRetriever{err: errNotReady}, Snapshots: fakeManifests{err: storage.ErrNotFound}})

	out := callTool[SearchDocumentOutput](t, session, "search_document", map[string]any{"query": "q"})
	assert.Empty(t, out.Results)
	assert.Equal(t, notReadyMessage, out.Message)
}

func TestIndexStatusTool(t *testing.T) {
	session := connect(t, Config{Snapshots: fakeManifests{manifest: readyManifest}})

	out := callTool[IndexStatusOutput](t, session, "index_status", map[string]any{})
	assert.True(t, out.Ready)
	assert.Equal(t, readyManifest.ID, out.SnapshotID)
	assert.Equal(t, "manual.pdf", out.Source)
	assert.Equal(t, 12, out.ChunkCount)
	assert.Equal(t, "2025-03-01T12:00:00Z", out.IndexedAt)
}

func TestIndexStatusTool_NotReady(t *testing.T) {
	session := connect(t, Config{Snapshots: fakeManifests{err: storage.ErrNotFound}})

	out := callTool[IndexStatusOutput](t, session, "index_status", map[string]any{})
	assert.False(t, out.Ready)
	assert.Equal(t, notReadyMessage, out.Message)
}

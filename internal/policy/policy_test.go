package policy

import (
	"context"
	"testing"
	"time"

	language "github.com/cacheql/cacheql/internal/language"
	"github.com/cacheql/cacheql/internal/store"
	"github.com/cacheql/cacheql/internal/transport"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	data map[string]any
	err  error
}

func (f *fakeTransport) Execute(ctx context.Context, req transport.Request) (<-chan transport.Message, error) {
	out := make(chan transport.Message, 1)
	if f.err != nil {
		out <- transport.Message{Errors: []error{f.err}}
	} else {
		out <- transport.Message{Data: f.data}
	}
	close(out)
	return out, nil
}

func mustParse(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(q)
	require.NoError(t, err)
	return doc
}

func drain(t *testing.T, stream <-chan Message, timeout time.Duration) []Message {
	t.Helper()
	var msgs []Message
	deadline := time.After(timeout)
	for {
		select {
		case m, ok := <-stream:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		case <-deadline:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func TestQuery_InvalidFetchPolicySurfacesSynchronously(t *testing.T) {
	e := New(store.New(), &fakeTransport{})
	doc := mustParse(t, `{ viewer { name } }`)
	_, err := e.Query(context.Background(), doc, nil, WithFetchPolicy("bogus"))
	require.Error(t, err)
}

func TestQuery_LocalOnly_NoTransportCall(t *testing.T) {
	tp := &fakeTransport{}
	e := New(store.New(), tp)
	doc := mustParse(t, `{ viewer { name } }`)

	stream, err := e.Query(context.Background(), doc, nil, WithFetchPolicy(string(LocalOnly)))
	require.NoError(t, err)
	msgs := drain(t, stream, time.Second)
	require.Len(t, msgs, 1)
	require.Equal(t, StatusReady, msgs[0].NetworkStatus)
	require.Nil(t, msgs[0].Data)
}

func TestQuery_ScenarioE_LocalFirstHit(t *testing.T) {
	s := store.New()
	tp := &fakeTransport{}
	e := New(s, tp)
	doc := mustParse(t, `{ viewer { name } }`)

	// Seed the cache so the first local read is a hit.
	seedStream, err := e.Query(context.Background(), doc, nil, WithFetchPolicy(string(RemoteOnly)))
	require.NoError(t, err)
	tp.data = map[string]any{"viewer": map[string]any{"name": "Ada"}}
	drain(t, seedStream, time.Second)

	stream, err := e.Query(context.Background(), doc, nil, WithFetchPolicy(string(LocalFirst)))
	require.NoError(t, err)
	msgs := drain(t, stream, time.Second)
	require.Len(t, msgs, 1)
	require.False(t, msgs[0].InFlight)
	require.Equal(t, StatusReady, msgs[0].NetworkStatus)
	require.Equal(t, "Ada", msgs[0].Data["viewer"].(map[string]any)["name"])
}

func TestQuery_ScenarioE_LocalFirstMiss(t *testing.T) {
	s := store.New()
	tp := &fakeTransport{data: map[string]any{"viewer": map[string]any{"name": "Ada"}}}
	e := New(s, tp)
	doc := mustParse(t, `{ viewer { name } }`)

	stream, err := e.Query(context.Background(), doc, nil, WithFetchPolicy(string(LocalFirst)))
	require.NoError(t, err)
	msgs := drain(t, stream, time.Second)
	require.Len(t, msgs, 2)
	require.Equal(t, StatusFetching, msgs[0].NetworkStatus)
	require.True(t, msgs[0].InFlight)
	require.Equal(t, StatusReady, msgs[1].NetworkStatus)
	require.Equal(t, "Ada", msgs[1].Data["viewer"].(map[string]any)["name"])
}

func TestQuery_NetworkErrorSurfacesAsFailed(t *testing.T) {
	s := store.New()
	tp := &fakeTransport{err: context.DeadlineExceeded}
	e := New(s, tp)
	doc := mustParse(t, `{ viewer { name } }`)

	stream, err := e.Query(context.Background(), doc, nil, WithFetchPolicy(string(RemoteOnly)))
	require.NoError(t, err)
	msgs := drain(t, stream, time.Second)
	last := msgs[len(msgs)-1]
	require.Equal(t, StatusFailed, last.NetworkStatus)
	require.Error(t, last.Err)
}

func TestMutate_ScenarioF_OptimisticThenReal(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	tp := &fakeTransport{data: map[string]any{
		"addUser": map[string]any{"__typename": "Person", "id": "u5", "name": "Ada"},
	}}
	e := New(s, tp)
	doc := mustParse(t, `mutation M { addUser(name: "Ada") { __typename id name } }`)

	stream, err := e.Mutate(context.Background(), doc, nil, WithOptimisticResult(map[string]any{
		"addUser": map[string]any{"__typename": "Person", "id": "tmp", "name": "Ada"},
	}))
	require.NoError(t, err)
	msgs := drain(t, stream, time.Second)
	require.Len(t, msgs, 2)

	require.Equal(t, StatusFetching, msgs[0].NetworkStatus)
	require.True(t, msgs[0].InFlight)
	require.Equal(t, "tmp", msgs[0].Data["addUser"].(map[string]any)["id"])

	require.Equal(t, StatusReady, msgs[1].NetworkStatus)
	require.False(t, msgs[1].InFlight)
	require.Equal(t, "u5", msgs[1].Data["addUser"].(map[string]any)["id"])

	_, ok := s.Snapshot().Get(store.NewEntityRef("Person/id", "u5"))
	require.True(t, ok)
}

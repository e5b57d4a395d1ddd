// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/backend/backendtest"
	"github.com/jeranaias/agentdesk/internal/conversation"
	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/models"
	"github.com/jeranaias/agentdesk/internal/role"
)

const chatRoute = "POST /api/chat"

type fixedSelector struct{ sel models.Selection }

func (f *fixedSelector) Selection() models.Selection { return f.sel }

type roleGate bool

func (g roleGate) Chosen() bool { return bool(g) }

type fixture struct {
	session  *conversation.Session
	srv      *backendtest.Server
	client   *backend.Client
	bus      *events.Bus
	selector *fixedSelector
}

func newFixture(t *testing.T, chosen bool) *fixture {
	t.Helper()
	srv := backendtest.New(t)
	client := backend.NewClient()
	require.NoError(t, client.Bind(srv.Endpoint()))
	bus := events.New()
	sel := &fixedSelector{sel: models.Selection{Model: "gpt-4"}}
	s := conversation.NewSession(client, sel, roleGate(chosen), bus, nil)
	t.Cleanup(s.Close)
	return &fixture{session: s, srv: srv, client: client, bus: bus, selector: sel}
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_OptimisticAppendThenReply(t *testing.T) {
	f := newFixture(t, true)
	release := f.srv.Block(chatRoute)
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Send(context.Background(), "hello")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(f.session.Transcript()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []conversation.Message{{Role: "user", Content: "hello"}}, f.session.Transcript())

	release()
	require.NoError(t, <-done)
	assert.Equal(t, []conversation.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "echo: hello"},
	}, f.session.Transcript())

	var body backend.ChatRequest
	require.NoError(t, f.srv.LastBody(chatRoute, &body))
	assert.Equal(t, backend.ChatRequest{Message: "hello", Model: "gpt-4", WebSearch: false}, body)
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t, true)
	f.srv.Fail(chatRoute, http.StatusInternalServerError, "model overloaded")

	_, err := f.session.Send(context.Background(), "  are you there?  ")
	require.Error(t, err)
	assert.True(t, backend.IsRemoteFailure(err))
	assert.Contains(t, err.Error(), "model overloaded")

	assert.Equal(t, []conversation.Message{{Role: "user", Content: "are you there?"}}, f.session.Transcript())
}

func TestSend_SearchResults(t *testing.T) {
	f := newFixture(t, true)

	f.selector.sel.WebSearch = true
	reply, err := f.session.Send(context.Background(), "news")
	require.NoError(t, err)
	assert.Equal(t, []conversation.SearchResult{{Title: "result", URL: "https://example.com"}}, reply.SearchResults)

	f.srv.SetChatHook(func(req backend.ChatRequest) backend.ChatResponse {
		return backend.ChatResponse{Message: "nothing found", SearchResults: []backend.SearchResult{}}
	})
	reply, err = f.session.Send(context.Background(), "obscure")
	require.NoError(t, err)
	assert.Nil(t, reply.SearchResults, "an empty result list is recorded as absent")

	transcript := f.session.Transcript()
	require.Len(t, transcript, 4)
	assert.NotNil(t, transcript[1].SearchResults)
	assert.Nil(t, transcript[3].SearchResults)
}

func TestSend_Preconditions(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.session.Send(context.Background(), " \n\t ")
		assert.True(t, backend.IsInvalidInput(err))
		assert.Empty(t, f.session.Transcript())
	})

	t.Run("no role", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.session.Send(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, backend.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "no role selected")
		assert.Zero(t, f.srv.Calls(chatRoute))
	})

	t.Run("unbound", func(t *testing.T) {
		f := newFixture(t, true)
		f.client.Reset()
		_, err := f.session.Send(context.Background(), "hi")
		assert.True(t, backend.IsUnreachable(err))
		assert.Empty(t, f.session.Transcript())
	})
}

func TestSend_CanceledBeforeRun(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.session.Send(ctx, "hi")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.session.Transcript())
}

// =============================================================================
// CLEAR AND ORDERING
// =============================================================================

func TestClear(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.session.Send(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, f.session.Clear(context.Background()))
	assert.Empty(t, f.session.Transcript())
}

func TestClear_FailureLeavesTranscript(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.session.Send(context.Background(), "hi")
	require.NoError(t, err)

	f.srv.Fail("POST /api/conversations/clear", http.StatusInternalServerError, "disk full")
	err = f.session.Clear(context.Background())
	require.True(t, backend.IsRemoteFailure(err))
	assert.Len(t, f.session.Transcript(), 2)
}

func TestSendThenClear_Serialized(t *testing.T) {
	f := newFixture(t, true)
	release := f.srv.Block(chatRoute)
	defer release()

	sendDone := make(chan error, 1)
	go func() {
		_, err := f.session.Send(context.Background(), "first")
		sendDone <- err
	}()
	require.Eventually(t, func() bool { return f.srv.Calls(chatRoute) == 1 }, 2*time.Second, 5*time.Millisecond)

	clearDone := make(chan error, 1)
	go func() { clearDone <- f.session.Clear(context.Background()) }()

	// The clear must wait for the in-flight send.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.srv.Calls("POST /api/conversations/clear"))
	assert.Len(t, f.session.Transcript(), 1)

	release()
	require.NoError(t, <-sendDone)
	require.NoError(t, <-clearDone)
	assert.Empty(t, f.session.Transcript(), "the reply must not land after the clear")
}

func TestConnectedResetsTranscript(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.session.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, f.session.Transcript(), 2)

	var dropped []int
	f.bus.Subscribe(events.KindTranscriptChanged, func(e events.Event) {
		if e.String("op") == "reset" {
			dropped = append(dropped, e.Int("dropped"))
		}
	})

	f.bus.Publish(events.Event{Kind: events.KindConnected})
	assert.Empty(t, f.session.Transcript())
	assert.Equal(t, []int{2}, dropped)

	f.bus.Publish(events.Event{Kind: events.KindConnected})
	assert.Equal(t, []int{2}, dropped, "an empty transcript resets silently")
}

func TestConnectedResetWaitsForQueuedSend(t *testing.T) {
	f := newFixture(t, true)
	release := f.srv.Block(chatRoute)
	defer release()

	sendDone := make(chan error, 1)
	go func() {
		_, err := f.session.Send(context.Background(), "first")
		sendDone <- err
	}()
	require.Eventually(t, func() bool { return f.srv.Calls(chatRoute) == 1 }, 2*time.Second, 5*time.Millisecond)

	published := make(chan struct{})
	go func() {
		f.bus.Publish(events.Event{Kind: events.KindConnected})
		close(published)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.session.Transcript(), 1, "the reset queues behind the in-flight send")

	release()
	require.NoError(t, <-sendDone)
	<-published
	assert.Empty(t, f.session.Transcript(), "the reply must not survive the reset")
}

// =============================================================================
// SAVE, LIST, LOAD, DELETE
// =============================================================================

// lateListAPI reads the first conversation list from the backend as soon as
// it is requested but returns it only after release is closed.
type lateListAPI struct {
	conversation.API
	release chan struct{}
	fetched chan struct{}

	mu    sync.Mutex
	calls int
}

func (a *lateListAPI) ListConversations(ctx context.Context) ([]backend.ConversationSummary, error) {
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.mu.Unlock()

	out, err := a.API.ListConversations(ctx)
	if first {
		close(a.fetched)
		<-a.release
	}
	return out, err
}

func TestList_LateOlderListIsDiscarded(t *testing.T) {
	srv := backendtest.New(t)
	client := backend.NewClient()
	require.NoError(t, client.Bind(srv.Endpoint()))
	api := &lateListAPI{API: client, release: make(chan struct{}), fetched: make(chan struct{})}
	s := conversation.NewSession(api, &fixedSelector{sel: models.Selection{Model: "gpt-4"}}, roleGate(true), events.New(), nil)
	t.Cleanup(s.Close)

	listed := make(chan []conversation.Summary, 1)
	go func() {
		out, _ := s.List(context.Background())
		listed <- out
	}()
	<-api.fetched

	_, err := s.Save(context.Background(), "trip")
	require.NoError(t, err)
	require.Len(t, s.Summaries(), 1)

	close(api.release)
	assert.Len(t, <-listed, 1, "List returns the newer list")
	assert.Len(t, s.Summaries(), 1, "an older list must not replace the one installed after save")
}

func TestSave_UntitledThenList(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.session.Send(context.Background(), "remember this")
	require.NoError(t, err)

	path, err := f.session.Save(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	summaries, err := f.session.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "conversation_1700000001", summaries[0].Title)
	assert.NotEmpty(t, summaries[0].Date)
	assert.Equal(t, summaries, f.session.Summaries(), "save refreshes the cached list")
}

func TestSave_Titled(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.session.Save(context.Background(), "  Trip plan ")
	require.NoError(t, err)

	summaries := f.session.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "Trip plan", summaries[0].Title)
	assert.Equal(t, "1700000001_Trip_plan.json", summaries[0].Filename)
}

func TestLoad_ReplacesTranscript(t *testing.T) {
	f := newFixture(t, true)
	filename := f.srv.SaveConversationAs("old", []backend.StoredMessage{
		{Role: "system", Content: backendtest.BuiltinRoles["assistant"]},
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a", SearchResults: []backend.SearchResult{{URL: "https://src"}}},
	})
	_, err := f.session.Send(context.Background(), "live message")
	require.NoError(t, err)

	transcript, err := f.session.Load(context.Background(), filename)
	require.NoError(t, err)
	assert.Equal(t, []conversation.Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a", SearchResults: []conversation.SearchResult{{URL: "https://src"}}},
	}, transcript)
}

func TestLoad_AdoptsEmbeddedRole(t *testing.T) {
	srv := backendtest.New(t)
	client := backend.NewClient()
	require.NoError(t, client.Bind(srv.Endpoint()))
	bus := events.New()

	roles := role.NewSession(client, bus, nil)
	defer roles.Close()
	registry := models.NewRegistry(bus, nil)
	defer registry.Close()
	session := conversation.NewSession(client, registry, roles, bus, nil)
	defer session.Close()

	_, err := roles.Select(context.Background(), "creative", "")
	require.NoError(t, err)

	filename := srv.SaveConversationAs("code review", []backend.StoredMessage{
		{Role: "system", Content: backendtest.BuiltinRoles["programmer"]},
		{Role: "user", Content: "review this"},
	})

	_, err = session.Load(context.Background(), filename)
	require.NoError(t, err)

	active, chosen := roles.Active()
	assert.True(t, chosen)
	assert.Equal(t, "programmer", active.Key)
	assert.Equal(t, backendtest.BuiltinRoles["programmer"], active.SystemContent)
}

func TestLoad_Failure(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.session.Send(context.Background(), "keep me")
	require.NoError(t, err)

	_, err = f.session.Load(context.Background(), "missing.json")
	require.True(t, backend.IsRemoteFailure(err))
	assert.Len(t, f.session.Transcript(), 2)

	_, err = f.session.Load(context.Background(), " ")
	assert.True(t, backend.IsInvalidInput(err))
}

func TestDelete_LeavesLiveTranscript(t *testing.T) {
	f := newFixture(t, true)
	filename := f.srv.SaveConversationAs("t", []backend.StoredMessage{{Role: "user", Content: "x"}})
	_, err := f.session.Load(context.Background(), filename)
	require.NoError(t, err)

	require.NoError(t, f.session.Delete(context.Background(), filename))
	assert.Empty(t, f.session.Summaries())
	assert.Equal(t, []conversation.Message{{Role: "user", Content: "x"}}, f.session.Transcript())
}

func TestDelete_Failure(t *testing.T) {
	f := newFixture(t, true)
	err := f.session.Delete(context.Background(), "nope.json")
	assert.True(t, backend.IsRemoteFailure(err))
	assert.Zero(t, f.srv.Calls("GET /api/conversations"))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestClose(t *testing.T) {
	f := newFixture(t, true)
	f.session.Close()
	f.session.Close()

	_, err := f.session.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, conversation.ErrClosed)
}

func TestTranscriptIsACopy(t *testing.T) {
	f := newFixture(t, true)
	f.selector.sel.WebSearch = true
	_, err := f.session.Send(context.Background(), "hi")
	require.NoError(t, err)

	got := f.session.Transcript()
	got[1].SearchResults[0].URL = "mutated"
	got[0].Content = "mutated"

	fresh := f.session.Transcript()
	assert.Equal(t, "hi", fresh[0].Content)
	assert.Equal(t, "https://example.com", fresh[1].SearchResults[0].URL)
}

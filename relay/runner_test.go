package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/artifact"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, inv *Invocation) []core.Event {
	t.Helper()
	var out []core.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := inv.Channel().Receive()
			if !ok {
				return
			}
			out = append(out, ev)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sentinel never arrived")
	}
	return out
}

type failingPersister struct{ err error }

func (p failingPersister) Persist(core.ToolResult, string) (*core.Artifact, error) {
	return nil, p.err
}

func TestRunner_EmptyInstruction(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Text("never").Build()
	r := NewRunner(adapter)

	for _, in := range []string{"", "   ", "\n\t"} {
		inv, err := r.Start(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyInstruction)
		assert.Nil(t, inv)
	}
	assert.Zero(t, adapter.Calls())
}

func TestRunner_RelaysEventsInOrder(t *testing.T) {
	adapter := testutil.NewScriptBuilder().
		Text("Taking screenshot").
		ToolCall(map[string]any{"action": "screenshot"}).
		Text("done").
		Build()
	r := NewRunner(adapter)

	inv, err := r.Start(context.Background(), "  take a screenshot  ")
	require.NoError(t, err)

	evs := drain(t, inv)
	require.NoError(t, inv.Wait())

	assert.Equal(t, []core.Event{
		core.NewAssistantTextEvent("Taking screenshot"),
		core.NewToolInvocationEvent(map[string]any{"action": "screenshot"}),
		core.NewAssistantTextEvent("done"),
	}, evs)
	assert.Equal(t, "take a screenshot", adapter.LastRequest().Instruction)
	assert.NotEmpty(t, inv.ID)
}

func TestRunner_NoEvents(t *testing.T) {
	r := NewRunner(testutil.NewScriptBuilder().Build())

	inv, err := r.Start(context.Background(), "noop")
	require.NoError(t, err)

	assert.Empty(t, drain(t, inv))
	assert.True(t, inv.Channel().Closed())
}

func TestRunner_EngineErrorBecomesDiagnostic(t *testing.T) {
	boom := errors.New("provider unavailable")
	adapter := testutil.NewScriptBuilder().Text("partial").Fail(boom).Text("unreachable").Build()
	r := NewRunner(adapter)

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)

	evs := drain(t, inv)
	assert.ErrorIs(t, inv.Wait(), boom)
	require.Len(t, evs, 2)
	assert.Equal(t, core.NewAssistantTextEvent("partial"), evs[0])
	assert.Equal(t, core.DiagnosticEvent{Message: "engine error: provider unavailable"}, evs[1])
}

func TestRunner_PanicIsContained(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Text("before").Panic("kaboom").Build()
	r := NewRunner(adapter)

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)

	evs := drain(t, inv)
	require.Len(t, evs, 2)
	diag, ok := evs[1].(core.DiagnosticEvent)
	require.True(t, ok)
	assert.Contains(t, diag.Message, "engine error")
	assert.Contains(t, diag.Message, "kaboom")
	assert.Error(t, inv.Wait())
}

func TestRunner_MissingCredential(t *testing.T) {
	for name, value := range map[string]string{"unset": "", "placeholder": PlaceholderCredential} {
		t.Run(name, func(t *testing.T) {
			adapter := testutil.NewScriptBuilder().Text("never").Build()
			dir := t.TempDir() + "/screenshots"
			r := NewRunner(adapter, func(o *Options) {
				o.Credential = StaticCredential(value)
				o.CredentialName = "ANTHROPIC_API_KEY"
				o.Persister = artifact.NewPersister(artifact.NewFileStore(dir))
			})

			inv, err := r.Start(context.Background(), "go")
			require.NoError(t, err)

			evs := drain(t, inv)
			require.Len(t, evs, 1)
			assert.Contains(t, evs[0].(core.DiagnosticEvent).Message, "ANTHROPIC_API_KEY")
			assert.Zero(t, adapter.Calls())
			assert.NoDirExists(t, dir)
		})
	}
}

func TestRunner_CredentialIsForwarded(t *testing.T) {
	t.Setenv("RELAY_TEST_KEY", " sk-test ")
	adapter := testutil.NewScriptBuilder().Build()
	r := NewRunner(adapter, func(o *Options) { o.Credential = EnvCredential("RELAY_TEST_KEY") })

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)
	drain(t, inv)

	assert.Equal(t, "sk-test", adapter.LastRequest().Credential)
}

func TestRunner_ScreenshotIsPersisted(t *testing.T) {
	store := artifact.NewInMemoryStore("screenshots")
	adapter := testutil.NewScriptBuilder().
		ToolCall(map[string]any{"action": "screenshot"}).
		Screenshot("toolu_01").
		Text("Here it is").
		Build()
	r := NewRunner(adapter, func(o *Options) { o.Persister = artifact.NewPersister(store) })

	inv, err := r.Start(context.Background(), "screenshot please")
	require.NoError(t, err)
	evs := drain(t, inv)

	require.Len(t, evs, 3)
	art, ok := evs[1].(core.ArtifactEvent)
	require.True(t, ok)
	assert.Contains(t, art.Artifact.Path, "toolu_01.png")

	names, err := store.List()
	require.NoError(t, err)
	require.Len(t, names, 1)
	data, err := store.Get(names[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.PNG(2, 2), data)
}

func TestRunner_ArtifactsNotSurfaced(t *testing.T) {
	store := artifact.NewInMemoryStore("")
	adapter := testutil.NewScriptBuilder().Screenshot("a").Build()
	r := NewRunner(adapter, func(o *Options) {
		o.Persister = artifact.NewPersister(store)
		o.SurfaceArtifacts = false
	})

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)

	assert.Empty(t, drain(t, inv))
	names, _ := store.List()
	assert.Len(t, names, 1)
}

func TestRunner_PersistFailureContinuesStream(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Screenshot("a").Text("after").Build()
	r := NewRunner(adapter, func(o *Options) {
		o.Persister = failingPersister{err: errors.New("disk full")}
	})

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)
	evs := drain(t, inv)

	require.Len(t, evs, 2)
	assert.Equal(t, core.DiagnosticEvent{Message: "artifact error: disk full"}, evs[0])
	assert.Equal(t, core.NewAssistantTextEvent("after"), evs[1])
	assert.NoError(t, inv.Wait())
}

func TestRunner_ToolResultText(t *testing.T) {
	adapter := testutil.NewScriptBuilder().
		ToolResult("t1", core.ToolResult{Output: "file.txt"}).
		ToolResult("t2", core.ToolResult{Error: "permission denied"}).
		Build()

	t.Run("hidden by default", func(t *testing.T) {
		inv, err := NewRunner(adapter).Start(context.Background(), "go")
		require.NoError(t, err)
		assert.Equal(t, []core.Event{core.DiagnosticEvent{Message: "tool error: permission denied"}}, drain(t, inv))
	})

	t.Run("surfaced", func(t *testing.T) {
		r := NewRunner(adapter, func(o *Options) { o.SurfaceToolOutput = true })
		inv, err := r.Start(context.Background(), "go")
		require.NoError(t, err)
		assert.Equal(t, []core.Event{
			core.NewTextEvent("file.txt"),
			core.DiagnosticEvent{Message: "tool error: permission denied"},
		}, drain(t, inv))
	})
}

func TestRunner_RawResponseIsCopied(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"hi"}]}`)
	adapter := core.AdapterFunc(func(_ context.Context, _ core.Request, cb core.Callbacks) (string, error) {
		cb.APIResponse(body)
		body[0] = 'X'
		return "", nil
	})

	inv, err := NewRunner(adapter).Start(context.Background(), "go")
	require.NoError(t, err)
	evs := drain(t, inv)

	require.Len(t, evs, 1)
	assert.Equal(t, `{"content":[{"type":"text","text":"hi"}]}`, string(evs[0].(core.RawContentEvent).Body))
}

func TestRunner_CancelOnDisconnect(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	adapter := testutil.NewScriptBuilder().Text("started").Block(release).Text("finished").Build()
	r := NewRunner(adapter)

	ctx, cancel := context.WithCancel(context.Background())
	inv, err := r.Start(ctx, "go")
	require.NoError(t, err)

	ev, ok := inv.Channel().Receive()
	require.True(t, ok)
	assert.Equal(t, core.NewAssistantTextEvent("started"), ev)

	cancel()
	rest := drain(t, inv)
	require.Len(t, rest, 1)
	assert.Contains(t, rest[0].(core.DiagnosticEvent).Message, context.Canceled.Error())
	assert.False(t, adapter.Completed())
}

func TestRunner_DetachOnDisconnect(t *testing.T) {
	release := make(chan struct{})
	adapter := testutil.NewScriptBuilder().Block(release).Text("finished").Build()
	r := NewRunner(adapter, func(o *Options) { o.DetachOnDisconnect = true })

	ctx, cancel := context.WithCancel(context.Background())
	inv, err := r.Start(ctx, "go")
	require.NoError(t, err)

	cancel()
	close(release)

	assert.Equal(t, []core.Event{core.NewAssistantTextEvent("finished")}, drain(t, inv))
	assert.True(t, adapter.Completed())
}

func TestRunner_CancelByID(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	r := NewRunner(testutil.NewScriptBuilder().Block(release).Build())

	inv, err := r.Start(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Active())

	require.NoError(t, r.Cancel(inv.ID))
	assert.ErrorIs(t, inv.Wait(), context.Canceled)

	r.Wait()
	assert.Zero(t, r.Active())
	assert.Error(t, r.Cancel(inv.ID))
}

func TestRunner_CancelAll(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	r := NewRunner(testutil.NewScriptBuilder().Block(release).Build())

	invs := make([]*Invocation, 3)
	for i := range invs {
		inv, err := r.Start(context.Background(), "go")
		require.NoError(t, err)
		invs[i] = inv
	}

	r.CancelAll()
	r.Wait()
	for _, inv := range invs {
		assert.ErrorIs(t, inv.Wait(), context.Canceled)
	}
}

func TestRunner_ConcurrentInvocationsAreIsolated(t *testing.T) {
	adapter := core.AdapterFunc(func(_ context.Context, req core.Request, cb core.Callbacks) (string, error) {
		for i := 0; i < 50; i++ {
			cb.Assistant(core.NewAssistantTextEvent(req.Instruction))
		}
		return "", nil
	})
	r := NewRunner(adapter)

	a, err := r.Start(context.Background(), "A")
	require.NoError(t, err)
	b, err := r.Start(context.Background(), "B")
	require.NoError(t, err)

	for _, tc := range []struct {
		inv  *Invocation
		want string
	}{{a, "A"}, {b, "B"}} {
		evs := drain(t, tc.inv)
		require.Len(t, evs, 50)
		for _, ev := range evs {
			assert.Equal(t, tc.want, ev.(core.StructuredEvent).Payload)
		}
	}
	assert.NotEqual(t, a.ID, b.ID)
}

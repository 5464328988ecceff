package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hupe1980/agentrelay/artifact"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fragmentRE = regexp.MustCompile(`<p>(.*?)</p>\n`)

func fragments(body string) []string {
	var out []string
	for _, m := range fragmentRE.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

func post(t *testing.T, h http.Handler, instruction string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"instruction": {instruction}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Index(t *testing.T) {
	s := New(relay.NewRunner(testutil.NewScriptBuilder().Build()), func(o *Options) { o.Title = "Bridge <test>" })

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `name="instruction"`)
	assert.Contains(t, w.Body.String(), "Bridge &lt;test&gt;")
}

func TestServer_EmptyInstruction(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Text("never").Build()
	runner := relay.NewRunner(adapter)
	s := New(runner)

	for _, in := range []string{"", "   ", "\r\n\t"} {
		w := post(t, s, in)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
		assert.NotEmpty(t, w.Body.String())
	}

	runner.Wait()
	assert.Zero(t, adapter.Calls())
	assert.Zero(t, runner.Active())
}

func TestServer_MissingFormField(t *testing.T) {
	s := New(relay.NewRunner(testutil.NewScriptBuilder().Build()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("other=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ScreenshotScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	adapter := testutil.NewScriptBuilder().
		Emit(core.NewTextEvent("Taking screenshot")).
		ToolResult("abc", core.ToolResult{Base64Image: testutil.PNGBase64(10, 10)}).
		Build()
	runner := relay.NewRunner(adapter, func(o *relay.Options) {
		o.Persister = artifact.NewPersister(artifact.NewFileStore(dir))
	})
	s := New(runner, func(o *Options) { o.ArtifactDir = dir })

	w := post(t, s, "take a screenshot")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	frags := fragments(w.Body.String())
	require.Len(t, frags, 2)
	assert.Equal(t, "Taking screenshot", frags[0])
	assert.True(t, strings.HasSuffix(frags[1], "abc.png"), frags[1])

	// The persisted file is served back under the artifact route.
	name := filepath.Base(frags[1])
	get := httptest.NewRecorder()
	s.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/screenshots/"+name, nil))
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, testutil.PNG(10, 10), get.Body.Bytes())

	list := httptest.NewRecorder()
	s.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/screenshots/", nil))
	assert.Equal(t, http.StatusNotFound, list.Code)
}

func TestServer_MissingCredential(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	adapter := testutil.NewScriptBuilder().Screenshot("abc").Build()
	runner := relay.NewRunner(adapter, func(o *relay.Options) {
		o.Credential = relay.StaticCredential(relay.PlaceholderCredential)
		o.CredentialName = "ANTHROPIC_API_KEY"
		o.Persister = artifact.NewPersister(artifact.NewFileStore(dir))
	})

	w := post(t, New(runner), "take a screenshot")

	assert.Equal(t, http.StatusOK, w.Code)
	frags := fragments(w.Body.String())
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0], "ANTHROPIC_API_KEY")
	assert.NoDirExists(t, dir)
	assert.Zero(t, adapter.Calls())
}

func TestServer_EngineFault(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Fail(errors.New("model overloaded")).Build()

	w := post(t, New(relay.NewRunner(adapter)), "do something")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"engine error: model overloaded"}, fragments(w.Body.String()))
}

func TestServer_PreservesOrder(t *testing.T) {
	b := testutil.NewScriptBuilder()
	var want []string
	for i := 0; i < 100; i++ {
		b.Text(fmt.Sprintf("step %d", i))
		want = append(want, fmt.Sprintf("step %d", i))
	}

	w := post(t, New(relay.NewRunner(b.Build())), "count")

	assert.Equal(t, want, fragments(w.Body.String()))
}

func TestServer_EscapesEngineOutput(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Text("<script>alert(1)</script>").Build()

	w := post(t, New(relay.NewRunner(adapter)), "xss")

	assert.NotContains(t, w.Body.String(), "<script>")
	assert.Equal(t, []string{"&lt;script&gt;alert(1)&lt;/script&gt;"}, fragments(w.Body.String()))
}

type failingStarter struct{}

func (failingStarter) Start(context.Context, string) (*relay.Invocation, error) {
	return nil, errors.New("no capacity")
}

func TestServer_StartFailure(t *testing.T) {
	w := post(t, New(failingStarter{}), "go")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type panickingStarter struct{}

func (panickingStarter) Start(context.Context, string) (*relay.Invocation, error) {
	panic("handler bug")
}

func TestServer_RecoversHandlerPanic(t *testing.T) {
	w := post(t, New(panickingStarter{}), "go")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_Health(t *testing.T) {
	s := New(relay.NewRunner(testutil.NewScriptBuilder().Build()))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["active_runs"])
}

func TestServer_RequestID(t *testing.T) {
	s := New(relay.NewRunner(testutil.NewScriptBuilder().Build()))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestServer_UnknownRoute(t *testing.T) {
	s := New(relay.NewRunner(testutil.NewScriptBuilder().Build()))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StreamsOverRealConnection(t *testing.T) {
	adapter := testutil.NewScriptBuilder().Text("one").Text("two").Build()
	ts := httptest.NewServer(New(relay.NewRunner(adapter)))
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/", url.Values{"instruction": {"go"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, fragments(string(body)))
	assert.NotEmpty(t, resp.Header.Get("X-Invocation-ID"))
}

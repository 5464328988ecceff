package artifact

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func(o *PersisterOptions) {
	return func(o *PersisterOptions) { o.Clock = func() time.Time { return t } }
}

func TestPersister_NoImage(t *testing.T) {
	p := NewPersister(NewInMemoryStore(""))

	a, err := p.Persist(core.ToolResult{Output: "clicked"}, "abc")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestPersister_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	img := testutil.PNG(10, 10)
	p := NewPersister(NewFileStore(dir))

	a, err := p.Persist(core.ToolResult{Base64Image: base64.StdEncoding.EncodeToString(img)}, "abc")
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.True(t, strings.HasSuffix(a.Path, "abc.png"), a.Path)
	assert.True(t, strings.HasPrefix(a.Name, "screenshot_"), a.Name)
	assert.Equal(t, "abc", a.InvocationID)
	assert.Equal(t, len(img), a.Size)

	onDisk, err := os.ReadFile(filepath.FromSlash(a.Path))
	require.NoError(t, err)
	assert.Equal(t, img, onDisk)
}

func TestPersister_NameFormat(t *testing.T) {
	at := time.Date(2024, 10, 22, 13, 4, 5, 0, time.UTC)
	p := NewPersister(NewInMemoryStore("screenshots"), fixedClock(at))

	a, err := p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(2, 2)}, "toolu_01")
	require.NoError(t, err)
	assert.Equal(t, "screenshots/screenshot_20241022_130405_toolu_01.png", a.Path)
	assert.Equal(t, at, a.CreatedAt)
}

func TestPersister_UniqueWithinSameSecond(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPersister(NewFileStore(t.TempDir()), fixedClock(at))
	img := testutil.PNGBase64(1, 1)

	a1, err := p.Persist(core.ToolResult{Base64Image: img}, "id-1")
	require.NoError(t, err)
	a2, err := p.Persist(core.ToolResult{Base64Image: img}, "id-2")
	require.NoError(t, err)

	assert.NotEqual(t, a1.Path, a2.Path)

	// Ids that only differ in characters rewritten for the filesystem.
	a3, err := p.Persist(core.ToolResult{Base64Image: img}, "call.1")
	require.NoError(t, err)
	a4, err := p.Persist(core.ToolResult{Base64Image: img}, "call_1")
	require.NoError(t, err)
	a5, err := p.Persist(core.ToolResult{Base64Image: img}, "call/1")
	require.NoError(t, err)

	assert.NotEqual(t, a3.Path, a4.Path)
	assert.NotEqual(t, a3.Path, a5.Path)
	assert.NotEqual(t, a4.Path, a5.Path)
	assert.Equal(t, "screenshot_20240101_000000_call_1.png", a4.Name)
}

func TestPersister_URL(t *testing.T) {
	p := NewPersister(NewInMemoryStore(""), func(o *PersisterOptions) { o.URLPrefix = "/screenshots/" })

	a, err := p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "abc")
	require.NoError(t, err)
	assert.Equal(t, "/screenshots/"+a.Name, a.URL)

	a, err = NewPersister(NewInMemoryStore("")).Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "abc")
	require.NoError(t, err)
	assert.Empty(t, a.URL)
}

func TestPersister_DecodeVariants(t *testing.T) {
	img := testutil.PNG(3, 3)
	store := NewInMemoryStore("")
	p := NewPersister(store)

	inputs := map[string]string{
		"padded":   base64.StdEncoding.EncodeToString(img),
		"unpadded": base64.RawStdEncoding.EncodeToString(img),
		"data-url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	}
	for id, in := range inputs {
		a, err := p.Persist(core.ToolResult{Base64Image: in}, id)
		require.NoError(t, err, id)
		got, err := store.Get(a.Name)
		require.NoError(t, err)
		assert.Equal(t, img, got, id)
	}
}

func TestPersister_Errors(t *testing.T) {
	p := NewPersister(NewInMemoryStore(""))

	_, err := p.Persist(core.ToolResult{Base64Image: "!!not base64!!"}, "x")
	assert.Error(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p = NewPersister(NewInMemoryStore(""), fixedClock(at))
	_, err = p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "dup")
	require.NoError(t, err)
	_, err = p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "dup")
	assert.ErrorIs(t, err, ErrExists)
}

func TestPersister_SanitizesIDsAndGeneratesMissing(t *testing.T) {
	store := NewInMemoryStore("")
	p := NewPersister(store)

	a, err := p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "../../etc/passwd")
	require.NoError(t, err)
	assert.NotContains(t, a.Name, "/")
	assert.Contains(t, a.Name, "______etc_passwd.")
	assert.True(t, strings.HasSuffix(a.Name, ".png"), a.Name)
	assert.Equal(t, a.Name, p.Name(a.CreatedAt, "../../etc/passwd"), "digest is stable")

	a, err = p.Persist(core.ToolResult{Base64Image: testutil.PNGBase64(1, 1)}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, a.InvocationID)
}

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaker/internal/testutil"
	"github.com/roach88/shaker/internal/xmir"
)

func testKey() Key {
	return Key{ToolVersion: "0.1.0-abcd1234", ContentHash: "abcdef1", Path: "foo/x/main.xmir"}
}

func helloDoc(t *testing.T) *xmir.Document {
	t.Helper()
	doc, err := xmir.Parse([]byte(testutil.HelloWorld))
	require.NoError(t, err)
	return doc
}

func TestStore_Layout(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	assert.Equal(t,
		filepath.Join(root, "0.1.0-abcd1234", "abcdef1", "foo", "x", "main.xmir"),
		s.Path(testKey()))
}

func TestStore_MissIsNotAnError(t *testing.T) {
	s := New(t.TempDir())

	doc, found, err := s.Load(testKey())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, doc)

	_, found, err = s.Stat(testKey())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_MissingRootIsAMiss(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never", "created"))

	_, found, err := s.LoadBytes(testKey())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SaveThenLoad(t *testing.T) {
	s := New(t.TempDir())
	doc := helloDoc(t)

	require.NoError(t, s.Save(testKey(), doc))

	loaded, found, err := s.Load(testKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, xmir.Equal(doc, loaded))

	data, found, err := s.LoadBytes(testKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(xmir.Marshal(doc)), string(data))
}

func TestStore_SaveSetsFreshModTime(t *testing.T) {
	s := New(t.TempDir())
	before := time.Now().Add(-time.Second)

	require.NoError(t, s.Save(testKey(), helloDoc(t)))

	mtime, found, err := s.Stat(testKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, mtime.After(before), "mtime %v should be after %v", mtime, before)
}

func TestStore_OverwriteReplacesWholesale(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.SaveBytes(testKey(), []byte("<a>first, and rather long</a>")))
	require.NoError(t, s.SaveBytes(testKey(), []byte("<b/>")))

	data, _, err := s.LoadBytes(testKey())
	require.NoError(t, err)
	assert.Equal(t, "<b/>", string(data))
}

func TestStore_VersionsAndHashesCoexist(t *testing.T) {
	s := New(t.TempDir())
	k1 := testKey()
	k2 := k1
	k2.ToolVersion = "0.2.0-ffff0000"
	k3 := k1
	k3.ContentHash = "1234567"

	require.NoError(t, s.SaveBytes(k1, []byte("<one/>")))
	require.NoError(t, s.SaveBytes(k2, []byte("<two/>")))
	require.NoError(t, s.SaveBytes(k3, []byte("<three/>")))

	for k, want := range map[Key]string{k1: "<one/>", k2: "<two/>", k3: "<three/>"} {
		data, found, err := s.LoadBytes(k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, string(data))
	}
}

func TestStore_CorruptedEntryFails(t *testing.T) {
	s := New(t.TempDir())
	testutil.WriteFile(t, s.Root(), "0.1.0-abcd1234/abcdef1/foo/x/main.xmir", "<program><objects>")

	_, found, err := s.Load(testKey())
	assert.False(t, found)
	assert.ErrorContains(t, err, "corrupted cache entry")
	assert.True(t, xmir.IsParseError(err))
}

func TestStore_DirectoryInPlaceOfEntry(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, os.MkdirAll(s.Path(testKey()), 0o755))

	_, _, err := s.Stat(testKey())
	assert.Error(t, err)
	_, _, err = s.Load(testKey())
	assert.Error(t, err)
}

func TestKey_Validate(t *testing.T) {
	bad := []Key{
		{ToolVersion: "", ContentHash: "h", Path: "a.xmir"},
		{ToolVersion: "v", ContentHash: "", Path: "a.xmir"},
		{ToolVersion: "v", ContentHash: "h", Path: ""},
		{ToolVersion: "v/1", ContentHash: "h", Path: "a.xmir"},
		{ToolVersion: "..", ContentHash: "h", Path: "a.xmir"},
		{ToolVersion: "v", ContentHash: "h", Path: "/etc/passwd"},
		{ToolVersion: "v", ContentHash: "h", Path: "../escape.xmir"},
		{ToolVersion: "v", ContentHash: "h", Path: "a//b.xmir"},
	}
	s := New(t.TempDir())
	for _, k := range bad {
		assert.Error(t, k.Validate(), "key %q", k)
		assert.Error(t, s.SaveBytes(k, []byte("<a/>")), "key %q", k)
	}
	assert.NoError(t, testKey().Validate())
}

func TestStore_ConcurrentSavesSameKey(t *testing.T) {
	s := New(t.TempDir())
	const writers = 20

	payloads := make(map[string]bool, writers)
	for i := 0; i < writers; i++ {
		payloads[fmt.Sprintf("<o writer=\"%d\"/>", i)] = true
	}

	var wg sync.WaitGroup
	for p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			assert.NoError(t, s.SaveBytes(testKey(), []byte(p)))
		}(p)
	}
	// Concurrent readers see a miss or a complete entry, never a torn one.
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, found, err := s.LoadBytes(testKey())
			if assert.NoError(t, err) && found {
				assert.True(t, payloads[string(data)], "torn entry %q", data)
			}
		}()
	}
	wg.Wait()

	data, found, err := s.LoadBytes(testKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, payloads[string(data)], "final entry %q must be one full write", data)

	entries, err := os.ReadDir(filepath.Dir(s.Path(testKey())))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_ConcurrentSavesDistinctKeys(t *testing.T) {
	s := New(t.TempDir())
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := testKey()
			k.Path = fmt.Sprintf("foo/x/main-%d.xmir", i)
			assert.NoError(t, s.SaveBytes(k, []byte(fmt.Sprintf("<p n=\"%d\"/>", i))))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		k := testKey()
		k.Path = fmt.Sprintf("foo/x/main-%d.xmir", i)
		data, found, err := s.LoadBytes(k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("<p n=\"%d\"/>", i), string(data))
	}
}

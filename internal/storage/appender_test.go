package storage

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppender_Disabled(t *testing.T) {
	assert.Nil(t, NewAppender(""))
	assert.Nil(t, NewAppender("None"))
	assert.NotNil(t, NewAppender(t.TempDir()))
}

func TestCheckFileName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", "../x", `a\b`} {
		assert.ErrorIs(t, CheckFileName(bad), ErrInvalidFileName, bad)
	}
	assert.NoError(t, CheckFileName("h1_2024-01-01.csv"))
}

func writeOnce(t *testing.T, a *Appender) {
	t.Helper()
	f, err := a.Open("h1.csv")
	require.NoError(t, err)
	require.NoError(t, f.Append("environment=prod,instance=h1", "cpu", "timestamp=2024-01-01T00:00:00.000000,a=1"))
	require.NoError(t, f.Append("environment=prod,instance=h1", "mem", "timestamp=2024-01-01T00:00:00.000000,b=2"))
	require.NoError(t, f.Close())
}

func TestAppend_IsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	a := NewAppender(dir)

	writeOnce(t, a)
	first, err := os.ReadFile(filepath.Join(dir, "h1.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"environment=prod,instance=h1,cpu,timestamp=2024-01-01T00:00:00.000000,a=1\n"+
			"environment=prod,instance=h1,mem,timestamp=2024-01-01T00:00:00.000000,b=2\n",
		string(first))

	writeOnce(t, a)
	second, err := os.ReadFile(filepath.Join(dir, "h1.csv"))
	require.NoError(t, err)
	assert.Len(t, second, 2*len(first))
}

func TestAppend_MultiLineValueStaysOnOneLine(t *testing.T) {
	dir := t.TempDir()
	f, err := NewAppender(dir).Open("traces.csv")
	require.NoError(t, err)
	require.NoError(t, f.Append("instance=h1", "spans", "id=1,name=a\r\nid=2,name=b\n"))
	require.NoError(t, f.Close())

	got, err := os.ReadFile(filepath.Join(dir, "traces.csv"))
	require.NoError(t, err)
	assert.Equal(t, `instance=h1,spans,id=1,name=a\nid=2,name=b\n`+"\n", string(got))
}

func TestAppend_ConcurrentWritersDoNotInterleave(t *testing.T) {
	dir := t.TempDir()
	a := NewAppender(dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := a.Open("shared.csv")
			if !assert.NoError(t, err) {
				return
			}
			defer f.Close()
			for j := 0; j < 10; j++ {
				assert.NoError(t, f.Append("w"+strconv.Itoa(i), "k", strconv.Itoa(j)))
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "shared.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 200)
	// each writer's ten lines are contiguous
	for i := 0; i < len(lines); i += 10 {
		owner := strings.SplitN(lines[i], ",", 2)[0]
		for j := 0; j < 10; j++ {
			assert.Equal(t, owner+",k,"+strconv.Itoa(j), lines[i+j])
		}
	}
	assert.Empty(t, a.locks)
}

func TestOpen_MissingDir(t *testing.T) {
	a := NewAppender(filepath.Join(t.TempDir(), "missing"))
	_, err := a.Open("h1.csv")
	assert.Error(t, err)
	assert.Empty(t, a.locks)
}

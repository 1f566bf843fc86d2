package activity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		Timestamp: testTime,
		Actor:     "budi",
		Action:    ActionPost,
		Subject:   "2025-01-001",
		Details:   "Sewa kantor, 4000.00",
	}
}

func newLog(t *testing.T) *Log {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "logs", "activity.csv"))
}

func TestAppend_NewFile(t *testing.T) {
	l := newLog(t)
	require.NoError(t, l.Append(testEntry()))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "budi", entries[0].Actor)
	assert.Equal(t, "Sewa kantor, 4000.00", entries[0].Details)
}

func TestAppend_ExistingFile(t *testing.T) {
	l := newLog(t)
	require.NoError(t, l.Append(testEntry()))

	e2 := testEntry()
	e2.Action = ActionImport
	e2.Subject = "coa.csv"
	require.NoError(t, l.Append(e2))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionPost, entries[0].Action)
	assert.Equal(t, ActionImport, entries[1].Action)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), Header))
}

func TestAppend_Concurrent(t *testing.T) {
	l := newLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(testEntry()))
		}()
	}
	wg.Wait()

	entries, err := l.Read()
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestRead_NotFound(t *testing.T) {
	entries, err := newLog(t).Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestNilLogDiscards(t *testing.T) {
	l := Open("")
	assert.Nil(t, l)
	assert.NoError(t, l.Append(testEntry()))
	entries, err := l.Read()
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.Empty(t, l.Path())
}

func TestMarshalUnmarshal(t *testing.T) {
	e := testEntry()
	row := MarshalEntry(e)
	assert.Len(t, row, 5)
	assert.Equal(t, "2025-01-15T10:30:00Z", row[0])

	got, err := UnmarshalEntry(row)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, e.Subject, got.Subject)
}

func TestUnmarshalEntry_BadFieldCount(t *testing.T) {
	_, err := UnmarshalEntry([]string{"one", "two"})
	assert.ErrorContains(t, err, "expected 5 fields")
}

package runlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(base time.Time) []Record {
	return []Record{
		{RunID: "r1", Timestamp: base, Allocated: 5, Assignments: map[string]int{"CUST_0001": 5}},
		{RunID: "r2", Timestamp: base.Add(time.Hour), Allocated: 6, Assignments: map[string]int{"CUST_0001": 5, "CUST_0002": 1}},
		{RunID: "r3", Timestamp: base.Add(2 * time.Hour), Allocated: 5, Assignments: map[string]int{"CUST_0003": 5}},
	}
}

func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"jsonl": func() Store {
			s, err := NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
			require.NoError(t, err)
			return s
		},
		"rotating": func() Store {
			s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "runs.jsonl"), 1, 2, 1)
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoresQuery(t *testing.T) {
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open()
			defer func() { _ = store.Close() }()
			recs := sampleRecords(base)
			// Appended out of order; queries return oldest first.
			for _, i := range []int{2, 0, 1} {
				require.NoError(t, store.Append(ctx, recs[i]))
			}

			all, err := store.Query(ctx, Query{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"r1", "r2", "r3"}, runIDs(all))
			assert.Equal(t, 1, all[1].Assignments["CUST_0002"])

			byCustomer, err := store.Query(ctx, Query{CustomerID: "CUST_0001"})
			require.NoError(t, err)
			assert.Equal(t, []string{"r1", "r2"}, runIDs(byCustomer))

			window, err := store.Query(ctx, Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
			require.NoError(t, err)
			assert.Equal(t, []string{"r2"}, runIDs(window))

			byRun, err := store.Query(ctx, Query{RunID: "r3"})
			require.NoError(t, err)
			assert.Equal(t, []string{"r3"}, runIDs(byRun))

			latest, err := store.Query(ctx, Query{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"r2", "r3"}, runIDs(latest))

			none, err := store.Query(ctx, Query{CustomerID: "CUST_9999"})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestRotatingJSONLStoreRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assignments := make(map[string]int, 4000)
	for i := range 4000 {
		assignments[fmt.Sprintf("CUST_%04d", i)] = 1
	}
	base := time.Now()
	for i := range 30 {
		rec := Record{RunID: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Second), Assignments: assignments}
		require.NoError(t, store.Append(context.Background(), rec))
	}
	files, err := backups(path)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "expected rotated files")

	out, err := store.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, "29", out[len(out)-1].RunID)
}

func TestJSONLStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, Record{RunID: "ok", Timestamp: time.Now()}))
	require.NoError(t, appendRaw(path, "{not json\n"))
	out, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, runIDs(out))
}

func TestSQLiteStoreDuplicateRun(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	rec := Record{RunID: "dup", Timestamp: time.Now(), Assignments: map[string]int{"a": 1}}
	require.NoError(t, store.Append(ctx, rec))
	assert.Error(t, store.Append(ctx, rec))
	out, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(BackendJSONL, filepath.Join(dir, "a.jsonl"), Rotation{})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	s, err = Open("", filepath.Join(dir, "b.jsonl"), Rotation{MaxSizeMB: 1})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, s)
	_ = s.Close()

	s, err = Open(BackendSQLite, filepath.Join(dir, "c.db"), Rotation{})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = Open("redis", "x", Rotation{})
	assert.Error(t, err)
}

func runIDs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.RunID
	}
	return out
}

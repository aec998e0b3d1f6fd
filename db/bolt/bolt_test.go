package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateBucket("records"))
	return db
}

// TestPutGetJSON tests round-tripping a JSON document
func TestPutGetJSON(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.PutJSON("records", "r1", record{Name: "order-flow", Count: 3}))

	var loaded record
	require.NoError(t, db.GetJSON("records", "r1", &loaded))
	assert.Equal(t, "order-flow", loaded.Name)
	assert.Equal(t, 3, loaded.Count)
}

// TestGetJSON_Missing tests errors for unknown keys and buckets
func TestGetJSON_Missing(t *testing.T) {
	db := newTestDB(t)

	var loaded record
	err := db.GetJSON("records", "missing", &loaded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key not found")

	err = db.GetJSON("nope", "r1", &loaded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
}

// TestDelete tests key removal
func TestDelete(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.PutJSON("records", "r1", record{Name: "a"}))
	require.NoError(t, db.Delete("records", "r1"))

	var loaded record
	assert.Error(t, db.GetJSON("records", "r1", &loaded))
}

// TestList tests key enumeration
func TestList(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.PutJSON("records", "a", record{}))
	require.NoError(t, db.PutJSON("records", "b", record{}))

	keys, err := db.List("records")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

// TestForEachJSON tests typed iteration over a bucket
func TestForEachJSON(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.PutJSON("records", "a", record{Name: "first"}))
	require.NoError(t, db.PutJSON("records", "b", record{Name: "second"}))

	names := map[string]string{}
	err := db.ForEachJSON("records", func(key string, value interface{}) error {
		names[key] = value.(*record).Name
		return nil
	}, func() interface{} { return &record{} })
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "first", "b": "second"}, names)
}

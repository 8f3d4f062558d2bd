package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCursorRoundTrip(t *testing.T) {
	cases := []struct {
		idx int
		raw uint64
	}{
		{0, 0}, {1, 0}, {255, 123456}, {3, 99},
	}
	for _, c := range cases {
		enc := encodeScanCursor(c.idx, c.raw)
		idx, raw := decodeScanCursor(enc)
		assert.Equal(t, c.idx, idx)
		assert.Equal(t, c.raw, raw)
	}
}

func TestScanIteratorAcrossShards(t *testing.T) {
	// 3 shards, each with 2 keys, each shard's SCAN returns everything
	// in one batch (cursor back to 0 immediately).
	data := [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}}
	clients := make([]SingleNodeClient, 0, 3)
	for _, keys := range data {
		keys := keys
		fc := newFakeClient(NodeKey{Host: "127.0.0.1", Port: 7000})
		fc.handler = func(cmd string, args ...interface{}) (interface{}, error) {
			batch := make([]interface{}, len(keys))
			for i, k := range keys {
				batch[i] = []byte(k)
			}
			return []interface{}{[]byte("0"), batch}, nil
		}
		clients = append(clients, fc)
	}

	it := newScanIterator("SCAN", clients, []interface{}{"MATCH", "*"})
	var seen []string
	for {
		batch, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		for _, k := range batch {
			seen = append(seen, string(k.([]byte)))
		}
	}

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, seen)
	assert.Equal(t, "0", it.Cursor())
}

func TestScanIteratorMultiPageShard(t *testing.T) {
	fc := newFakeClient(NodeKey{Host: "127.0.0.1", Port: 7000})
	calls := 0
	fc.handler = func(cmd string, args ...interface{}) (interface{}, error) {
		calls++
		if calls == 1 {
			return []interface{}{[]byte("7"), []interface{}{[]byte("a")}}, nil
		}
		return []interface{}{[]byte("0"), []interface{}{[]byte("b")}}, nil
	}

	it := newScanIterator("SCAN", []SingleNodeClient{fc}, nil)
	batch1, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{[]byte("a")}, batch1)
	assert.NotEqual(t, "0", it.Cursor())

	batch2, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{[]byte("b")}, batch2)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "0", it.Cursor())
}

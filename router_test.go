package cluster

import (
	"errors"
	"strconv"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotStr(s Slot) string { return strconv.Itoa(int(s)) }

func newTestRouter(t *testing.T, fcs *fakeClientSet, seed NodeKey, nodesOutput string) *Router {
	t.Helper()
	cfg := testConfig(t, seed.String())
	topo, err := loadWithScriptedNodes(cfg, fcs, seed, nodesOutput)
	require.NoError(t, err)

	r := &Router{cfg: cfg, topo: topo, newClient: fcs.factory}
	return r
}

var seed7000 = NodeKey{Host: "127.0.0.1", Port: 7000}

func TestRouterCallRoutesByKeySlot(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	// slot_for("foo") = 12182, owned by the third primary (port 7002).
	target := fcs.get(NodeKey{Host: "127.0.0.1", Port: 7002})
	target.reply = "OK"

	reply, err := r.Call("SET", "foo", "1")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	assert.Equal(t, 1, target.callCount())
}

func TestRouterRejectedAndAmbiguous(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	_, err := r.Call("CLUSTER", "FAILOVER")
	var orchErr *OrchestrationCommandNotSupported
	require.ErrorAs(t, err, &orchErr)

	_, err = r.Call("MULTI")
	var ambErr *AmbiguousNodeError
	require.ErrorAs(t, err, &ambErr)
}

func TestRouterFollowsMoved(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	slot := SlotFor("key1")
	owner, err := r.topo.ClientForSlot(slot, true)
	require.NoError(t, err)
	from := owner.(*fakeClient)

	// pick a different node than the current owner as the MOVED target.
	var toKey NodeKey
	for _, nk := range r.topo.NodeKeys() {
		if nk != from.Addr() {
			toKey = nk
			break
		}
	}
	to := fcs.get(toKey)

	from.handler = func(cmd string, args ...interface{}) (interface{}, error) {
		return nil, redis.Error("MOVED " + slotStr(slot) + " " + toKey.String())
	}
	to.reply = []byte("value1")

	reply, err := r.Call("GET", "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), reply)

	// slot map was corrected: a second call goes straight to the new owner.
	to.reply = []byte("value1-again")
	from.calls = nil
	to.calls = nil
	reply, err = r.Call("GET", "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1-again"), reply)
	assert.Equal(t, 0, from.callCount())
	assert.Equal(t, 1, to.callCount())
}

func TestRouterFollowsAskWithoutUpdatingSlotMap(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	slot := SlotFor("x")
	ownerClient, err := r.topo.ClientForSlot(slot, true)
	require.NoError(t, err)
	owner := ownerClient.(*fakeClient)

	var askKey NodeKey
	for _, nk := range r.topo.NodeKeys() {
		if nk != owner.Addr() {
			askKey = nk
			break
		}
	}
	askTarget := fcs.get(askKey)

	owner.handler = func(cmd string, args ...interface{}) (interface{}, error) {
		return nil, redis.Error("ASK " + slotStr(slot) + " " + askKey.String())
	}
	askTarget.reply = "OK"

	reply, err := r.Call("SET", "x", "1")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)

	askCalls, ok := askTarget.lastCall()
	require.True(t, ok)
	// the call right before the final one on askTarget must be ASKING
	require.GreaterOrEqual(t, len(askTarget.calls), 2)
	assert.Equal(t, "ASKING", askTarget.calls[0].cmd)
	assert.Equal(t, "SET", askCalls.cmd)

	// the slot map must still route to the original owner next time.
	owner.handler = nil
	owner.reply = "OK-again"
	reply, err = r.Call("SET", "x", "1")
	require.NoError(t, err)
	assert.Equal(t, "OK-again", reply)
}

func TestRouterRetryBudgetZeroSurfacesMoved(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	from := fcs.get(seed7000)
	from.handler = func(cmd string, args ...interface{}) (interface{}, error) {
		return nil, redis.Error("MOVED 0 127.0.0.1:7001")
	}

	client, err := r.topo.ClientForSlot(0, true)
	require.NoError(t, err)
	_, err = r.trySend(client, []interface{}{"GET", "a"}, callOpts{retryBudget: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOVED")
}

func TestRouterSampleForKeylessCommand(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	for _, nk := range r.topo.NodeKeys() {
		fcs.get(nk).reply = "PONG"
	}

	reply, err := r.Call("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", reply)
}

func TestRouterFanOutKeysSortsAndConcats(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	mk := func(items ...string) []interface{} {
		out := make([]interface{}, len(items))
		for i, it := range items {
			out[i] = []byte(it)
		}
		return out
	}
	// sampleClusterNodes gives 7000/7001 a replica each (7003/7004) and
	// leaves 7002's shard replica-less, so KEYS reads from 7003, 7004
	// and 7002 (the read-serving set, not the raw replica set).
	fcs.get(NodeKey{Host: "127.0.0.1", Port: 7003}).reply = mk("b", "a")
	fcs.get(NodeKey{Host: "127.0.0.1", Port: 7004}).reply = mk("d", "c")
	fcs.get(NodeKey{Host: "127.0.0.1", Port: 7002}).reply = mk("e")

	reply, err := r.Call("KEYS", "*")
	require.NoError(t, err)
	arr := reply.([]interface{})
	var got []string
	for _, v := range arr {
		got = append(got, string(v.([]byte)))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestRouterIDSorted(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)
	defer r.Close()

	id := r.ID()
	assert.Contains(t, id, "127.0.0.1:7000")
	assert.Contains(t, id, "127.0.0.1:7004")
	assert.Equal(t, "127.0.0.1:7000,127.0.0.1:7001,127.0.0.1:7002,127.0.0.1:7003,127.0.0.1:7004", id)
}

func TestRouterCloseIsIdempotent(t *testing.T) {
	fcs := newFakeClientSet()
	r := newTestRouter(t, fcs, seed7000, sampleClusterNodes)

	require.NoError(t, r.Close())
	err := r.Close()
	require.Error(t, err)
	assert.False(t, r.Connected())
}

func TestIsConnError(t *testing.T) {
	assert.False(t, isConnError(nil))
	assert.False(t, isConnError(redis.Error("ERR boom")))
	assert.True(t, isConnError(errors.New("connection reset")))
}

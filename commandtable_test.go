package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandTableLookupBasic(t *testing.T) {
	tbl := CommandTable{}

	spec, ok := tbl.Lookup([]string{"GET", "foo"})
	assert.True(t, ok)
	assert.Equal(t, Single, spec.class)
	assert.True(t, spec.readOnly)

	spec, ok = tbl.Lookup([]string{"SET", "foo", "bar"})
	assert.True(t, ok)
	assert.Equal(t, Single, spec.class)
	assert.False(t, spec.readOnly)
}

func TestCommandTableRejectedAndAmbiguous(t *testing.T) {
	tbl := CommandTable{}

	spec, _ := tbl.Lookup([]string{"SHUTDOWN"})
	assert.Equal(t, Rejected, spec.class)

	spec, _ = tbl.Lookup([]string{"MULTI"})
	assert.Equal(t, Ambiguous, spec.class)

	spec, _ = tbl.Lookup([]string{"CLUSTER", "FAILOVER"})
	assert.Equal(t, Rejected, spec.class)
}

func TestCommandTableFanOut(t *testing.T) {
	tbl := CommandTable{}

	spec, _ := tbl.Lookup([]string{"FLUSHALL"})
	assert.Equal(t, AllPrimaries, spec.class)

	spec, _ = tbl.Lookup([]string{"KEYS", "*"})
	assert.Equal(t, AllReplicas, spec.class)
	assert.Equal(t, AggConcatSort, spec.agg)

	spec, _ = tbl.Lookup([]string{"DBSIZE"})
	assert.Equal(t, AllReplicas, spec.class)
	assert.Equal(t, AggSum, spec.agg)

	spec, _ = tbl.Lookup([]string{"WAIT", "0", "100"})
	assert.Equal(t, AllPrimaries, spec.class)
	assert.Equal(t, AggSum, spec.agg)
}

func TestCommandTableSpecialSubcommand(t *testing.T) {
	tbl := CommandTable{}

	spec, _ := tbl.Lookup([]string{"SCRIPT", "FLUSH"})
	assert.Equal(t, AllPrimaries, spec.class)

	spec, _ = tbl.Lookup([]string{"SCRIPT", "KILL"})
	assert.Equal(t, AllNodes, spec.class)

	spec, _ = tbl.Lookup([]string{"CONFIG", "SET", "maxmemory", "100mb"})
	assert.Equal(t, AllNodes, spec.class)

	spec, _ = tbl.Lookup([]string{"PUBSUB", "NUMSUB", "chan1"})
	assert.Equal(t, AllNodes, spec.class)
	assert.Equal(t, AggMergeMapsSum, spec.agg)
}

func TestExtractFirstKey(t *testing.T) {
	tbl := CommandTable{}
	assert.Equal(t, "foo", tbl.ExtractFirstKey([]string{"GET", "foo"}))
	assert.Equal(t, "", tbl.ExtractFirstKey([]string{"PING"}))
	assert.Equal(t, "key", tbl.ExtractFirstKey([]string{"EVAL", "script", "1", "key"}))
}

func TestShouldSendToPrimary(t *testing.T) {
	tbl := CommandTable{}
	assert.True(t, tbl.ShouldSendToPrimary([]string{"SET", "a", "b"}, true))
	assert.False(t, tbl.ShouldSendToPrimary([]string{"GET", "a"}, true))
	assert.True(t, tbl.ShouldSendToPrimary([]string{"GET", "a"}, false))
}

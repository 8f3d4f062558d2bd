package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleClusterNodes = `07c37dfeb235213a872192d90877d0cd55635b91 127.0.0.1:7000@17000 myself,master - 0 1426238316232 2 connected 0-5460
67ed2db8d677e59ec4a4cefb06858cf2a1a89fa1 127.0.0.1:7001@17001 master - 0 1426238317235 3 connected 5461-10922
292f8b365bb7edb5e285caf0b7e6ddc7265d2f4f 127.0.0.1:7002@17002 master - 0 1426238318236 1 connected 10923-16383
6ec23923021cf3ffec47632106199cb7f496ce01 127.0.0.1:7003@17003 slave 07c37dfeb235213a872192d90877d0cd55635b91 0 1426238317232 2 connected
824fe116063bc5fcf9f4ffd895bc17aee7731ac3 127.0.0.1:7004@17004 slave 67ed2db8d677e59ec4a4cefb06858cf2a1a89fa1 0 1426238318232 3 connected
`

func TestParseClusterNodes(t *testing.T) {
	infos, err := ParseClusterNodes(sampleClusterNodes)
	require.NoError(t, err)
	require.Len(t, infos, 5)

	primaries := 0
	replicas := 0
	for _, info := range infos {
		if info.Role == RolePrimary {
			primaries++
		} else {
			replicas++
		}
	}
	assert.Equal(t, 3, primaries)
	assert.Equal(t, 2, replicas)
}

func TestBuildSlotMap(t *testing.T) {
	infos, err := ParseClusterNodes(sampleClusterNodes)
	require.NoError(t, err)

	sm := BuildSlotMap(infos)
	assert.Equal(t, NodeKey{Host: "127.0.0.1", Port: 7000}, sm[0])
	assert.Equal(t, NodeKey{Host: "127.0.0.1", Port: 7000}, sm[5460])
	assert.Equal(t, NodeKey{Host: "127.0.0.1", Port: 7001}, sm[5461])
	assert.Equal(t, NodeKey{Host: "127.0.0.1", Port: 7002}, sm[16383])
}

func TestBuildReplicaMap(t *testing.T) {
	infos, err := ParseClusterNodes(sampleClusterNodes)
	require.NoError(t, err)

	rm := BuildReplicaMap(infos)
	p0 := NodeKey{Host: "127.0.0.1", Port: 7000}
	require.Contains(t, rm, p0)
	assert.Equal(t, []NodeKey{{Host: "127.0.0.1", Port: 7003}}, rm[p0])
}

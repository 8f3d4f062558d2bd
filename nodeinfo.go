package cluster

import (
	"strconv"
	"strings"
)

// Role is a node's role within its shard.
type Role int

const (
	// RolePrimary indicates a node owns slots directly.
	RolePrimary Role = iota
	// RoleReplica indicates a node replicates a primary.
	RoleReplica
)

// SlotRange is an inclusive [Begin, End] range of owned slots.
type SlotRange struct {
	Begin, End Slot
}

// NodeInfo is one line of CLUSTER NODES output, parsed.
type NodeInfo struct {
	NodeKey       NodeKey
	ID            string
	Role          Role
	PrimaryID     string
	Slots         []SlotRange
	ReplicationID string
}

// ParseClusterNodes parses the output of CLUSTER NODES into a list of
// NodeInfo, one per line. Lines for nodes in the "handshake" or
// "noaddr" state, or with no address, are skipped.
func ParseClusterNodes(output string) ([]NodeInfo, error) {
	var infos []NodeInfo

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}

		id := fields[0]
		addrField := fields[1]
		flags := fields[2]
		primaryID := fields[3]

		// addrField is "host:port@cport" or "host:port@cport,hostname";
		// only host:port matters here.
		addr := addrField
		if at := strings.IndexByte(addr, '@'); at >= 0 {
			addr = addr[:at]
		}
		if addr == "" || strings.Contains(flags, "noaddr") || strings.Contains(flags, "handshake") {
			continue
		}
		nk, err := ParseNodeKey(addr)
		if err != nil {
			continue
		}

		info := NodeInfo{NodeKey: nk, ID: id}
		if primaryID != "-" {
			info.Role = RoleReplica
			info.PrimaryID = primaryID
		} else {
			info.Role = RolePrimary
		}

		// remaining fields: ping-sent pong-recv config-epoch link-state
		// [slot ...]
		if len(fields) > 6 {
			info.ReplicationID = fields[6]
		}
		for _, f := range fields[8:] {
			if strings.HasPrefix(f, "[") {
				// slot migration marker (importing/migrating), ignore.
				continue
			}
			sr, ok := parseSlotRange(f)
			if ok {
				info.Slots = append(info.Slots, sr)
			}
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func parseSlotRange(f string) (SlotRange, bool) {
	if dash := strings.IndexByte(f, '-'); dash > 0 {
		begin, err1 := strconv.Atoi(f[:dash])
		end, err2 := strconv.Atoi(f[dash+1:])
		if err1 != nil || err2 != nil {
			return SlotRange{}, false
		}
		return SlotRange{Begin: Slot(begin), End: Slot(end)}, true
	}
	n, err := strconv.Atoi(f)
	if err != nil {
		return SlotRange{}, false
	}
	return SlotRange{Begin: Slot(n), End: Slot(n)}, true
}

// BuildSlotMap derives a slot -> primary NodeKey mapping from infos.
// Only primary-owned slots are included.
func BuildSlotMap(infos []NodeInfo) map[Slot]NodeKey {
	m := make(map[Slot]NodeKey, NumSlots)
	for _, info := range infos {
		if info.Role != RolePrimary {
			continue
		}
		for _, sr := range info.Slots {
			for s := sr.Begin; s <= sr.End; s++ {
				m[s] = info.NodeKey
			}
		}
	}
	return m
}

// BuildReplicaMap derives a primary NodeKey -> replica NodeKeys
// mapping from infos.
func BuildReplicaMap(infos []NodeInfo) map[NodeKey][]NodeKey {
	idToKey := make(map[string]NodeKey, len(infos))
	for _, info := range infos {
		if info.Role == RolePrimary {
			idToKey[info.ID] = info.NodeKey
		}
	}

	m := make(map[NodeKey][]NodeKey)
	for _, info := range infos {
		if info.Role != RoleReplica {
			continue
		}
		primary, ok := idToKey[info.PrimaryID]
		if !ok {
			continue
		}
		m[primary] = append(m[primary], info.NodeKey)
	}
	return m
}

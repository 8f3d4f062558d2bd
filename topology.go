package cluster

import (
	"errors"
	"sort"
	"sync"

	"github.com/gomodule/redigo/redis"
)

// errReloadNeeded signals that the Topology's view is stale and the
// Router must perform a full refresh before it can proceed.
var errReloadNeeded = errors.New("redisc: reload needed")

// IsReloadNeeded reports whether err is the sentinel Topology returns
// when it cannot resolve a NodeKey it doesn't know about.
func IsReloadNeeded(err error) bool {
	return errors.Is(err, errReloadNeeded)
}

// Topology is a snapshot of the cluster's node set, replica map and
// replica-selection strategy, built once by LoadTopology/buildTopology
// and never replaced in place: a Router swaps in a whole new Topology
// on refresh, so readers always observe either the old snapshot in
// full or the new one, never a torn state, per spec.md §5. The slot
// map is the one exception: MOVED redirections update it in place via
// UpdateSlot, so it is guarded by mu on every read and write, the way
// the teacher guards c.mapping with c.mu in cluster.go's
// getConnForSlot/needsRefresh.
type Topology struct {
	clients        map[NodeKey]SingleNodeClient
	replicas       map[NodeKey][]NodeKey
	strategy       ReplicaSelectionStrategy
	replicaEnabled bool

	mu      sync.RWMutex
	slotMap map[Slot]NodeKey

	closeOnce sync.Once
}

// topologyView is the read-only surface ReplicaSelectionStrategy
// implementations use; it exists so strategies never need direct
// access to Topology's mutable construction-time fields.
type topologyView struct {
	t *Topology
}

func (v *topologyView) primaryFor(slot Slot) (NodeKey, bool) {
	v.t.mu.RLock()
	defer v.t.mu.RUnlock()
	nk, ok := v.t.slotMap[slot]
	return nk, ok
}

func (v *topologyView) replicasOf(primary NodeKey) []NodeKey {
	return v.t.replicas[primary]
}

func (v *topologyView) clientFor(nk NodeKey) (SingleNodeClient, error) {
	c, ok := v.t.clients[nk]
	if !ok {
		return nil, errReloadNeeded
	}
	return c, nil
}

func (v *topologyView) allPrimaryKeys() []NodeKey {
	v.t.mu.RLock()
	seen := make(map[NodeKey]bool)
	var keys []NodeKey
	for _, nk := range v.t.slotMap {
		if !seen[nk] {
			seen[nk] = true
			keys = append(keys, nk)
		}
	}
	v.t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (v *topologyView) primaryClients() []SingleNodeClient {
	var out []SingleNodeClient
	for _, nk := range v.allPrimaryKeys() {
		if c, err := v.clientFor(nk); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func (v *topologyView) replicaClients() []SingleNodeClient {
	seen := make(map[NodeKey]bool)
	var keys []NodeKey
	for _, rs := range v.t.replicas {
		for _, nk := range rs {
			if !seen[nk] {
				seen[nk] = true
				keys = append(keys, nk)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var out []SingleNodeClient
	for _, nk := range keys {
		if c, err := v.clientFor(nk); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func (v *topologyView) anyPrimary() (NodeKey, bool) {
	keys := v.allPrimaryKeys()
	if len(keys) == 0 {
		return NodeKey{}, false
	}
	return keys[randIntn(len(keys))], true
}

// view returns the strategy-facing read-only view of t.
func (t *Topology) view() *topologyView { return &topologyView{t: t} }

// LoadTopology discovers cluster topology from cfg's seed list: it
// attempts CLUSTER NODES against each seed under
// cfg.SlowCommandTimeout until one succeeds, then builds one client
// per discovered endpoint via newClient. It mirrors the teacher's
// Cluster.refresh, generalized from CLUSTER SLOTS to CLUSTER NODES
// parsing per spec.md §4.3.
func LoadTopology(cfg *ClusterConfig, newClient func(NodeKey) (SingleNodeClient, error)) (*Topology, error) {
	seeds := cfg.RefreshSeeds()
	causes := make(map[NodeKey]error, len(seeds))

	for _, seed := range seeds {
		nk := seed.NodeKey()
		probe, err := newClient(nk)
		if err != nil {
			causes[nk] = err
			continue
		}

		out, err := probe.DoWithTimeout(cfg.SlowCommandTimeout, "CLUSTER", "NODES")
		if err != nil {
			causes[nk] = err
			probe.Close()
			continue
		}
		probe.Close()

		text, err := redis.String(out, nil)
		if err != nil {
			causes[nk] = err
			continue
		}

		infos, err := ParseClusterNodes(text)
		if err != nil {
			causes[nk] = err
			continue
		}

		return buildTopology(cfg, infos, newClient)
	}

	return nil, &InitialSetupError{Causes: causes}
}

func buildTopology(cfg *ClusterConfig, infos []NodeInfo, newClient func(NodeKey) (SingleNodeClient, error)) (*Topology, error) {
	if cfg.FixedHostname != "" {
		for i := range infos {
			infos[i].NodeKey.Host = cfg.FixedHostname
		}
	}

	slotMap := BuildSlotMap(infos)
	replicaMap := BuildReplicaMap(infos)

	clients := make(map[NodeKey]SingleNodeClient, len(infos))
	var allKeys []NodeKey
	for _, info := range infos {
		if _, ok := clients[info.NodeKey]; ok {
			continue
		}
		c, err := newClient(info.NodeKey)
		if err != nil {
			for _, existing := range clients {
				existing.Close()
			}
			return nil, &InitialSetupError{Causes: map[NodeKey]error{info.NodeKey: err}}
		}
		clients[info.NodeKey] = c
		allKeys = append(allKeys, info.NodeKey)
	}

	cfg.UpdateNode(allKeys)

	return &Topology{
		clients:        clients,
		slotMap:        slotMap,
		replicas:       replicaMap,
		strategy:       newReplicaStrategy(cfg.ReplicaAffinity),
		replicaEnabled: cfg.ReplicaEnabled,
	}, nil
}

// ClientForSlot returns the client that should serve slot. If
// needPrimary is true, it is always the primary's client; otherwise
// the configured ReplicaSelectionStrategy decides.
func (t *Topology) ClientForSlot(slot Slot, needPrimary bool) (SingleNodeClient, error) {
	if needPrimary {
		t.mu.RLock()
		nk, ok := t.slotMap[slot]
		t.mu.RUnlock()
		if !ok {
			return nil, errReloadNeeded
		}
		return t.FindBy(nk)
	}
	return t.strategy.ClientForSlot(t.view(), slot)
}

// Primaries returns one client per primary node.
func (t *Topology) Primaries() []SingleNodeClient { return t.view().primaryClients() }

// Replicas returns one client per replica node.
func (t *Topology) Replicas() []SingleNodeClient { return t.view().replicaClients() }

// All returns one client per known node (primaries and replicas).
func (t *Topology) All() []SingleNodeClient {
	seen := make(map[NodeKey]bool)
	var keys []NodeKey
	for nk := range t.clients {
		if !seen[nk] {
			seen[nk] = true
			keys = append(keys, nk)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	out := make([]SingleNodeClient, 0, len(keys))
	for _, nk := range keys {
		out = append(out, t.clients[nk])
	}
	return out
}

// ReadServingClients returns one client per shard: a replica when the
// shard has one, the primary otherwise. This is the "read-serving set"
// spec.md §6 uses for KEYS/DBSIZE-style AllReplicas fan-out, distinct
// from Replicas (which omits shards with no replica entirely).
func (t *Topology) ReadServingClients() []SingleNodeClient {
	view := t.view()
	primaries := view.allPrimaryKeys()
	out := make([]SingleNodeClient, 0, len(primaries))
	for _, p := range primaries {
		replicas := view.replicasOf(p)
		nk := p
		if len(replicas) > 0 {
			nk = replicas[randIntn(len(replicas))]
		}
		if c, err := view.clientFor(nk); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// ClientsForScanning returns one client per shard, suitable for cross-
// shard SCAN coordination.
func (t *Topology) ClientsForScanning() []SingleNodeClient {
	if !t.replicaEnabled || len(t.replicas) == 0 {
		return t.view().primaryClients()
	}
	return t.strategy.ClientsForScanning(t.view())
}

// UpdateSlot sets the primary owner of slot to nk, per a MOVED
// redirection. If nk is not a known client, it returns
// errReloadNeeded so the caller performs a full refresh first.
func (t *Topology) UpdateSlot(slot Slot, nk NodeKey) error {
	if _, ok := t.clients[nk]; !ok {
		return errReloadNeeded
	}
	t.mu.Lock()
	t.slotMap[slot] = nk
	t.mu.Unlock()
	return nil
}

// FindBy returns the client for nk, or errReloadNeeded if nk is
// unknown to this Topology.
func (t *Topology) FindBy(nk NodeKey) (SingleNodeClient, error) {
	c, ok := t.clients[nk]
	if !ok {
		return nil, errReloadNeeded
	}
	return c, nil
}

// Sample returns an arbitrary primary's client, used when no key can
// be derived for a command.
func (t *Topology) Sample() (SingleNodeClient, error) {
	nk, ok := t.view().anyPrimary()
	if !ok {
		return nil, errReloadNeeded
	}
	return t.FindBy(nk)
}

// Close closes every underlying client exactly once. It is idempotent.
func (t *Topology) Close() error {
	var firstErr error
	t.closeOnce.Do(func() {
		for _, c := range t.clients {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// NodeKeys returns every NodeKey known to this Topology, sorted.
func (t *Topology) NodeKeys() []NodeKey {
	keys := make([]NodeKey, 0, len(t.clients))
	for nk := range t.clients {
		keys = append(keys, nk)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

package cluster

import (
	"math/rand"
	"sync"
	"time"
)

// ReplicaSelectionStrategy picks which client answers a read-only
// request for a given slot, and exposes the other node-set views the
// Topology needs. Implementations must be safe for concurrent use.
type ReplicaSelectionStrategy interface {
	// ClientForSlot returns the client to use for slot: a replica
	// chosen per the strategy's policy, or the primary's client if the
	// slot has no replicas.
	ClientForSlot(topo *topologyView, slot Slot) (SingleNodeClient, error)
	// PrimaryClients returns one client per primary.
	PrimaryClients(topo *topologyView) []SingleNodeClient
	// ReplicaClients returns one client per replica.
	ReplicaClients(topo *topologyView) []SingleNodeClient
	// ClientsForScanning returns one client per shard: a replica
	// when ReplicaEnabled favors reads there, the primary otherwise.
	ClientsForScanning(topo *topologyView) []SingleNodeClient
	// AnyPrimaryNodeKey returns an arbitrary primary's NodeKey.
	AnyPrimaryNodeKey(topo *topologyView) (NodeKey, bool)
	// AnyReplicaNodeKey returns an arbitrary replica's NodeKey for
	// primary's shard, or false if it has none.
	AnyReplicaNodeKey(topo *topologyView, primary NodeKey) (NodeKey, bool)
}

// rnd is a process-wide, mutex-guarded source, since *rand.Rand is
// not safe for concurrent use (the teacher guards its own package
// level rnd the same way in hash.go's sibling cluster.go).
var rnd = struct {
	sync.Mutex
	*rand.Rand
}{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}

func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	rnd.Lock()
	defer rnd.Unlock()
	return rnd.Intn(n)
}

// randomStrategy implements AffinityRandom.
type randomStrategy struct{}

func (randomStrategy) ClientForSlot(topo *topologyView, slot Slot) (SingleNodeClient, error) {
	primary, ok := topo.primaryFor(slot)
	if !ok {
		return nil, errReloadNeeded
	}
	replicas := topo.replicasOf(primary)
	if len(replicas) == 0 {
		return topo.clientFor(primary)
	}
	return topo.clientFor(replicas[randIntn(len(replicas))])
}

func (randomStrategy) PrimaryClients(topo *topologyView) []SingleNodeClient {
	return topo.primaryClients()
}

func (randomStrategy) ReplicaClients(topo *topologyView) []SingleNodeClient {
	return topo.replicaClients()
}

func (s randomStrategy) ClientsForScanning(topo *topologyView) []SingleNodeClient {
	return scanClientsPreferReplica(topo, s)
}

func (randomStrategy) AnyPrimaryNodeKey(topo *topologyView) (NodeKey, bool) {
	return topo.anyPrimary()
}

func (randomStrategy) AnyReplicaNodeKey(topo *topologyView, primary NodeKey) (NodeKey, bool) {
	replicas := topo.replicasOf(primary)
	if len(replicas) == 0 {
		return NodeKey{}, false
	}
	return replicas[randIntn(len(replicas))], true
}

// randomWithPrimaryStrategy implements AffinityRandomWithPrimary.
type randomWithPrimaryStrategy struct{}

func (randomWithPrimaryStrategy) ClientForSlot(topo *topologyView, slot Slot) (SingleNodeClient, error) {
	primary, ok := topo.primaryFor(slot)
	if !ok {
		return nil, errReloadNeeded
	}
	candidates := append([]NodeKey{primary}, topo.replicasOf(primary)...)
	return topo.clientFor(candidates[randIntn(len(candidates))])
}

func (randomWithPrimaryStrategy) PrimaryClients(topo *topologyView) []SingleNodeClient {
	return topo.primaryClients()
}

func (randomWithPrimaryStrategy) ReplicaClients(topo *topologyView) []SingleNodeClient {
	return topo.replicaClients()
}

func (s randomWithPrimaryStrategy) ClientsForScanning(topo *topologyView) []SingleNodeClient {
	return scanClientsPreferReplica(topo, s)
}

func (randomWithPrimaryStrategy) AnyPrimaryNodeKey(topo *topologyView) (NodeKey, bool) {
	return topo.anyPrimary()
}

func (randomWithPrimaryStrategy) AnyReplicaNodeKey(topo *topologyView, primary NodeKey) (NodeKey, bool) {
	replicas := topo.replicasOf(primary)
	if len(replicas) == 0 {
		return NodeKey{}, false
	}
	return replicas[randIntn(len(replicas))], true
}

// latencyStrategy implements AffinityLatency: it picks the slot's
// replica with the lowest measured round-trip time, choosing at random
// among replicas tied for the lowest. There is no background probing.
// Probe cadence and eviction are open questions per spec.md §9; this
// implementation probes lazily (on first use of a never-seen replica)
// and every probeInterval afterwards, keeping only the latest sample
// per replica (no history, no eviction beyond overwrite).
type latencyStrategy struct {
	probeInterval time.Duration

	mu      sync.Mutex
	samples map[NodeKey]latencySample
}

type latencySample struct {
	rtt      time.Duration
	measured time.Time
}

// newLatencyStrategy builds a latency-based strategy probing each
// replica with PING at most once per probeInterval (default 30s).
func newLatencyStrategy(probeInterval time.Duration) *latencyStrategy {
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	return &latencyStrategy{probeInterval: probeInterval, samples: make(map[NodeKey]latencySample)}
}

func (s *latencyStrategy) probe(client SingleNodeClient) time.Duration {
	start := time.Now()
	_, err := client.Do("PING")
	if err != nil {
		return time.Hour // effectively deprioritized
	}
	return time.Since(start)
}

func (s *latencyStrategy) rttFor(nk NodeKey, client SingleNodeClient) time.Duration {
	s.mu.Lock()
	sample, ok := s.samples[nk]
	stale := !ok || time.Since(sample.measured) > s.probeInterval
	s.mu.Unlock()

	if stale {
		rtt := s.probe(client)
		s.mu.Lock()
		s.samples[nk] = latencySample{rtt: rtt, measured: time.Now()}
		s.mu.Unlock()
		return rtt
	}
	return sample.rtt
}

func (s *latencyStrategy) ClientForSlot(topo *topologyView, slot Slot) (SingleNodeClient, error) {
	primary, ok := topo.primaryFor(slot)
	if !ok {
		return nil, errReloadNeeded
	}
	replicas := topo.replicasOf(primary)
	if len(replicas) == 0 {
		return topo.clientFor(primary)
	}

	var best []NodeKey
	var bestRTT time.Duration
	for _, nk := range replicas {
		c, err := topo.clientFor(nk)
		if err != nil {
			continue
		}
		rtt := s.rttFor(nk, c)
		if len(best) == 0 || rtt < bestRTT {
			best, bestRTT = []NodeKey{nk}, rtt
		} else if rtt == bestRTT {
			best = append(best, nk)
		}
	}
	if len(best) == 0 {
		return topo.clientFor(primary)
	}
	return topo.clientFor(best[randIntn(len(best))])
}

func (s *latencyStrategy) PrimaryClients(topo *topologyView) []SingleNodeClient {
	return topo.primaryClients()
}

func (s *latencyStrategy) ReplicaClients(topo *topologyView) []SingleNodeClient {
	return topo.replicaClients()
}

func (s *latencyStrategy) ClientsForScanning(topo *topologyView) []SingleNodeClient {
	return scanClientsPreferReplica(topo, s)
}

func (s *latencyStrategy) AnyPrimaryNodeKey(topo *topologyView) (NodeKey, bool) {
	return topo.anyPrimary()
}

func (s *latencyStrategy) AnyReplicaNodeKey(topo *topologyView, primary NodeKey) (NodeKey, bool) {
	replicas := topo.replicasOf(primary)
	if len(replicas) == 0 {
		return NodeKey{}, false
	}
	return replicas[randIntn(len(replicas))], true
}

// scanClientsPreferReplica picks one client per shard for scanning: a
// replica chosen via s.AnyReplicaNodeKey when ReplicaEnabled found one,
// the primary otherwise. Shared by all three strategies since scan
// target selection follows the same per-shard fallback regardless of
// affinity policy.
func scanClientsPreferReplica(topo *topologyView, s ReplicaSelectionStrategy) []SingleNodeClient {
	primaries := topo.allPrimaryKeys()
	clients := make([]SingleNodeClient, 0, len(primaries))
	for _, p := range primaries {
		if nk, ok := s.AnyReplicaNodeKey(topo, p); ok {
			if c, err := topo.clientFor(nk); err == nil {
				clients = append(clients, c)
				continue
			}
		}
		if c, err := topo.clientFor(p); err == nil {
			clients = append(clients, c)
		}
	}
	return clients
}

// newReplicaStrategy builds the configured strategy.
func newReplicaStrategy(affinity ReplicaAffinity) ReplicaSelectionStrategy {
	switch affinity {
	case AffinityRandomWithPrimary:
		return randomWithPrimaryStrategy{}
	case AffinityLatency:
		return newLatencyStrategy(0)
	default:
		return randomStrategy{}
	}
}

package cluster

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
)

// defaultRetryBudget bounds the number of MOVED/ASK hops try_send
// will follow for a single logical call before giving up, preventing
// retry storms during resharding per spec.md §4.5.
const defaultRetryBudget = 3

// Router is the cluster client facade: it classifies every command,
// dispatches it to the right node(s), aggregates fan-out replies, and
// follows MOVED/ASK redirections. It corresponds to the teacher's
// Cluster type, generalized from a single-node-at-a-time redigo
// wrapper to the full routing/fan-out/scan surface spec.md describes.
type Router struct {
	cfg   *ClusterConfig
	table CommandTable

	mu         sync.RWMutex // guards topo and refreshing
	topo       *Topology
	refreshing bool
	closed     bool

	newClient func(NodeKey) (SingleNodeClient, error)
}

// New builds a Router from cfg, performing the initial topology
// discovery against cfg's seed list.
func New(cfg *ClusterConfig) (*Router, error) {
	r := &Router{cfg: cfg}
	r.newClient = r.defaultNewClient

	topo, err := LoadTopology(cfg, r.newClient)
	if err != nil {
		return nil, err
	}
	r.topo = topo
	return r, nil
}

func (r *Router) defaultNewClient(nk NodeKey) (SingleNodeClient, error) {
	createPool := r.cfg.CreatePool
	if createPool == nil {
		createPool = r.defaultCreatePool
	}
	ep := Endpoint{Host: nk.Host, Port: nk.Port}
	opts := r.cfg.NodeOptions.DialOptions(ep)
	return newPoolNodeClient(nk, createPool, opts)
}

func (r *Router) defaultCreatePool(address string, options ...redis.DialOption) (*redis.Pool, error) {
	maxIdle := r.cfg.NodeOptions.MaxIdle
	if maxIdle == 0 {
		maxIdle = 5
	}
	maxActive := r.cfg.NodeOptions.MaxActive
	if maxActive == 0 {
		maxActive = 50
	}
	idleTimeout := r.cfg.NodeOptions.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}
	return &redis.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		IdleTimeout: idleTimeout,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address, options...)
		},
	}, nil
}

func (r *Router) currentTopology() (*Topology, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errClosed
	}
	return r.topo, nil
}

var errClosed = &CommandError{Message: "redisc: closed"}

// Close closes the Router's current Topology, releasing every
// underlying client. Calling it again has no further effect and
// returns an error.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	r.closed = true
	return r.topo.Close()
}

// Connected reports whether the Router has a usable Topology.
func (r *Router) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && r.topo != nil
}

// ID returns the concatenation of every known node's identifier,
// sorted, as a stable fingerprint of the current topology.
func (r *Router) ID() string {
	topo, err := r.currentTopology()
	if err != nil {
		return ""
	}
	keys := topo.NodeKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// Refresh rebuilds the Router's Topology from scratch against cfg's
// (possibly updated) seed list, swapping it in atomically. It is safe
// to call concurrently with Call; in-flight calls finish against the
// Topology snapshot they already hold. Refreshes are serialized: a
// refresh already in progress causes this call to wait for it to
// finish and then run its own discovery, mirroring the teacher's non-reentrant
// c.refreshing flag in cluster.go.
func (r *Router) Refresh() error {
	return r.refresh(NodeKey{})
}

func (r *Router) refresh(hint NodeKey) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errClosed
	}
	for r.refreshing {
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return errClosed
		}
	}
	r.refreshing = true
	oldTopo := r.topo
	r.mu.Unlock()

	if !hint.IsZero() {
		r.cfg.AddNode(hint)
	}

	newTopo, err := LoadTopology(r.cfg, r.newClient)

	r.mu.Lock()
	r.refreshing = false
	if err == nil {
		r.topo = newTopo
	}
	r.mu.Unlock()

	if err == nil && oldTopo != nil {
		oldTopo.Close()
	}
	return err
}

// callOpts controls retry and timeout behavior for a single logical
// call.
type callOpts struct {
	retryBudget int
	timeout     time.Duration
	hasTimeout  bool
}

// Call dispatches a command, classifying it per the CommandTable and
// following MOVED/ASK redirections up to the default retry budget.
func (r *Router) Call(args ...interface{}) (interface{}, error) {
	return r.call(args, callOpts{retryBudget: defaultRetryBudget})
}

// CallOnce behaves like Call but disables the automatic MOVED/ASK
// retry loop: any redirection is surfaced to the caller unchanged.
func (r *Router) CallOnce(args ...interface{}) (interface{}, error) {
	return r.call(args, callOpts{retryBudget: 0})
}

// BlockingCall behaves like Call, but the single-node client applies
// timeout to the underlying call (for BLPOP/BRPOP/WAIT-style
// commands).
func (r *Router) BlockingCall(timeout time.Duration, args ...interface{}) (interface{}, error) {
	return r.call(args, callOpts{retryBudget: defaultRetryBudget, timeout: timeout, hasTimeout: true})
}

func (r *Router) call(rawArgs []interface{}, opts callOpts) (interface{}, error) {
	if len(rawArgs) == 0 {
		return nil, &CommandError{Message: "redisc: empty command"}
	}
	strArgs := toStringArgs(rawArgs)

	spec, _ := r.table.Lookup(strArgs)
	name := strings.ToLower(strArgs[0])

	switch spec.class {
	case Rejected:
		return nil, &OrchestrationCommandNotSupported{Command: strings.ToUpper(strings.Join(strArgs[:min(2, len(strArgs))], " "))}
	case Ambiguous:
		return nil, &AmbiguousNodeError{Command: strings.ToUpper(name)}
	case ScanClass:
		return nil, &CommandError{Message: "redisc: use Scan/Sscan/Hscan/Zscan for SCAN-family commands"}
	case AllNodes, AllPrimaries, AllReplicas:
		return r.dispatchFanOut(spec, rawArgs, opts)
	default:
		return r.dispatchSingle(strArgs, rawArgs, spec, opts)
	}
}

func (r *Router) dispatchFanOut(spec commandSpec, rawArgs []interface{}, opts callOpts) (interface{}, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return nil, err
	}

	var clients []SingleNodeClient
	switch spec.class {
	case AllNodes:
		clients = topo.All()
	case AllPrimaries:
		clients = topo.Primaries()
	case AllReplicas:
		clients = topo.ReadServingClients()
	}

	return fanOut(clients, rawArgs, r.cfg.MaxFanoutWorkers, spec.agg)
}

func (r *Router) dispatchSingle(strArgs []string, rawArgs []interface{}, spec commandSpec, opts callOpts) (interface{}, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return nil, err
	}

	key := r.table.ExtractFirstKey(strArgs)
	needPrimary := r.table.ShouldSendToPrimary(strArgs, r.cfg.ReplicaEnabled)

	var client SingleNodeClient
	if key == "" {
		client, err = topo.Sample()
	} else {
		slot := SlotFor(key)
		client, err = topo.ClientForSlot(slot, needPrimary)
	}
	if IsReloadNeeded(err) {
		if rerr := r.refresh(NodeKey{}); rerr != nil {
			return nil, rerr
		}
		topo, err = r.currentTopology()
		if err != nil {
			return nil, err
		}
		if key == "" {
			client, err = topo.Sample()
		} else {
			client, err = topo.ClientForSlot(SlotFor(key), needPrimary)
		}
	}
	if err != nil {
		return nil, err
	}

	return r.trySend(client, rawArgs, opts)
}

// trySend invokes args on client, following MOVED/ASK redirections up
// to opts.retryBudget hops (spec.md §4.5). It returns the server's
// reply, or the final error once the budget is exhausted or the
// failure isn't a redirection.
func (r *Router) trySend(client SingleNodeClient, rawArgs []interface{}, opts callOpts) (interface{}, error) {
	cmd, _ := rawArgs[0].(string)
	cmdArgs := rawArgs[1:]

	budget := opts.retryBudget
	for {
		reply, err := r.invoke(client, cmd, cmdArgs, opts)
		if err == nil {
			return reply, nil
		}

		if redir := parseRedir(err); redir != nil {
			if budget <= 0 {
				return nil, err
			}
			budget--

			switch redir.Kind {
			case redirMoved:
				next, uerr := r.resolveAfterMoved(redir)
				if uerr != nil {
					return nil, uerr
				}
				client = next
				continue

			case redirAsk:
				next, aerr := r.resolveForAsk(redir)
				if aerr != nil {
					return nil, aerr
				}
				if _, askErr := next.Do("ASKING"); askErr != nil {
					return nil, askErr
				}
				client = next
				continue
			}
		}

		if isConnError(err) {
			node := client.Addr()
			if rerr := r.refresh(NodeKey{}); rerr != nil && r.cfg.Logger != nil {
				r.cfg.Logger("refresh after connection error failed: %v", rerr)
			}
			if topo, terr := r.currentTopology(); terr == nil {
				if _, ferr := topo.FindBy(node); IsReloadNeeded(ferr) {
					return nil, &NodeMightBeDown{Node: node, Cause: err}
				}
			}
			return nil, err
		}

		return nil, err
	}
}

func (r *Router) resolveAfterMoved(redir *redirError) (SingleNodeClient, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return nil, err
	}

	if uerr := topo.UpdateSlot(redir.Slot, redir.Node); IsReloadNeeded(uerr) {
		if rerr := r.refresh(redir.Node); rerr != nil {
			return nil, rerr
		}
		topo, err = r.currentTopology()
		if err != nil {
			return nil, err
		}
		if uerr2 := topo.UpdateSlot(redir.Slot, redir.Node); uerr2 != nil {
			return nil, uerr2
		}
	}

	return topo.FindBy(redir.Node)
}

func (r *Router) resolveForAsk(redir *redirError) (SingleNodeClient, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return nil, err
	}
	client, ferr := topo.FindBy(redir.Node)
	if IsReloadNeeded(ferr) {
		if rerr := r.refresh(redir.Node); rerr != nil {
			return nil, rerr
		}
		topo, err = r.currentTopology()
		if err != nil {
			return nil, err
		}
		return topo.FindBy(redir.Node)
	}
	return client, ferr
}

func (r *Router) invoke(client SingleNodeClient, cmd string, args []interface{}, opts callOpts) (interface{}, error) {
	if opts.hasTimeout {
		return client.DoWithTimeout(opts.timeout, cmd, args...)
	}
	return client.Do(cmd, args...)
}

// isConnError reports whether err looks like a transport-level
// failure rather than a server-reported command error.
func isConnError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(redis.Error); ok {
		return false
	}
	return true
}

func toStringArgs(args []interface{}) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

package cluster

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
)

// ReplicaAffinity selects which built-in ReplicaSelectionStrategy a
// Router uses when ReplicaEnabled is set.
type ReplicaAffinity string

const (
	// AffinityRandom picks uniformly among a slot's replicas, falling
	// back to the primary when there are none.
	AffinityRandom ReplicaAffinity = "random"
	// AffinityRandomWithPrimary picks uniformly among a slot's
	// replicas and its primary.
	AffinityRandomWithPrimary ReplicaAffinity = "random_with_primary"
	// AffinityLatency picks the replica with the lowest measured
	// round-trip time.
	AffinityLatency ReplicaAffinity = "latency"
)

// Endpoint is the parsed form of a seed address, either given as a
// URL string or built directly.
type Endpoint struct {
	Host     string
	Port     uint16
	SSL      bool
	Username string
	Password string
	DB       int
}

// NodeKey returns the NodeKey this endpoint identifies.
func (e Endpoint) NodeKey() NodeKey {
	return NodeKey{Host: e.Host, Port: e.Port}
}

// ParseEndpointURL parses a "scheme://[user[:password]@]host[:port][/db]"
// endpoint URL. Supported schemes are "redis" (plain) and "rediss"
// (TLS); any other scheme is an InvalidClientConfigError. A missing
// host defaults to 127.0.0.1, a missing port to 6379. db is decimal;
// a non-integer db is an InvalidClientConfigError. Credentials are
// percent-decoded by net/url.
func ParseEndpointURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, &InvalidClientConfigError{Message: "malformed endpoint URL: " + err.Error()}
	}

	var ep Endpoint
	switch u.Scheme {
	case "redis":
		ep.SSL = false
	case "rediss":
		ep.SSL = true
	default:
		return Endpoint{}, &InvalidClientConfigError{Message: "unsupported scheme: " + u.Scheme}
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	ep.Host = host

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Endpoint{}, &InvalidClientConfigError{Message: "invalid port: " + portStr}
		}
		ep.Port = uint16(port)
	} else {
		ep.Port = 6379
	}

	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return Endpoint{}, &InvalidClientConfigError{Message: "invalid db: " + path}
		}
		ep.DB = db
	}

	return ep, nil
}

// EndpointFromObject builds an Endpoint from a generic map, as
// produced by decoding a JSON/YAML object form
// {host, port, ssl?, username?, password?, db?}. Unknown keys are
// ignored.
func EndpointFromObject(obj map[string]interface{}) (Endpoint, error) {
	var ep Endpoint
	if h, ok := obj["host"].(string); ok {
		ep.Host = h
	}
	if ep.Host == "" {
		ep.Host = "127.0.0.1"
	}

	switch p := obj["port"].(type) {
	case nil:
		ep.Port = 6379
	case float64:
		ep.Port = uint16(p)
	case int:
		ep.Port = uint16(p)
	case string:
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Endpoint{}, &InvalidClientConfigError{Message: "invalid port: " + p}
		}
		ep.Port = uint16(port)
	default:
		return Endpoint{}, &InvalidClientConfigError{Message: "invalid port type"}
	}

	if ssl, ok := obj["ssl"].(bool); ok {
		ep.SSL = ssl
	}
	if u, ok := obj["username"].(string); ok {
		ep.Username = u
	}
	if p, ok := obj["password"].(string); ok {
		ep.Password = p
	}
	if db, ok := obj["db"].(float64); ok {
		ep.DB = int(db)
	}

	return ep, nil
}

// NodeOptions are the per-node connection options applied to every
// client the Topology creates, mirroring the teacher's
// Cluster.DialOptions.
type NodeOptions struct {
	TLS             bool
	Username        string
	Password        string
	DB              int
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxIdle         int
	MaxActive       int
	IdleTimeout     time.Duration
}

// DialOptions builds redigo dial options from o, merged with any
// endpoint-specific credentials.
func (o NodeOptions) DialOptions(ep Endpoint) []redis.DialOption {
	opts := []redis.DialOption{}
	if o.ConnectTimeout > 0 {
		opts = append(opts, redis.DialConnectTimeout(o.ConnectTimeout))
	}
	if o.ReadTimeout > 0 {
		opts = append(opts, redis.DialReadTimeout(o.ReadTimeout))
	}
	if o.WriteTimeout > 0 {
		opts = append(opts, redis.DialWriteTimeout(o.WriteTimeout))
	}
	if o.TLS || ep.SSL {
		opts = append(opts, redis.DialUseTLS(true))
	}

	user := o.Username
	if ep.Username != "" {
		user = ep.Username
	}
	pass := o.Password
	if ep.Password != "" {
		pass = ep.Password
	}
	if user != "" {
		opts = append(opts, redis.DialUsername(user))
	}
	if pass != "" {
		opts = append(opts, redis.DialPassword(pass))
	}

	db := o.DB
	if ep.DB != 0 {
		db = ep.DB
	}
	if db != 0 {
		opts = append(opts, redis.DialDatabase(db))
	}

	return opts
}

// ClusterConfig is the immutable-after-construction configuration for
// a Router, except for the seed list, which Refresh mutates under
// mu as discovery succeeds (spec.md's "cyclic configuration/topology
// reference" design note: Config owns its mutable seed list behind a
// mutex; the Router re-reads it functionally on every refresh).
type ClusterConfig struct {
	// ReplicaEnabled allows read-only commands to be served by
	// replicas.
	ReplicaEnabled bool
	// ReplicaAffinity selects the replica-selection strategy.
	ReplicaAffinity ReplicaAffinity
	// FixedHostname, if set, overrides every discovered node's host
	// while preserving its port; used for SNI/proxy scenarios.
	FixedHostname string
	// NodeOptions are applied to every node's client.
	NodeOptions NodeOptions
	// SlowCommandTimeout bounds the CLUSTER NODES metadata call made
	// during discovery and refresh.
	SlowCommandTimeout time.Duration
	// CreatePool builds the pool used for each discovered node. If
	// nil, a default pool factory is used.
	CreatePool func(address string, options ...redis.DialOption) (*redis.Pool, error)
	// ReconnectUsingOriginalSeeds, if true, makes Refresh re-discover
	// from the originally configured seeds rather than the seeds
	// accumulated from MOVED hints.
	ReconnectUsingOriginalSeeds bool
	// MaxFanoutWorkers bounds fan-out concurrency; 0 means use
	// DefaultMaxFanoutWorkers.
	MaxFanoutWorkers int
	// Logger receives warnings the router can't surface to the
	// caller (e.g. a failed refresh during redirection recovery).
	Logger Logger

	mu           sync.Mutex
	originalSeed []Endpoint
	seeds        []Endpoint
}

// DefaultMaxFanoutWorkers is the default bound on concurrent fan-out
// requests, matching REDIS_CLIENT_MAX_THREADS's documented default.
const DefaultMaxFanoutWorkers = 5

// NewClusterConfig builds a ClusterConfig from a list of seed endpoint
// URLs or "host:port" strings. An empty list is an
// InvalidClientConfigError.
func NewClusterConfig(seeds []string) (*ClusterConfig, error) {
	if len(seeds) == 0 {
		return nil, &InvalidClientConfigError{Message: "`nodes` option is empty"}
	}

	eps := make([]Endpoint, 0, len(seeds))
	for _, s := range seeds {
		ep, err := parseSeed(s)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}

	cfg := &ClusterConfig{
		ReplicaAffinity: AffinityRandom,
		originalSeed:    append([]Endpoint(nil), eps...),
		seeds:           eps,
	}
	return cfg, nil
}

func parseSeed(s string) (Endpoint, error) {
	if strings.Contains(s, "://") {
		return ParseEndpointURL(s)
	}
	nk, err := ParseNodeKey(s)
	if err != nil {
		return Endpoint{}, &InvalidClientConfigError{Message: err.Error()}
	}
	return Endpoint{Host: nk.Host, Port: nk.Port}, nil
}

// Seeds returns a snapshot of the current seed list.
func (c *ClusterConfig) Seeds() []Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Endpoint(nil), c.seeds...)
}

// AddNode adds nk to the seed list if it is not already present. Like
// the teacher's best-effort node-list updates, this is a no-op (not an
// error) when it collides with a concurrent refresh; the caller should
// rely on the next refresh to re-read the authoritative topology.
func (c *ClusterConfig) AddNode(nk NodeKey) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	for _, ep := range c.seeds {
		if ep.NodeKey() == nk {
			return
		}
	}
	c.seeds = append(c.seeds, Endpoint{Host: nk.Host, Port: nk.Port})
}

// UpdateNode replaces the seed list wholesale, used after a successful
// discovery to remember the live node set. Best-effort under
// contention, per spec.md's open question on update_node.
func (c *ClusterConfig) UpdateNode(nks []NodeKey) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	eps := make([]Endpoint, 0, len(nks))
	for _, nk := range nks {
		eps = append(eps, Endpoint{Host: nk.Host, Port: nk.Port})
	}
	c.seeds = eps
}

// RefreshSeeds returns the seed list to use for the next discovery:
// the original seeds if ReconnectUsingOriginalSeeds is set, the
// current (possibly discovery-updated) seeds otherwise.
func (c *ClusterConfig) RefreshSeeds() []Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReconnectUsingOriginalSeeds {
		return append([]Endpoint(nil), c.originalSeed...)
	}
	return append([]Endpoint(nil), c.seeds...)
}

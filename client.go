package cluster

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

// SingleNodeClient is the capability the router needs from a
// connection (or pool) to a single redis node: synchronous
// request/response, an optional per-call timeout, and lifecycle
// management. The RESP wire protocol and connection pooling
// themselves are out of scope for this package; poolNodeClient below
// adapts github.com/gomodule/redigo/redis.Pool to this interface, the
// same way the teacher's Cluster.getConnForAddr does.
type SingleNodeClient interface {
	// Do sends cmd with args and returns its reply.
	Do(cmd string, args ...interface{}) (interface{}, error)
	// DoWithTimeout behaves like Do but bounds the call with timeout,
	// for blocking commands such as BLPOP.
	DoWithTimeout(timeout time.Duration, cmd string, args ...interface{}) (interface{}, error)
	// Close releases the client's resources. Close is idempotent.
	Close() error
	// Addr is the node's key, for identification in error messages
	// and Router.ID.
	Addr() NodeKey
}

// poolNodeClient adapts a *redis.Pool to SingleNodeClient, following
// the teacher's pattern of a redis.Pool per cluster node (see
// Cluster.CreatePool / Cluster.getConnForAddr).
type poolNodeClient struct {
	addr NodeKey
	pool *redis.Pool
}

// newPoolNodeClient builds a SingleNodeClient backed by a fresh
// redis.Pool for addr, using createPool (typically ClusterConfig's
// pool factory) and opts (dial options derived from the node's
// per-node options: TLS, credentials, db, timeouts).
func newPoolNodeClient(addr NodeKey, createPool func(address string, options ...redis.DialOption) (*redis.Pool, error), opts []redis.DialOption) (SingleNodeClient, error) {
	pool, err := createPool(addr.String(), opts...)
	if err != nil {
		return nil, err
	}
	return &poolNodeClient{addr: addr, pool: pool}, nil
}

func (c *poolNodeClient) Addr() NodeKey { return c.addr }

func (c *poolNodeClient) Do(cmd string, args ...interface{}) (interface{}, error) {
	conn := c.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

func (c *poolNodeClient) DoWithTimeout(timeout time.Duration, cmd string, args ...interface{}) (interface{}, error) {
	conn := c.pool.Get()
	defer conn.Close()
	if dt, ok := conn.(redis.ConnWithTimeout); ok {
		return dt.DoWithTimeout(timeout, cmd, args...)
	}
	return conn.Do(cmd, args...)
}

func (c *poolNodeClient) Close() error {
	return c.pool.Close()
}

package cluster

import (
	"errors"

	"github.com/gomodule/redigo/redis"
)

// AsConn adapts r into a redis.Conn so code written against redigo's
// connection interface can use the Router transparently, the way the
// teacher's RetryConn adapted a single *Conn for redirection-following
// callers. Only Do, Close and Err are supported: Send/Receive/Flush
// require a single persistent connection and have no meaning across a
// Router's many pooled, per-node connections.
func AsConn(r *Router) redis.Conn {
	return &routerConn{r: r}
}

type routerConn struct {
	r   *Router
	err error
}

func (c *routerConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	fullArgs := make([]interface{}, 0, len(args)+1)
	fullArgs = append(fullArgs, cmd)
	fullArgs = append(fullArgs, args...)
	reply, err := c.r.Call(fullArgs...)
	if err != nil {
		c.err = err
	}
	return reply, err
}

func (c *routerConn) Err() error {
	return c.err
}

func (c *routerConn) Close() error {
	return nil
}

func (c *routerConn) Send(cmd string, args ...interface{}) error {
	return errors.New("redisc: unsupported call to Send")
}

func (c *routerConn) Receive() (interface{}, error) {
	return nil, errors.New("redisc: unsupported call to Receive")
}

func (c *routerConn) Flush() error {
	return errors.New("redisc: unsupported call to Flush")
}

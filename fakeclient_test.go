package cluster

import (
	"fmt"
	"sync"
	"time"
)

// fakeClient is an in-memory SingleNodeClient used by tests in place
// of a real redigo pool. It lets tests script replies per command and
// record calls for assertions, the way the teacher's redistest mock
// server scripts RESP replies for its integration tests.
type fakeClient struct {
	addr   NodeKey
	mu     sync.Mutex
	closed bool
	calls  []fakeCall

	// handler, if set, computes the reply for every Do/DoWithTimeout
	// call. It takes priority over reply/err below.
	handler func(cmd string, args ...interface{}) (interface{}, error)

	reply interface{}
	err   error
}

type fakeCall struct {
	cmd  string
	args []interface{}
}

func newFakeClient(addr NodeKey) *fakeClient {
	return &fakeClient{addr: addr}
}

func (c *fakeClient) Addr() NodeKey { return c.addr }

func (c *fakeClient) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("redisc: use of closed client %s", c.addr)
	}
	c.calls = append(c.calls, fakeCall{cmd: cmd, args: args})
	handler := c.handler
	reply, err := c.reply, c.err
	c.mu.Unlock()

	if handler != nil {
		return handler(cmd, args...)
	}
	return reply, err
}

func (c *fakeClient) DoWithTimeout(_ time.Duration, cmd string, args ...interface{}) (interface{}, error) {
	return c.Do(cmd, args...)
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeClient) lastCall() (fakeCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return fakeCall{}, false
	}
	return c.calls[len(c.calls)-1], true
}

// fakeClientSet is a registry of fakeClients keyed by address, used
// as the newClient factory passed to LoadTopology/Router in tests. The
// factory returns the registered client for an address until that
// client is closed; after that it registers and returns a fresh one,
// the way each production newClient call yields an independent pool.
type fakeClientSet struct {
	mu      sync.Mutex
	clients map[NodeKey]*fakeClient
}

func newFakeClientSet() *fakeClientSet {
	return &fakeClientSet{clients: make(map[NodeKey]*fakeClient)}
}

func (s *fakeClientSet) factory(nk NodeKey) (SingleNodeClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[nk]; ok {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			return c, nil
		}
	}
	c := newFakeClient(nk)
	s.clients[nk] = c
	return c, nil
}

func (s *fakeClientSet) get(nk NodeKey) *fakeClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[nk]
}

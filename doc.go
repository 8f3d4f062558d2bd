// Package cluster implements a redis cluster client on top of the
// redigo client package. It discovers cluster topology from a set of
// seed nodes, routes commands to the node owning the relevant hash
// slot, and transparently follows MOVED and ASK redirections.
// See http://redis.io/topics/cluster-spec for background.
//
// Router
//
// The Router type is the entry point. It classifies every command by
// name (and, for a handful of commands, by subcommand) and either sends
// it to the single node owning the command's key, fans it out to a set
// of nodes with a command-specific aggregation rule, or rejects it.
//
// A Router is built from a ClusterConfig with New, which performs the
// initial topology discovery against the configured seed nodes. The
// topology is kept up to date afterwards by the MOVED/ASK recovery
// loop in trySend, and can be forced with Refresh.
//
// Routing and redirections
//
// Single-key commands are routed using KeySlotConverter's CRC16-based
// hashing. When a node replies with a MOVED error, the router updates
// its slot map and retries against the new owner; ASK replies cause a
// one-shot ASKING+retry against the advertised node without touching
// the slot map. A connection error triggers a full topology refresh
// and is then surfaced to the caller.
//
// Scanning
//
// Scan stitches together the per-shard SCAN cursors into a single
// opaque cursor so that callers can iterate over the whole keyspace
// without tracking per-node state themselves.
package cluster

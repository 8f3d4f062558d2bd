package cluster

import "strings"

// RoutingClass classifies how a command must be dispatched by the
// Router.
type RoutingClass int

const (
	// Single routes the command to the one node owning the slot of
	// its first key (or an arbitrary primary if the command is
	// keyless).
	Single RoutingClass = iota
	// AllNodes fans the command out to every known node.
	AllNodes
	// AllPrimaries fans the command out to every primary node.
	AllPrimaries
	// AllReplicas fans the command out to the read-serving set
	// (replicas, falling back to primaries where a shard has none).
	AllReplicas
	// ScanClass is handled by the scan coordinator, not a plain
	// fan-out or single dispatch.
	ScanClass
	// SpecialSubcommand means the routing decision depends on the
	// command's subcommand (argument[1]); see subcommandTable.
	SpecialSubcommand
	// Rejected commands are never sent; they fail with
	// OrchestrationCommandNotSupported.
	Rejected
	// Ambiguous commands have no unambiguous target node outside of
	// a transactional wrapper; they fail with AmbiguousNodeError.
	Ambiguous
)

// AggregationRule names how a fan-out's per-node replies are combined
// into a single reply.
type AggregationRule int

const (
	// AggFirst takes the first reply (after a full fan-out), failing
	// on the first error encountered across any branch.
	AggFirst AggregationRule = iota
	// AggSum sums numeric replies.
	AggSum
	// AggConcatSort concatenates slice replies and sorts the result.
	AggConcatSort
	// AggFlatten concatenates slice replies without sorting.
	AggFlatten
	// AggFlattenUniqueSort concatenates, de-duplicates and sorts.
	AggFlattenUniqueSort
	// AggSortedList collects one integer reply per node (LASTSAVE)
	// into a list sorted in ascending order.
	AggSortedList
	// AggListPerNode returns one reply per node, unaggregated.
	AggListPerNode
	// AggMergeMapsSum merges map replies, summing values for keys
	// present in more than one reply (used by PUBSUB NUMSUB).
	AggMergeMapsSum
)

// commandSpec describes the routing policy for a single command name
// (or a command with no special subcommand handling). firstKeyIndex is
// the position of the command's first key in args[1:], or
// noKeyIndex for commands that take no key at all (as opposed to a
// key at position 0).
type commandSpec struct {
	firstKeyIndex int
	class         RoutingClass
	readOnly      bool
	agg           AggregationRule
}

// noKeyIndex marks a commandSpec as keyless: ExtractFirstKey returns
// "" for it unconditionally, regardless of how many arguments follow
// the command name (ECHO, INFO, CLUSTER INFO, ...).
const noKeyIndex = -1

// subKey identifies a (command, subcommand) pair for SpecialSubcommand
// dispatch.
type subKey struct {
	cmd, sub string
}

// CommandTable holds the static routing policy for every known redis
// command. Lookups are by lowercased command name.
type CommandTable struct{}

var defaultCommandTable = map[string]commandSpec{
	// keyed, single-node, read-write (the default shape)
	"set": {0, Single, false, AggFirst}, "setnx": {0, Single, false, AggFirst},
	"setex": {0, Single, false, AggFirst}, "psetex": {0, Single, false, AggFirst},
	"get": {0, Single, true, AggFirst}, "getset": {0, Single, false, AggFirst},
	"getdel": {0, Single, false, AggFirst}, "append": {0, Single, false, AggFirst},
	"strlen": {0, Single, true, AggFirst}, "incr": {0, Single, false, AggFirst},
	"decr": {0, Single, false, AggFirst}, "incrby": {0, Single, false, AggFirst},
	"decrby": {0, Single, false, AggFirst}, "incrbyfloat": {0, Single, false, AggFirst},
	"del": {0, Single, false, AggFirst}, "unlink": {0, Single, false, AggFirst},
	"exists": {0, Single, true, AggFirst}, "expire": {0, Single, false, AggFirst},
	"expireat": {0, Single, false, AggFirst}, "pexpire": {0, Single, false, AggFirst},
	"pexpireat": {0, Single, false, AggFirst}, "persist": {0, Single, false, AggFirst},
	"ttl": {0, Single, true, AggFirst}, "pttl": {0, Single, true, AggFirst},
	"type": {0, Single, true, AggFirst}, "dump": {0, Single, true, AggFirst},
	"restore": {0, Single, false, AggFirst}, "sort": {0, Single, false, AggFirst},
	"hset": {0, Single, false, AggFirst}, "hsetnx": {0, Single, false, AggFirst},
	"hget": {0, Single, true, AggFirst}, "hmget": {0, Single, true, AggFirst},
	"hmset": {0, Single, false, AggFirst}, "hdel": {0, Single, false, AggFirst},
	"hlen": {0, Single, true, AggFirst}, "hexists": {0, Single, true, AggFirst},
	"hincrby": {0, Single, false, AggFirst}, "hincrbyfloat": {0, Single, false, AggFirst},
	"hkeys": {0, Single, true, AggFirst}, "hvals": {0, Single, true, AggFirst},
	"hgetall": {0, Single, true, AggFirst}, "hscan": {0, Single, true, AggFirst},
	"hstrlen": {0, Single, true, AggFirst},
	"lpush": {0, Single, false, AggFirst}, "rpush": {0, Single, false, AggFirst},
	"lpushx": {0, Single, false, AggFirst}, "rpushx": {0, Single, false, AggFirst},
	"lpop": {0, Single, false, AggFirst}, "rpop": {0, Single, false, AggFirst},
	"llen": {0, Single, true, AggFirst}, "lindex": {0, Single, true, AggFirst},
	"linsert": {0, Single, false, AggFirst}, "lrange": {0, Single, true, AggFirst},
	"lrem": {0, Single, false, AggFirst}, "lset": {0, Single, false, AggFirst},
	"ltrim": {0, Single, false, AggFirst}, "blpop": {0, Single, false, AggFirst},
	"brpop": {0, Single, false, AggFirst},
	"sadd": {0, Single, false, AggFirst}, "srem": {0, Single, false, AggFirst},
	"scard": {0, Single, true, AggFirst}, "sismember": {0, Single, true, AggFirst},
	"smismember": {0, Single, true, AggFirst}, "smembers": {0, Single, true, AggFirst},
	"spop": {0, Single, false, AggFirst}, "srandmember": {0, Single, true, AggFirst},
	"sscan": {0, Single, true, AggFirst}, "sdiffstore": {0, Single, false, AggFirst},
	"sinterstore": {0, Single, false, AggFirst}, "sunionstore": {0, Single, false, AggFirst},
	"sinter": {0, Single, true, AggFirst}, "sunion": {0, Single, true, AggFirst},
	"sdiff": {0, Single, true, AggFirst}, "smove": {0, Single, false, AggFirst},
	"zadd": {0, Single, false, AggFirst}, "zrem": {0, Single, false, AggFirst},
	"zcard": {0, Single, true, AggFirst}, "zscore": {0, Single, true, AggFirst},
	"zrank": {0, Single, true, AggFirst}, "zrevrank": {0, Single, true, AggFirst},
	"zrange": {0, Single, true, AggFirst}, "zrevrange": {0, Single, true, AggFirst},
	"zrangebyscore": {0, Single, true, AggFirst}, "zrevrangebyscore": {0, Single, true, AggFirst},
	"zrangebylex": {0, Single, true, AggFirst}, "zrevrangebylex": {0, Single, true, AggFirst},
	"zlexcount": {0, Single, true, AggFirst}, "zcount": {0, Single, true, AggFirst},
	"zincrby": {0, Single, false, AggFirst}, "zscan": {0, Single, true, AggFirst},
	"zremrangebyrank": {0, Single, false, AggFirst}, "zremrangebyscore": {0, Single, false, AggFirst},
	"zremrangebylex": {0, Single, false, AggFirst},
	"zunionstore": {0, Single, false, AggFirst}, "zinterstore": {0, Single, false, AggFirst},
	"pfadd": {0, Single, false, AggFirst}, "pfcount": {0, Single, true, AggFirst},
	"pfmerge": {0, Single, false, AggFirst},
	"setbit": {0, Single, false, AggFirst}, "getbit": {0, Single, true, AggFirst},
	"bitcount": {0, Single, true, AggFirst}, "bitpos": {0, Single, true, AggFirst},
	"bitop": {1, Single, false, AggFirst}, "bitfield": {0, Single, false, AggFirst},
	"getrange": {0, Single, true, AggFirst}, "setrange": {0, Single, false, AggFirst},
	"object": {1, Single, true, AggFirst}, "touch": {0, Single, true, AggFirst},
	"copy": {0, Single, false, AggFirst}, "rename": {0, Single, false, AggFirst},
	"renamenx": {0, Single, false, AggFirst}, "rpoplpush": {0, Single, false, AggFirst},
	"brpoplpush": {0, Single, false, AggFirst}, "lmove": {0, Single, false, AggFirst},
	"geoadd": {0, Single, false, AggFirst}, "geopos": {0, Single, true, AggFirst},
	"geodist": {0, Single, true, AggFirst}, "geosearch": {0, Single, true, AggFirst},
	"eval": {2, Single, false, AggFirst}, "evalsha": {2, Single, false, AggFirst},
	"fcall": {2, Single, false, AggFirst}, "fcall_ro": {2, Single, true, AggFirst},
	"xadd": {0, Single, false, AggFirst}, "xlen": {0, Single, true, AggFirst},
	"xrange": {0, Single, true, AggFirst}, "xrevrange": {0, Single, true, AggFirst},
	"xread": {0, Single, true, AggFirst},

	// keyless: ping/echo/time/command/info go to an arbitrary primary,
	// dbsize/keys fan out to the read-serving set, scan is handled by
	// the scan coordinator
	"ping": {noKeyIndex, Single, true, AggFirst}, "echo": {noKeyIndex, Single, true, AggFirst},
	"time": {noKeyIndex, Single, true, AggFirst}, "command": {noKeyIndex, Single, true, AggFirst},
	"info": {noKeyIndex, Single, true, AggFirst}, "dbsize": {noKeyIndex, AllReplicas, true, AggSum},
	"keys": {noKeyIndex, AllReplicas, true, AggConcatSort},
	"scan": {noKeyIndex, ScanClass, true, AggFirst},

	// all-nodes fan-out: first reply, except lastsave (sorted list)
	// and role (one reply per node)
	"acl": {noKeyIndex, AllNodes, false, AggFirst}, "auth": {noKeyIndex, AllNodes, false, AggFirst},
	"bgrewriteaof": {noKeyIndex, AllNodes, false, AggFirst}, "bgsave": {noKeyIndex, AllNodes, false, AggFirst},
	"quit": {noKeyIndex, AllNodes, false, AggFirst}, "save": {noKeyIndex, AllNodes, false, AggFirst},
	"lastsave": {noKeyIndex, AllNodes, false, AggSortedList}, "role": {noKeyIndex, AllNodes, true, AggListPerNode},

	// all-primaries fan-out
	"flushall": {noKeyIndex, AllPrimaries, false, AggFirst}, "flushdb": {noKeyIndex, AllPrimaries, false, AggFirst},
	"wait": {noKeyIndex, AllPrimaries, false, AggSum},

	// rejected: cluster orchestration verbs with no nested dispatch
	"readonly": {noKeyIndex, Rejected, true, AggFirst}, "readwrite": {noKeyIndex, Rejected, false, AggFirst},
	"shutdown": {noKeyIndex, Rejected, false, AggFirst},

	// ambiguous: transaction verbs outside a transactional wrapper
	"multi": {noKeyIndex, Ambiguous, false, AggFirst}, "exec": {noKeyIndex, Ambiguous, false, AggFirst},
	"discard": {noKeyIndex, Ambiguous, false, AggFirst}, "unwatch": {noKeyIndex, Ambiguous, false, AggFirst},
	"watch": {0, Single, false, AggFirst},

	// special-subcommand dispatch: argument[1] decides routing
	"cluster": {noKeyIndex, SpecialSubcommand, true, AggFirst},
	"client":  {noKeyIndex, SpecialSubcommand, false, AggFirst},
	"memory":  {noKeyIndex, SpecialSubcommand, true, AggFirst},
	"script":  {noKeyIndex, SpecialSubcommand, false, AggFirst},
	"config":  {noKeyIndex, SpecialSubcommand, false, AggFirst},
	"pubsub":  {noKeyIndex, SpecialSubcommand, true, AggFirst},

	// pub/sub verbs that are not subcommand-shaped
	"publish":   {noKeyIndex, AllNodes, false, AggSum},
	"subscribe": {0, Single, true, AggFirst},
}

// subcommandTable resolves the routing policy for commands whose
// target depends on argument[1].
var subcommandTable = map[subKey]commandSpec{
	{"cluster", "saveconfig"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"cluster", "info"}:       {noKeyIndex, Single, true, AggFirst},
	{"cluster", "nodes"}:      {noKeyIndex, Single, true, AggFirst},
	{"cluster", "slots"}:      {noKeyIndex, Single, true, AggFirst},
	{"cluster", "shards"}:     {noKeyIndex, Single, true, AggFirst},
	{"cluster", "keyslot"}:    {noKeyIndex, Single, true, AggFirst},
	{"cluster", "countkeysinslot"}: {noKeyIndex, Single, true, AggFirst},
	{"cluster", "getkeysinslot"}:   {noKeyIndex, Single, true, AggFirst},
	{"cluster", "addslots"}:        {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "delslots"}:        {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "addslotsrange"}:   {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "delslotsrange"}:   {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "failover"}:        {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "forget"}:          {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "meet"}:            {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "replicate"}:       {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "reset"}:           {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "set-config-epoch"}: {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "setslot"}:         {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "bumpepoch"}:       {noKeyIndex, Rejected, false, AggFirst},
	{"cluster", "flushslots"}:      {noKeyIndex, Rejected, false, AggFirst},

	{"client", "list"}:    {noKeyIndex, AllNodes, false, AggFlatten},
	{"client", "pause"}:   {noKeyIndex, AllNodes, false, AggFirst},
	{"client", "reply"}:   {noKeyIndex, AllNodes, false, AggFirst},
	{"client", "setname"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"client", "getname"}: {noKeyIndex, Single, true, AggFirst},
	{"client", "id"}:      {noKeyIndex, Single, true, AggFirst},
	{"client", "no-evict"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"client", "unpause"}:  {noKeyIndex, AllNodes, false, AggFirst},

	{"memory", "stats"}: {noKeyIndex, AllNodes, true, AggListPerNode},
	{"memory", "purge"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"memory", "usage"}: {noKeyIndex, Single, true, AggFirst},
	{"memory", "doctor"}: {noKeyIndex, Single, true, AggFirst},

	{"script", "debug"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"script", "kill"}:  {noKeyIndex, AllNodes, false, AggFirst},
	{"script", "flush"}: {noKeyIndex, AllPrimaries, false, AggFirst},
	{"script", "load"}:  {noKeyIndex, AllPrimaries, false, AggFirst},
	{"script", "exists"}: {noKeyIndex, Single, true, AggFirst},

	{"config", "resetstat"}: {noKeyIndex, AllNodes, false, AggFirst},
	{"config", "rewrite"}:   {noKeyIndex, AllNodes, false, AggFirst},
	{"config", "set"}:       {noKeyIndex, AllNodes, false, AggFirst},
	{"config", "get"}:       {noKeyIndex, Single, true, AggFirst},

	{"pubsub", "channels"}: {noKeyIndex, AllNodes, true, AggFlattenUniqueSort},
	{"pubsub", "numsub"}:   {noKeyIndex, AllNodes, true, AggMergeMapsSum},
	{"pubsub", "numpat"}:   {noKeyIndex, AllNodes, true, AggSum},
}

// Lookup returns the routing spec for command, resolving nested
// dispatch for special-subcommand commands. args is the full command
// argument list, args[0] being the command name.
func (CommandTable) Lookup(args []string) (commandSpec, bool) {
	if len(args) == 0 {
		return commandSpec{}, false
	}
	name := strings.ToLower(args[0])
	spec, ok := defaultCommandTable[name]
	if !ok {
		return commandSpec{noKeyIndex, Single, false, AggFirst}, true
	}

	if spec.class == SpecialSubcommand {
		if len(args) < 2 {
			// no subcommand given: treat conservatively as a
			// single-node call to an arbitrary primary.
			return commandSpec{noKeyIndex, Single, false, AggFirst}, true
		}
		sub := strings.ToLower(args[1])
		if sspec, ok := subcommandTable[subKey{name, sub}]; ok {
			return sspec, true
		}
		// unknown subcommand: default to single-node, arbitrary
		// primary, matching "should work against any one node".
		return commandSpec{noKeyIndex, Single, false, AggFirst}, true
	}

	return spec, true
}

// ExtractFirstKey returns the slot-determining key for args, or "" if
// the command is keyless or unknown. firstKeyIndex is relative to
// args[1:]; args[0] is always the command name.
func (t CommandTable) ExtractFirstKey(args []string) string {
	spec, ok := t.Lookup(args)
	if !ok || spec.firstKeyIndex == noKeyIndex {
		return ""
	}
	idx := spec.firstKeyIndex + 1
	if idx <= 0 || idx >= len(args) {
		return ""
	}
	return args[idx]
}

// ShouldSendToPrimary reports whether args must be sent to a primary,
// either because the command is not read-only or because replica use
// is disabled in cfg.
func (t CommandTable) ShouldSendToPrimary(args []string, replicaEnabled bool) bool {
	spec, ok := t.Lookup(args)
	if !ok {
		return true
	}
	return !spec.readOnly || !replicaEnabled
}

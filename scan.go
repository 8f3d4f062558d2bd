package cluster

import (
	"strconv"
)

// maxScanningClients is the number of shards the global scan cursor
// can address: the low 8 bits of the cursor hold the client index,
// per spec.md §4.6. Implementations that need more shards must widen
// the index field and document the new limit; this one does not.
const maxScanningClients = 256

// decodeScanCursor splits a global cursor into its client index and
// the per-client raw cursor it encodes.
func decodeScanCursor(cursor uint64) (clientIndex int, rawCursor uint64) {
	return int(cursor & 0xff), cursor >> 8
}

// encodeScanCursor packs a client index and a per-client raw cursor
// into a single global cursor.
func encodeScanCursor(clientIndex int, rawCursor uint64) uint64 {
	return (rawCursor << 8) | uint64(clientIndex&0xff)
}

// ScanIterator walks a SCAN-family iteration across every shard of a
// Topology, using the global cursor encoding of spec.md §4.6: the
// iteration starts at client 0, visiting each shard until its local
// cursor returns to 0, then advancing to the next shard, terminating
// once the last shard is exhausted.
type ScanIterator struct {
	clients []SingleNodeClient
	args    []interface{}
	cmd     string

	cursor uint64
	done   bool
	buf    []interface{}
}

// newScanIterator starts a scan over clients using cmd, which must
// take the cursor as its first argument (SCAN), with args appended
// after the cursor argument on every call.
func newScanIterator(cmd string, clients []SingleNodeClient, args []interface{}) *ScanIterator {
	if len(clients) > maxScanningClients {
		clients = clients[:maxScanningClients]
	}
	return &ScanIterator{clients: clients, args: args, cmd: cmd}
}

// Next fetches the next batch of keys, returning ok=false once the
// iteration is exhausted (every shard returned a 0 cursor).
func (it *ScanIterator) Next() (keys []interface{}, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}

	clientIndex, raw := decodeScanCursor(it.cursor)
	if clientIndex >= len(it.clients) {
		it.done = true
		return nil, false, nil
	}

	client := it.clients[clientIndex]
	callArgs := append([]interface{}{raw}, it.args...)
	reply, err := client.Do(it.cmd, callArgs...)
	if err != nil {
		return nil, false, err
	}

	nextRaw, batch, err := parseScanReply(reply)
	if err != nil {
		return nil, false, err
	}

	if nextRaw == 0 {
		clientIndex++
	}
	if clientIndex >= len(it.clients) {
		it.cursor = 0
		it.done = true
	} else {
		it.cursor = encodeScanCursor(clientIndex, nextRaw)
	}

	return batch, true, nil
}

// Cursor returns the opaque string form of the iterator's current
// position, "0" once exhausted.
func (it *ScanIterator) Cursor() string {
	if it.done {
		return "0"
	}
	return strconv.FormatUint(it.cursor, 10)
}

// parseScanReply decodes a SCAN-family reply: a two-element array of
// (next cursor, key list).
func parseScanReply(reply interface{}) (uint64, []interface{}, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, nil, &CommandError{Message: "redisc: unexpected SCAN reply shape"}
	}

	var cursorBytes []byte
	switch v := arr[0].(type) {
	case []byte:
		cursorBytes = v
	case string:
		cursorBytes = []byte(v)
	default:
		return 0, nil, &CommandError{Message: "redisc: unexpected SCAN cursor type"}
	}

	next, err := strconv.ParseUint(string(cursorBytes), 10, 64)
	if err != nil {
		return 0, nil, &CommandError{Message: "redisc: invalid SCAN cursor: " + err.Error()}
	}

	keys, _ := arr[1].([]interface{})
	return next, keys, nil
}

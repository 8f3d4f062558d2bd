package cluster

import "strconv"

// Scan starts a cross-shard SCAN iteration using args (typically
// MATCH/COUNT/TYPE options) appended after each shard's local cursor.
// The returned ScanIterator's Next method fetches one batch at a time;
// see spec.md §4.6 for the cursor encoding.
func (r *Router) Scan(args ...interface{}) (*ScanIterator, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return nil, err
	}
	return newScanIterator("SCAN", topo.ClientsForScanning(), args), nil
}

// Sscan, Hscan and Zscan delegate to the single node owning key; their
// cursor semantics are the single-node SCAN-family cursor, unchanged.
func (r *Router) Sscan(key string, cursor uint64, args ...interface{}) (nextCursor uint64, items []interface{}, err error) {
	return r.singleNodeScan("SSCAN", key, cursor, args)
}

func (r *Router) Hscan(key string, cursor uint64, args ...interface{}) (nextCursor uint64, items []interface{}, err error) {
	return r.singleNodeScan("HSCAN", key, cursor, args)
}

func (r *Router) Zscan(key string, cursor uint64, args ...interface{}) (nextCursor uint64, items []interface{}, err error) {
	return r.singleNodeScan("ZSCAN", key, cursor, args)
}

func (r *Router) singleNodeScan(cmd, key string, cursor uint64, extra []interface{}) (uint64, []interface{}, error) {
	topo, err := r.currentTopology()
	if err != nil {
		return 0, nil, err
	}

	needPrimary := !r.cfg.ReplicaEnabled
	client, err := topo.ClientForSlot(SlotFor(key), needPrimary)
	if IsReloadNeeded(err) {
		if rerr := r.refresh(NodeKey{}); rerr != nil {
			return 0, nil, rerr
		}
		topo, err = r.currentTopology()
		if err != nil {
			return 0, nil, err
		}
		client, err = topo.ClientForSlot(SlotFor(key), needPrimary)
	}
	if err != nil {
		return 0, nil, err
	}

	callArgs := append([]interface{}{key, strconv.FormatUint(cursor, 10)}, extra...)
	reply, err := r.trySend(client, append([]interface{}{cmd}, callArgs...), callOpts{retryBudget: defaultRetryBudget})
	if err != nil {
		return 0, nil, err
	}
	return parseScanReply(reply)
}

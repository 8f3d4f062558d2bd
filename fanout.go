package cluster

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// fanOut dispatches args to every client in clients, bounded to at
// most maxWorkers concurrent calls (spec.md §5's "bounded worker
// count, default 5"), then combines the replies per agg. Partial
// failure raises the first error encountered only after every branch
// has been attempted, per spec.md §4.4 and §7: no early cancellation
// of sibling branches.
func fanOut(clients []SingleNodeClient, args []interface{}, maxWorkers int, agg AggregationRule) (interface{}, error) {
	if len(clients) == 0 {
		return nil, &CommandError{Message: "redisc: no nodes available for fan-out"}
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxFanoutWorkers
	}

	replies := make([]interface{}, len(clients))
	errs := make([]error, len(clients))

	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			cmd, _ := args[0].(string)
			rest := args[1:]
			reply, err := c.Do(cmd, rest...)
			replies[i] = reply
			errs[i] = err
			return nil // collect every branch; don't let errgroup cancel siblings
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return aggregate(agg, replies)
}

func aggregate(agg AggregationRule, replies []interface{}) (interface{}, error) {
	switch agg {
	case AggFirst:
		if len(replies) == 0 {
			return nil, nil
		}
		return replies[0], nil

	case AggSum:
		var sum int64
		for _, r := range replies {
			sum += toInt64(r)
		}
		return sum, nil

	case AggConcatSort:
		items := flattenStrings(replies)
		sort.Strings(items)
		return stringsToInterfaces(items), nil

	case AggFlatten:
		var out []interface{}
		for _, r := range replies {
			if arr, ok := r.([]interface{}); ok {
				out = append(out, arr...)
			} else {
				out = append(out, r)
			}
		}
		return out, nil

	case AggFlattenUniqueSort:
		items := flattenStrings(replies)
		seen := make(map[string]bool, len(items))
		unique := items[:0]
		for _, it := range items {
			if !seen[it] {
				seen[it] = true
				unique = append(unique, it)
			}
		}
		sort.Strings(unique)
		return stringsToInterfaces(unique), nil

	case AggSortedList:
		out := append([]interface{}(nil), replies...)
		sort.SliceStable(out, func(i, j int) bool { return toInt64(out[i]) < toInt64(out[j]) })
		return out, nil

	case AggListPerNode:
		return replies, nil

	case AggMergeMapsSum:
		return mergeNumSubReplies(replies), nil

	default:
		if len(replies) == 0 {
			return nil, nil
		}
		return replies[0], nil
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// flattenStrings flattens []interface{} replies of []byte/string
// elements into a single []string, skipping anything else.
func flattenStrings(replies []interface{}) []string {
	var out []string
	for _, r := range replies {
		arr, ok := r.([]interface{})
		if !ok {
			continue
		}
		for _, e := range arr {
			switch v := e.(type) {
			case []byte:
				out = append(out, string(v))
			case string:
				out = append(out, v)
			}
		}
	}
	return out
}

func stringsToInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// mergeNumSubReplies merges PUBSUB NUMSUB-shaped replies (a flat
// [channel, count, channel, count, ...] array per node) into one,
// summing counts for channels seen on more than one node.
func mergeNumSubReplies(replies []interface{}) []interface{} {
	totals := make(map[string]int64)
	var order []string

	for _, r := range replies {
		arr, ok := r.([]interface{})
		if !ok {
			continue
		}
		for i := 0; i+1 < len(arr); i += 2 {
			var channel string
			switch v := arr[i].(type) {
			case []byte:
				channel = string(v)
			case string:
				channel = v
			default:
				continue
			}
			if _, seen := totals[channel]; !seen {
				order = append(order, channel)
			}
			totals[channel] += toInt64(arr[i+1])
		}
	}

	out := make([]interface{}, 0, len(order)*2)
	for _, ch := range order {
		out = append(out, []byte(ch), totals[ch])
	}
	return out
}

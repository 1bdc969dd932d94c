package retrieval

import (
	"sort"

	"github.com/civicworks/lexgraph/backend/pkg/common"
)

// DefaultRRFK is the standard reciprocal rank fusion constant from the
// literature.
const DefaultRRFK = 60

// fuseRRF combines independently ranked strategy lists into one ranking.
// Every distinct item scores the sum of 1/(k+rank) over the lists it
// appears in; absence from a list contributes nothing. Ties break by
// earliest creation time so the ordering is deterministic.
func fuseRRF(lists map[string][]common.RankedItem, k, limit int) []common.RankedItem {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fusedEntry struct {
		item  common.RankedItem
		score float64
	}

	fused := make(map[string]*fusedEntry)
	for method, list := range lists {
		for rank, item := range list {
			key := string(item.Kind) + ":" + item.ID
			entry, ok := fused[key]
			if !ok {
				entry = &fusedEntry{item: item}
				fused[key] = entry
			}
			entry.score += 1 / float64(k+rank+1)
			entry.item.Methods = append(entry.item.Methods, method)
		}
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if !entries[i].item.CreatedAt.Equal(entries[j].item.CreatedAt) {
			return entries[i].item.CreatedAt.Before(entries[j].item.CreatedAt)
		}
		return entries[i].item.ID < entries[j].item.ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]common.RankedItem, len(entries))
	for i, e := range entries {
		item := e.item
		item.Score = e.score
		sort.Strings(item.Methods)
		out[i] = item
	}
	return out
}

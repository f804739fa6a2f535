package cluster

import "sort"

// Item is one creative with its stored hash. Hash may be empty.
type Item struct {
	ID   string
	Hash string
}

// Ranked is an item with its duplicate-aware counts. ClusterID is always a
// creative id: the first item of the cluster in input order. ClusterHash is
// the cluster's representative hash and is empty for unhashed items.
type Ranked struct {
	ID             string `json:"id"`
	Hash           string `json:"hash,omitempty"`
	ClusterID      string `json:"clusterId"`
	ClusterHash    string `json:"clusterHash,omitempty"`
	VariationCount int    `json:"variationCount"`
	Duplicates     int    `json:"duplicates"`
}

// Rank assigns each item the size of its near-duplicate cluster and orders
// items by that count, largest first, then by id.
func Rank(items []Item, threshold int) []Ranked {
	var groups []Group
	seen := make(map[string]int)
	for _, it := range items {
		if it.Hash == "" {
			continue
		}
		if i, ok := seen[it.Hash]; ok {
			groups[i].Size++
			continue
		}
		seen[it.Hash] = len(groups)
		groups = append(groups, Group{Key: it.Hash, Size: 1})
	}

	res := Cluster(groups, threshold)

	firstID := make(map[string]string)
	out := make([]Ranked, 0, len(items))
	for _, it := range items {
		r := Ranked{ID: it.ID, Hash: it.Hash, ClusterID: it.ID, VariationCount: 1}
		if it.Hash != "" {
			rep := res.Representative[it.Hash]
			if _, ok := firstID[rep]; !ok {
				firstID[rep] = it.ID
			}
			r.ClusterID = firstID[rep]
			r.ClusterHash = rep
			r.VariationCount = res.Total[rep]
		}
		r.Duplicates = r.VariationCount - 1
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VariationCount != out[j].VariationCount {
			return out[i].VariationCount > out[j].VariationCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

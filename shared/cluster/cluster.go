package cluster

// Group is one distinct hash key and the number of items that share it
// exactly.
type Group struct {
	Key  string
	Size int
}

// Result maps every input key to its component.
type Result struct {
	// Representative maps each key to the earliest input key of its component.
	Representative map[string]string
	// Total is the summed group size per representative.
	Total map[string]int
	// Components is the number of clusters.
	Components int
}

// Cluster partitions groups into connected components of the graph whose
// edges join keys within threshold bits of each other. Membership is
// transitive: A~B and B~C place A, B and C together even when A and C are
// far apart. Keys that are not valid hex only ever form singletons.
// Duplicate keys are merged into their first occurrence.
func Cluster(groups []Group, threshold int) Result {
	keys := make([]string, 0, len(groups))
	sizes := make([]int, 0, len(groups))
	index := make(map[string]int, len(groups))

	for _, g := range groups {
		if i, ok := index[g.Key]; ok {
			sizes[i] += g.Size
			continue
		}
		index[g.Key] = len(keys)
		keys = append(keys, g.Key)
		sizes = append(sizes, g.Size)
	}

	digests := make([][]byte, len(keys))
	for i, k := range keys {
		if d, err := decodeHex(k); err == nil {
			digests[i] = d
		}
	}

	uf := newUnionFind(len(keys))
	for i := 0; i < len(keys); i++ {
		if digests[i] == nil {
			continue
		}
		for j := i + 1; j < len(keys); j++ {
			if digests[j] == nil {
				continue
			}
			if distance(digests[i], digests[j]) <= threshold {
				uf.union(i, j)
			}
		}
	}

	res := Result{
		Representative: make(map[string]string, len(keys)),
		Total:          make(map[string]int),
	}
	for i, k := range keys {
		rep := keys[uf.find(i)]
		res.Representative[k] = rep
		if _, seen := res.Total[rep]; !seen {
			res.Components++
		}
		res.Total[rep] += sizes[i]
	}
	return res
}

// unionFind is an arena-indexed disjoint set. The root of every set is its
// smallest index, so the representative is always the earliest input.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	root := i
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// path compression
	for u.parent[i] != root {
		next := u.parent[i]
		u.parent[i] = root
		i = next
	}
	return root
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

// Package cluster maps between canonical topic names and the concrete,
// cluster-prefixed topics a multi-datacenter deployment actually carries.
package cluster

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// Topic pairs a canonical topic with the cluster (possibly "") it lives on.
type Topic struct {
	Cluster   string
	Canonical string
}

// Concrete returns the concrete topic name: "<cluster>.<canonical>" when a
// cluster is set, the canonical name otherwise.
func (t Topic) Concrete() string {
	if t.Cluster == "" {
		return t.Canonical
	}
	return t.Cluster + "." + t.Canonical
}

// Router expands canonical topics into the concrete subscription set and maps
// concrete names back for offset bookkeeping. Identical canonical topics on
// different clusters stay distinct concrete topics, so their offsets are
// tracked independently.
type Router struct {
	clusters []string
	// Reverse lookups run once per record, so cache them.
	cache *lru.Cache
}

// NewRouter builds a router for the given cluster names. An empty slice means
// a single-cluster deployment with unprefixed topics.
func NewRouter(clusters []string) *Router {
	cache, _ := lru.New(256)
	return &Router{clusters: append([]string(nil), clusters...), cache: cache}
}

// Topics returns the concrete topics to subscribe to for the given canonical
// topics: the cross product with every configured cluster, or the canonical
// set unchanged when no clusters are configured.
func (r *Router) Topics(canonical []string) []string {
	if len(r.clusters) == 0 {
		return append([]string(nil), canonical...)
	}
	out := make([]string, 0, len(r.clusters)*len(canonical))
	for _, c := range r.clusters {
		for _, t := range canonical {
			out = append(out, Topic{Cluster: c, Canonical: t}.Concrete())
		}
	}
	return out
}

// Resolve splits a concrete topic into its cluster and canonical parts. A
// topic with no known cluster prefix resolves to an empty cluster.
func (r *Router) Resolve(concrete string) Topic {
	if v, ok := r.cache.Get(concrete); ok {
		return v.(Topic)
	}
	t := Topic{Canonical: concrete}
	for _, c := range r.clusters {
		if strings.HasPrefix(concrete, c+".") {
			t = Topic{Cluster: c, Canonical: concrete[len(c)+1:]}
			break
		}
	}
	r.cache.Add(concrete, t)
	return t
}

// Canonical strips a known cluster prefix from a concrete topic name.
func (r *Router) Canonical(concrete string) string {
	return r.Resolve(concrete).Canonical
}

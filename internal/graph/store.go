// Package graph holds the in-process, in-memory entity graph: users,
// devices, IPs, merchants and cards linked by weighted directed edges.
// The store is the single source of truth scoring reads and writes
// during the lifetime of the process; it is never durable across a
// restart (see internal/db for the persisted transaction log, and
// internal/graph's Exporter for an optional offline mirror).
package graph

import (
	"fmt"
	"sync"
	"time"
)

// NodeKind classifies the entity a node represents. Card is defined as
// its own kind, but the risk engine creates no card nodes: the
// new_merchant rule's card key is aliased to the device key.
type NodeKind string

const (
	KindUser     NodeKind = "user"
	KindDevice   NodeKind = "device"
	KindIP       NodeKind = "ip"
	KindMerchant NodeKind = "merchant"
	KindCard     NodeKind = "card"
	KindUnknown  NodeKind = "unknown"
)

// Node is a single entity in the graph. RiskScore is always kept in
// [0, 1]; callers saturate before calling SetRisk.
type Node struct {
	Key       string
	Kind      NodeKind
	RiskScore float64
	LastSeen  time.Time
}

// Edge is a directed relationship from one node to another.
type Edge struct {
	From             string
	To               string
	Weight           float64
	InteractionCount int
}

type nodeID int

// Store is the arena-backed graph: nodes live in a slice indexed by a
// stable integer id, looked up by composite key through an index map,
// with adjacency kept as per-node outgoing edge lists. This avoids the
// owned-pointer cycles a naive Node{Neighbors []*Node} representation
// would create in Go.
type Store struct {
	mu    sync.RWMutex
	nodes []Node
	index map[string]nodeID
	// adj[i] holds the outgoing edges of nodes[i], keyed by destination key.
	adj []map[string]*Edge
}

// NewStore returns an empty graph store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]nodeID),
	}
}

// Key builds the composite "<kind>_<id>" node key the rest of the
// system treats as opaque.
func Key(kind NodeKind, id string) string {
	return fmt.Sprintf("%s_%s", kind, id)
}

func (s *Store) getOrCreateLocked(key string, kind NodeKind, now time.Time) nodeID {
	if id, ok := s.index[key]; ok {
		n := &s.nodes[id]
		if n.Kind == KindUnknown && kind != KindUnknown {
			n.Kind = kind
		}
		if now.After(n.LastSeen) {
			n.LastSeen = now
		}
		return id
	}
	id := nodeID(len(s.nodes))
	s.nodes = append(s.nodes, Node{Key: key, Kind: kind, RiskScore: 0, LastSeen: now})
	s.adj = append(s.adj, make(map[string]*Edge))
	s.index[key] = id
	return id
}

// UpsertNode creates a node on first sight or touches LastSeen and
// (if currently unknown) upgrades Kind on subsequent sightings.
func (s *Store) UpsertNode(key string, kind NodeKind, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertNodeLocked(key, kind, now)
}

// UpsertNodeLocked is UpsertNode for a caller that already holds the
// store's write lock (see Lock) — the risk engine's per-event critical
// section calls this directly instead of UpsertNode to avoid taking
// the (non-reentrant) lock a second time.
func (s *Store) UpsertNodeLocked(key string, kind NodeKind, now time.Time) {
	s.getOrCreateLocked(key, kind, now)
}

// UpsertEdge creates the edge (and both endpoints, lazily) on first
// sight; on repeat sightings it increments InteractionCount and
// overwrites Weight with the supplied value (last-writer-wins).
func (s *Store) UpsertEdge(fromKey string, fromKind NodeKind, toKey string, toKind NodeKind, weight float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertEdgeLocked(fromKey, fromKind, toKey, toKind, weight, now)
}

// UpsertEdgeLocked is UpsertEdge for a caller already holding the
// write lock.
func (s *Store) UpsertEdgeLocked(fromKey string, fromKind NodeKind, toKey string, toKind NodeKind, weight float64, now time.Time) {
	fromID := s.getOrCreateLocked(fromKey, fromKind, now)
	s.getOrCreateLocked(toKey, toKind, now)

	adj := s.adj[fromID]
	if e, ok := adj[toKey]; ok {
		e.Weight = weight
		e.InteractionCount++
		return
	}
	adj[toKey] = &Edge{From: fromKey, To: toKey, Weight: weight, InteractionCount: 1}
}

// HasEdge reports whether a directed edge from->to already exists.
func (s *Store) HasEdge(fromKey, toKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HasEdgeLocked(fromKey, toKey)
}

// HasEdgeLocked is HasEdge for a caller already holding the store's
// lock (read or write).
func (s *Store) HasEdgeLocked(fromKey, toKey string) bool {
	id, ok := s.index[fromKey]
	if !ok {
		return false
	}
	_, ok = s.adj[id][toKey]
	return ok
}

// GetNode returns a copy of the node at key, or false if it does not exist.
func (s *Store) GetNode(key string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.GetNodeLocked(key)
}

// GetNodeLocked is GetNode for a caller already holding the store's
// lock (read or write).
func (s *Store) GetNodeLocked(key string) (Node, bool) {
	id, ok := s.index[key]
	if !ok {
		return Node{}, false
	}
	return s.nodes[id], true
}

// SetRisk sets a node's risk score directly. Callers are responsible
// for saturating into [0, 1] before calling.
func (s *Store) SetRisk(key string, risk float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetRiskLocked(key, risk)
}

// SetRiskLocked is SetRisk for a caller already holding the write lock.
func (s *Store) SetRiskLocked(key string, risk float64) {
	if id, ok := s.index[key]; ok {
		s.nodes[id].RiskScore = risk
	}
}

// Successors returns a snapshot slice of the outgoing edges of key.
func (s *Store) Successors(key string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SuccessorsLocked(key)
}

// SuccessorsLocked is Successors for a caller already holding the
// store's lock (read or write).
func (s *Store) SuccessorsLocked(key string) []Edge {
	id, ok := s.index[key]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(s.adj[id]))
	for _, e := range s.adj[id] {
		out = append(out, *e)
	}
	return out
}

// NodeCount returns the number of nodes currently in the graph.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the total number of directed edges currently in the graph.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.adj {
		n += len(a)
	}
	return n
}

// IterNodes calls fn once per node with a snapshot copy. fn must not
// call back into the store; IterNodes holds the read lock for its
// duration.
func (s *Store) IterNodes(fn func(Node)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.IterNodesLocked(fn)
}

// IterNodesLocked is IterNodes for a caller already holding the
// store's lock (read or write).
func (s *Store) IterNodesLocked(fn func(Node)) {
	for _, n := range s.nodes {
		fn(n)
	}
}

// Lock and Unlock expose the store's writer lock so the risk engine
// can hold a single critical section across the multi-step mutation
// of a transaction (upsert nodes/edges, base risk, propagation,
// write-back) per the engine's concurrency contract.
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }

// NeighborsWithin performs a breadth-first walk from start out to
// maxDepth hops (inclusive) and invokes visit(node, depth) the first
// time each node is reached, in BFS order. Like the *Locked methods
// above, it assumes the caller already holds at least a read lock
// (see Lock/RLock) and does not take one itself, so it is safe to call
// from inside the engine's single writer critical section.
func (s *Store) NeighborsWithin(start string, maxDepth int, visit func(key string, depth int)) {
	if _, ok := s.index[start]; !ok {
		return
	}
	visited := map[string]bool{start: true}
	type item struct {
		key   string
		depth int
	}
	queue := []item{{start, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		id := s.index[cur.key]
		for to := range s.adj[id] {
			if visited[to] {
				continue
			}
			visited[to] = true
			visit(to, cur.depth+1)
			queue = append(queue, item{to, cur.depth + 1})
		}
	}
}

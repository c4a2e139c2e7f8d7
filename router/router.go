// Package router implements network-layer routing between BACnet
// networks (C12): hop-count enforcement, a routing table with
// next-hop lookup, and the Who-Is-Router-To-Network/I-Am-Router-To-
// Network control message exchange. Grounded in the teacher's
// devicesMu/devices pattern in client.go (mutex-protected map of
// known peers keyed by an identifier) generalized from device
// discovery to network discovery, and in protocol.go's NPDU decoding
// which already carries DestNet/DestHopCount.
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgeo-scada/bacnet"
)

// DefaultHopCount is the starting hop count ASHRAE 135 assigns to a
// freshly originated NPDU.
const DefaultHopCount = 255

// Route records how to reach a remote network: directly attached
// (Port identifies the local data-link) or via another router
// (NextHop is that router's network-layer address on Port).
type Route struct {
	Network uint16
	Port    string
	NextHop []byte // empty when the network is directly attached to Port
	Cost    int
}

// Table is a routing table plus the set of networks currently
// reporting Router-Busy, protected for concurrent access the way the
// teacher guards its device cache.
type Table struct {
	mu           sync.RWMutex
	localNetwork uint16
	routes       map[uint16]Route
	busy         map[uint16]bool
	pathCache    map[pathCacheKey][]Route
	cacheToken   string
}

// pathCacheKey identifies one cached shortest-path result.
type pathCacheKey struct {
	origin, dest uint16
}

// NewTable constructs an empty routing table for the given local
// network number, the value this router reports in reply to
// What-Is-Network-Number (ASHRAE 135 clause 6.4.8).
func NewTable(localNetwork uint16) *Table {
	return &Table{
		localNetwork: localNetwork,
		routes:       make(map[uint16]Route),
		busy:         make(map[uint16]bool),
	}
}

// LocalNetwork returns the network number this router's local port is
// configured on.
func (t *Table) LocalNetwork() uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.localNetwork
}

// AddRoute installs or replaces the route to network, invalidating any
// cached shortest paths.
func (t *Table) AddRoute(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[r.Network] = r
	t.pathCache = nil
}

// RemoveRoute drops the route to network.
func (t *Table) RemoveRoute(network uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, network)
	t.pathCache = nil
}

// Lookup returns the route to network, if known.
func (t *Table) Lookup(network uint16) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[network]
	return r, ok
}

// SetBusy marks network as reporting Router-Busy (or clears it).
func (t *Table) SetBusy(network uint16, busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if busy {
		t.busy[network] = true
	} else {
		delete(t.busy, network)
	}
}

// IsBusy reports whether network is currently marked busy.
func (t *Table) IsBusy(network uint16) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.busy[network]
}

// Networks returns every network currently reachable, sorted.
func (t *Table) Networks() []uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nets := make([]uint16, 0, len(t.routes))
	for n := range t.routes {
		nets = append(nets, n)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i] < nets[j] })
	return nets
}

// Forward applies spec.md §4.12's hop-count rule to an inbound NPDU
// bound for a non-local network: decrement hopCount, fail with
// ErrHopCountExceeded at zero, else resolve the next-hop route.
func (t *Table) Forward(destNetwork uint16, hopCount uint8) (Route, uint8, error) {
	if hopCount == 0 {
		return Route{}, 0, bacnet.ErrHopCountExceeded
	}
	hopCount--
	if hopCount == 0 {
		return Route{}, 0, bacnet.ErrHopCountExceeded
	}
	if t.IsBusy(destNetwork) {
		return Route{}, hopCount, bacnet.ErrRoutingBusy
	}
	route, ok := t.Lookup(destNetwork)
	if !ok {
		return Route{}, hopCount, bacnet.ErrNetworkUnreachable
	}
	return route, hopCount, nil
}

// HandleWhoIsRouterToNetwork returns the network if this router knows
// a route to it, for the caller to encode an
// I-Am-Router-To-Network reply; ok is false when no route exists and
// no reply should be sent.
func (t *Table) HandleWhoIsRouterToNetwork(network uint16) (uint16, bool) {
	_, ok := t.Lookup(network)
	return network, ok
}

// HandleWhatIsNetworkNumber returns the local network number this
// router should encode into a Network-Number-Is reply, per ASHRAE 135
// clause 6.4.8: a router that knows its own network number always
// answers, so there is no ok return here (unlike
// HandleWhoIsRouterToNetwork, which may have no route at all).
func (t *Table) HandleWhatIsNetworkNumber() uint16 {
	return t.LocalNetwork()
}

// IngestIAmRouterToNetwork records that the peer at nextHop advertises
// routes to every network in networks, each reached via port.
func (t *Table) IngestIAmRouterToNetwork(port string, nextHop []byte, networks []uint16) {
	for _, n := range networks {
		t.AddRoute(Route{Network: n, Port: port, NextHop: nextHop, Cost: 1})
	}
}

// Edge is one hop in the graph used for shortest-path computation:
// from Network, to Network, via Route. Callers assemble the edge list
// from whatever topology source they maintain (static config, or
// routes learned via IngestIAmRouterToNetwork across multiple ports).
type Edge struct {
	From, To uint16
	Route    Route
}

// ShortestPath runs Dijkstra over the given route graph from origin to
// dest, returning the ordered sequence of routes to traverse. Results
// are cached per (origin, destination) pair and invalidated whenever the
// table is mutated; the cache token is a uuid so concurrent
// recomputations after an invalidation do not collide.
func (t *Table) ShortestPath(origin, dest uint16, edges []Edge) ([]Route, bool) {
	key := pathCacheKey{origin: origin, dest: dest}
	t.mu.Lock()
	if t.pathCache == nil {
		t.pathCache = make(map[pathCacheKey][]Route)
		t.cacheToken = uuid.NewString()
	}
	if cached, ok := t.pathCache[key]; ok {
		t.mu.Unlock()
		return cached, true
	}
	token := t.cacheToken
	t.mu.Unlock()

	const inf = int(^uint(0) >> 1)
	dist := map[uint16]int{origin: 0}
	prevRoute := map[uint16]Route{}
	prevNode := map[uint16]uint16{}
	visited := map[uint16]bool{}
	adjacency := map[uint16][]Edge{}
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e)
	}

	for {
		// pick the unvisited node with smallest known distance
		cur, curDist := uint16(0), inf
		found := false
		for n, d := range dist {
			if !visited[n] && d < curDist {
				cur, curDist = n, d
				found = true
			}
		}
		if !found {
			break
		}
		visited[cur] = true
		if cur == dest {
			break
		}
		for _, e := range adjacency[cur] {
			next := curDist + e.Route.Cost
			if existing, ok := dist[e.To]; !ok || next < existing {
				dist[e.To] = next
				prevRoute[e.To] = e.Route
				prevNode[e.To] = cur
			}
		}
	}

	if _, ok := dist[dest]; !ok {
		return nil, false
	}
	var path []Route
	for n := dest; n != origin; {
		r, ok := prevRoute[n]
		if !ok {
			return nil, false
		}
		path = append([]Route{r}, path...)
		n = prevNode[n]
		if len(path) > len(edges)+1 {
			return nil, false // guards against a malformed edge list cycling forever
		}
	}

	t.mu.Lock()
	if t.pathCache != nil && t.cacheToken == token {
		t.pathCache[key] = path
	}
	t.mu.Unlock()
	return path, true
}

// BusyTimeout is the conventional time a Router-Busy mark is honored
// when no Router-Available follows. Table does not apply it: a mark set
// by SetBusy stays until SetBusy(network, false) clears it.
const BusyTimeout = 30 * time.Second

package router

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

func TestForwardDecrementsHopCount(t *testing.T) {
	tbl := NewTable(1)
	tbl.AddRoute(Route{Network: 10, Port: "eth0"})

	route, hopCount, err := tbl.Forward(10, 5)
	require.NoError(t, err)
	require.Equal(t, uint8(4), hopCount)
	require.Equal(t, "eth0", route.Port)
}

func TestForwardHopCountExceeded(t *testing.T) {
	tbl := NewTable(1)
	tbl.AddRoute(Route{Network: 10, Port: "eth0"})

	_, _, err := tbl.Forward(10, 1)
	require.ErrorIs(t, err, bacnet.ErrHopCountExceeded)

	_, _, err = tbl.Forward(10, 0)
	require.ErrorIs(t, err, bacnet.ErrHopCountExceeded)
}

func TestForwardUnreachableNetwork(t *testing.T) {
	tbl := NewTable(1)
	_, _, err := tbl.Forward(99, 255)
	require.ErrorIs(t, err, bacnet.ErrNetworkUnreachable)
}

func TestForwardBusyNetwork(t *testing.T) {
	tbl := NewTable(1)
	tbl.AddRoute(Route{Network: 10, Port: "eth0"})
	tbl.SetBusy(10, true)

	_, _, err := tbl.Forward(10, 255)
	require.ErrorIs(t, err, bacnet.ErrRoutingBusy)
}

func TestWhoIsRouterToNetwork(t *testing.T) {
	tbl := NewTable(1)
	tbl.AddRoute(Route{Network: 10, Port: "eth0"})

	_, ok := tbl.HandleWhoIsRouterToNetwork(10)
	require.True(t, ok)

	_, ok = tbl.HandleWhoIsRouterToNetwork(20)
	require.False(t, ok)
}

func TestHandleWhatIsNetworkNumber(t *testing.T) {
	tbl := NewTable(42)
	require.Equal(t, uint16(42), tbl.LocalNetwork())
	require.Equal(t, uint16(42), tbl.HandleWhatIsNetworkNumber())
}

func TestIngestIAmRouterToNetwork(t *testing.T) {
	tbl := NewTable(1)
	tbl.IngestIAmRouterToNetwork("eth0", []byte{0x01}, []uint16{10, 20})

	r, ok := tbl.Lookup(10)
	require.True(t, ok)
	require.Equal(t, "eth0", r.Port)

	r, ok = tbl.Lookup(20)
	require.True(t, ok)
	require.Equal(t, []byte{0x01}, r.NextHop)
}

func TestShortestPath(t *testing.T) {
	tbl := NewTable(1)
	edges := []Edge{
		{From: 0, To: 10, Route: Route{Network: 10, Port: "a", Cost: 1}},
		{From: 10, To: 20, Route: Route{Network: 20, Port: "b", Cost: 1}},
		{From: 0, To: 20, Route: Route{Network: 20, Port: "direct", Cost: 5}},
	}

	path, ok := tbl.ShortestPath(0, 20, edges)
	require.True(t, ok)
	require.Len(t, path, 2)
	require.Equal(t, "a", path[0].Port)
	require.Equal(t, "b", path[1].Port)

	// second call should hit the cache and return the same result
	path2, ok := tbl.ShortestPath(0, 20, edges)
	require.True(t, ok)
	require.Equal(t, path, path2)
}

func TestShortestPathUnreachable(t *testing.T) {
	tbl := NewTable(1)
	_, ok := tbl.ShortestPath(0, 99, nil)
	require.False(t, ok)
}

package sanafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// index is a test helper that flattens a link triple, failing the test on
// a coordinate defect.
func index(t *testing.T, mesh *Mesh, x, y int, dir LinkDir) int {
	t.Helper()
	idx, err := mesh.LinkIndex(x, y, dir)
	require.NoError(t, err)
	return idx
}

func TestRouteSameTile(t *testing.T) {
	mesh := CreateDefaultMesh()
	mr := CreateMeshRouter(mesh)

	// cores 0 and 1 share tile (0,0): inject, then eject, no cardinal hops
	route, err := mr.RouteLinks(0, 1)
	require.NoError(t, err)

	expected := []int{
		index(t, mesh, 0, 0, mesh.CoreToNetDir(0)),
		index(t, mesh, 0, 0, mesh.NetToCoreDir(1)),
	}
	assert.Equal(t, expected, route)
}

func TestRouteXThenY(t *testing.T) {
	mesh := CreateDefaultMesh()
	mr := CreateMeshRouter(mesh)

	// core 0 sits on tile (0,0); core 38 is offset 2 on tile 9 = (2,1)
	route, err := mr.RouteLinks(0, 38)
	require.NoError(t, err)

	expected := []int{
		index(t, mesh, 0, 0, mesh.CoreToNetDir(0)),
		index(t, mesh, 1, 0, DirEast),
		index(t, mesh, 2, 0, DirEast),
		index(t, mesh, 2, 1, DirNorth),
		index(t, mesh, 2, 1, mesh.NetToCoreDir(2)),
	}
	assert.Equal(t, expected, route)
}

func TestRouteDeterministic(t *testing.T) {
	mr := CreateMeshRouter(CreateDefaultMesh())

	first, err := mr.RouteLinks(3, 97)
	require.NoError(t, err)
	second, err := mr.RouteLinks(3, 97)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRouteAsymmetric(t *testing.T) {
	mesh := CreateDefaultMesh()
	mr := CreateMeshRouter(mesh)

	forward, err := mr.RouteLinks(0, 38)
	require.NoError(t, err)
	backward, err := mr.RouteLinks(38, 0)
	require.NoError(t, err)

	// the return path routes x first too, so it is not the reversed
	// forward path
	expected := []int{
		index(t, mesh, 2, 1, mesh.CoreToNetDir(2)),
		index(t, mesh, 1, 1, DirWest),
		index(t, mesh, 0, 1, DirWest),
		index(t, mesh, 0, 0, DirSouth),
		index(t, mesh, 0, 0, mesh.NetToCoreDir(0)),
	}
	assert.Equal(t, expected, backward)
	assert.NotEqual(t, forward, backward)
}

func TestRouteHopCount(t *testing.T) {
	mesh := CreateDefaultMesh()
	mr := CreateMeshRouter(mesh)

	tests := []struct {
		name     string
		src, dst int
		hops     int // manhattan distance + inject + eject
	}{
		{name: "same tile", src: 0, dst: 3, hops: 2},
		{name: "one tile east", src: 0, dst: 16, hops: 3},
		{name: "corner to corner", src: 0, dst: 127, hops: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := mr.RouteLinks(tt.src, tt.dst)
			require.NoError(t, err)
			assert.Len(t, route, tt.hops)
		})
	}
}

func TestRouteDegenerateFlow(t *testing.T) {
	mr := CreateMeshRouter(CreateDefaultMesh())
	_, err := mr.RouteLinks(5, 5)
	assert.ErrorIs(t, err, ErrInput)
}

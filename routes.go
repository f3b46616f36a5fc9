package sanafe

// routes.go provides the deterministic routing function that maps a
// communicating core pair onto the ordered sequence of physical links its
// messages traverse.

// The hardware routes with dimension-order (XY) routing: a message first
// travels along the x dimension until its column matches the destination's,
// then along the y dimension.  The route as the analysis sees it starts on
// the source core's injection link, visits one cardinal link per inter-tile
// hop (attributed to the tile reached after the move), and ends on the
// destination core's ejection link.  Routes are a fixed function of the
// endpoints, so each is computed once and cached for the life of the run.

type rtEndpts struct {
	srcCore, dstCore int
}

// MeshRouter computes and caches routes over one mesh.  The cache belongs
// to the run that owns the router; concurrent runs each build their own.
type MeshRouter struct {
	mesh    *Mesh
	rtCache map[rtEndpts][]int
}

// CreateMeshRouter is a constructor.
func CreateMeshRouter(mesh *Mesh) *MeshRouter {
	mr := new(MeshRouter)
	mr.mesh = mesh
	mr.rtCache = make(map[rtEndpts][]int)
	return mr
}

// RouteLinks returns the ordered link indices a message from srcCore to
// dstCore traverses.  The returned slice is owned by the route cache and
// must not be modified.  A route from a core to itself does not exist on
// the network and is rejected as an input error; a coordinate falling off
// the mesh is a topology error and indicates a defect in the routing logic
// itself.
func (mr *MeshRouter) RouteLinks(srcCore, dstCore int) ([]int, error) {
	if srcCore == dstCore {
		return nil, InputErrorf("degenerate flow: source and destination are both core %d", srcCore)
	}

	endpoints := rtEndpts{srcCore: srcCore, dstCore: dstCore}
	rt, found := mr.rtCache[endpoints]
	if found {
		return rt, nil
	}

	mesh := mr.mesh
	x, y, err := mesh.TileCoords(mesh.CoreTile(srcCore))
	if err != nil {
		return nil, err
	}
	dstX, dstY, err := mesh.TileCoords(mesh.CoreTile(dstCore))
	if err != nil {
		return nil, err
	}

	route := make([]int, 0)
	appendHop := func(hx, hy int, dir LinkDir) error {
		index, herr := mesh.LinkIndex(hx, hy, dir)
		if herr != nil {
			return herr
		}
		route = append(route, index)
		return nil
	}

	// inject at the source tile
	err = appendHop(x, y, mesh.CoreToNetDir(mesh.CoreOffset(srcCore)))
	if err != nil {
		return nil, err
	}

	// x dimension first; each cardinal hop belongs to the tile it lands on
	for x < dstX {
		x += 1
		err = appendHop(x, y, DirEast)
		if err != nil {
			return nil, err
		}
	}
	for x > dstX {
		x -= 1
		err = appendHop(x, y, DirWest)
		if err != nil {
			return nil, err
		}
	}

	// then the y dimension
	for y < dstY {
		y += 1
		err = appendHop(x, y, DirNorth)
		if err != nil {
			return nil, err
		}
	}
	for y > dstY {
		y -= 1
		err = appendHop(x, y, DirSouth)
		if err != nil {
			return nil, err
		}
	}

	// eject at the destination tile
	err = appendHop(x, y, mesh.NetToCoreDir(mesh.CoreOffset(dstCore)))
	if err != nil {
		return nil, err
	}

	mr.rtCache[endpoints] = route

	return route, nil
}

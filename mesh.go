package sanafe

// mesh.go describes the fixed 2D mesh topology of the chip's network: a grid
// of tiles, each holding a router with four cardinal links to its neighbors,
// one injection link per local core onto the network, and one ejection link
// per local core off of it.  Every physical link has a flattened integer
// index used as its identity throughout the analysis; the index is a
// bijection with the (tile-x, tile-y, direction) triple and every conversion
// is bounds-checked.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LinkDir identifies one of the directed links inside a tile's router.
// The four cardinals come first; injection links (core onto network) and
// ejection links (network onto core) follow, one per local core.
type LinkDir int

const (
	DirNorth LinkDir = iota // toward +y
	DirEast                 // toward +x
	DirSouth                // toward -y
	DirWest                 // toward -x
)

// Mesh holds the topology constants for one chip: grid extent, cores per
// tile, and the buffer capacity of each link class.  All link and core
// addressing runs through its methods so that the flat indexing scheme
// lives in exactly one place.
type Mesh struct {
	Width        int // tiles in the x dimension
	Height       int // tiles in the y dimension
	CoresPerTile int

	// buffer capacities by link class
	BufferTileToTile int
	BufferCoreToNet  int
	BufferNetToCore  int
}

// CreateMesh is a constructor over the full set of topology constants.
func CreateMesh(width, height, coresPerTile, bufTile, bufCoreToNet, bufNetToCore int) *Mesh {
	mesh := new(Mesh)
	mesh.Width = width
	mesh.Height = height
	mesh.CoresPerTile = coresPerTile
	mesh.BufferTileToTile = bufTile
	mesh.BufferCoreToNet = bufCoreToNet
	mesh.BufferNetToCore = bufNetToCore
	return mesh
}

// CreateDefaultMesh returns the 8x4 mesh with 4 cores per tile and buffer
// capacities 16 (tile-to-tile), 8 (core-to-net), 24 (net-to-core) that the
// traced hardware implements.
func CreateDefaultMesh() *Mesh {
	return CreateMesh(8, 4, 4, 16, 8, 24)
}

// NumTiles returns the number of tiles on the mesh.
func (mesh *Mesh) NumTiles() int {
	return mesh.Width * mesh.Height
}

// NumCores returns the number of addressable cores on the mesh.
func (mesh *Mesh) NumCores() int {
	return mesh.NumTiles() * mesh.CoresPerTile
}

// DirsPerTile returns the number of directed links inside each tile's
// router: four cardinals plus one injection and one ejection link per core.
func (mesh *Mesh) DirsPerTile() int {
	return 4 + 2*mesh.CoresPerTile
}

// NumLinks returns the total number of physical links on the mesh.
func (mesh *Mesh) NumLinks() int {
	return mesh.NumTiles() * mesh.DirsPerTile()
}

// CoreToNetDir returns the injection link direction for the core with the
// given intra-tile offset.
func (mesh *Mesh) CoreToNetDir(coreOffset int) LinkDir {
	return LinkDir(4 + coreOffset)
}

// NetToCoreDir returns the ejection link direction for the core with the
// given intra-tile offset.
func (mesh *Mesh) NetToCoreDir(coreOffset int) LinkDir {
	return LinkDir(4 + mesh.CoresPerTile + coreOffset)
}

// DirName returns the conventional name of a link direction, matching the
// labels the hardware trace tooling uses ("north", "core_1_to_net", ...).
// Core-indexed names count from 1.
func (mesh *Mesh) DirName(dir LinkDir) string {
	switch {
	case dir == DirNorth:
		return "north"
	case dir == DirEast:
		return "east"
	case dir == DirSouth:
		return "south"
	case dir == DirWest:
		return "west"
	case int(dir) < 4+mesh.CoresPerTile:
		return fmt.Sprintf("core_%d_to_net", int(dir)-3)
	case int(dir) < mesh.DirsPerTile():
		return fmt.Sprintf("net_to_core_%d", int(dir)-3-mesh.CoresPerTile)
	}
	return fmt.Sprintf("dir_%d", int(dir))
}

// DirFromStr recovers a link direction from its conventional name.
func (mesh *Mesh) DirFromStr(name string) (LinkDir, error) {
	for dir := 0; dir < mesh.DirsPerTile(); dir++ {
		if mesh.DirName(LinkDir(dir)) == name {
			return LinkDir(dir), nil
		}
	}
	return 0, TopologyErrorf("unknown link direction %q", name)
}

// BufferCap returns the buffer capacity of a link, selected by its
// direction class.
func (mesh *Mesh) BufferCap(dir LinkDir) (int, error) {
	switch {
	case dir >= DirNorth && dir <= DirWest:
		return mesh.BufferTileToTile, nil
	case int(dir) < 4+mesh.CoresPerTile:
		return mesh.BufferCoreToNet, nil
	case int(dir) < mesh.DirsPerTile():
		return mesh.BufferNetToCore, nil
	}
	return 0, TopologyErrorf("link direction %d out of range", int(dir))
}

// checkCoords validates a (tile-x, tile-y, direction) triple against the
// mesh bounds.
func (mesh *Mesh) checkCoords(x, y int, dir LinkDir) error {
	if x < 0 || x >= mesh.Width || y < 0 || y >= mesh.Height {
		return TopologyErrorf("tile (%d,%d) outside %dx%d mesh", x, y, mesh.Width, mesh.Height)
	}
	if dir < 0 || int(dir) >= mesh.DirsPerTile() {
		return TopologyErrorf("link direction %d outside [0,%d)", int(dir), mesh.DirsPerTile())
	}
	return nil
}

// LinkIndex flattens a (tile-x, tile-y, direction) triple into the link's
// integer identity.
func (mesh *Mesh) LinkIndex(x, y int, dir LinkDir) (int, error) {
	err := mesh.checkCoords(x, y, dir)
	if err != nil {
		return -1, err
	}
	return x*mesh.Height*mesh.DirsPerTile() + y*mesh.DirsPerTile() + int(dir), nil
}

// LinkCoords inverts a flat link index back to its (tile-x, tile-y,
// direction) triple.
func (mesh *Mesh) LinkCoords(index int) (int, int, LinkDir, error) {
	if index < 0 || index >= mesh.NumLinks() {
		return 0, 0, 0, TopologyErrorf("link index %d outside [0,%d)", index, mesh.NumLinks())
	}
	dirs := mesh.DirsPerTile()
	x := index / (mesh.Height * dirs)
	y := (index % (mesh.Height * dirs)) / dirs
	dir := LinkDir(index % dirs)
	err := mesh.checkCoords(x, y, dir)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, dir, nil
}

// LinkName returns the "x.y.direction" label registered for a link in
// solve traces and graph exports.
func (mesh *Mesh) LinkName(index int) string {
	x, y, dir, err := mesh.LinkCoords(index)
	if err != nil {
		return fmt.Sprintf("link_%d", index)
	}
	return fmt.Sprintf("%d.%d.%s", x, y, mesh.DirName(dir))
}

// TileCoords returns the grid position of a tile id.  The id is the
// flattening x*Height + y.
func (mesh *Mesh) TileCoords(tile int) (int, int, error) {
	if tile < 0 || tile >= mesh.NumTiles() {
		return 0, 0, TopologyErrorf("tile id %d outside [0,%d)", tile, mesh.NumTiles())
	}
	return tile / mesh.Height, tile % mesh.Height, nil
}

// CoreTile returns the id of the tile holding a core.
func (mesh *Mesh) CoreTile(core int) int {
	return core / mesh.CoresPerTile
}

// CoreOffset returns a core's position within its tile.
func (mesh *Mesh) CoreOffset(core int) int {
	return core % mesh.CoresPerTile
}

// ParseHWAddr converts a hardware address of the form "tile.core" (core
// numbered within its tile) into a global core id.
func (mesh *Mesh) ParseHWAddr(addr string) (int, error) {
	fields := strings.Split(addr, ".")
	if len(fields) != 2 {
		return -1, InputErrorf("hardware address %q not of the form tile.core", addr)
	}
	tile, terr := strconv.Atoi(fields[0])
	offset, cerr := strconv.Atoi(fields[1])
	if terr != nil || cerr != nil {
		return -1, InputErrorf("hardware address %q holds a non-integer field", addr)
	}
	if tile < 0 || tile >= mesh.NumTiles() {
		return -1, InputErrorf("hardware address %q names tile %d outside [0,%d)", addr, tile, mesh.NumTiles())
	}
	if offset < 0 || offset >= mesh.CoresPerTile {
		return -1, InputErrorf("hardware address %q names core %d outside [0,%d)", addr, offset, mesh.CoresPerTile)
	}
	return tile*mesh.CoresPerTile + offset, nil
}

// HWAddr renders a global core id in the "tile.core" form used by the
// hardware trace.
func (mesh *Mesh) HWAddr(core int) string {
	return fmt.Sprintf("%d.%d", mesh.CoreTile(core), mesh.CoreOffset(core))
}

// MeshDesc is the serializable description of a Mesh.
type MeshDesc struct {
	Width            int `json:"width" yaml:"width"`
	Height           int `json:"height" yaml:"height"`
	CoresPerTile     int `json:"corespertile" yaml:"corespertile"`
	BufferTileToTile int `json:"buffertiletotile" yaml:"buffertiletotile"`
	BufferCoreToNet  int `json:"buffercoretonet" yaml:"buffercoretonet"`
	BufferNetToCore  int `json:"buffernettocore" yaml:"buffernettocore"`
}

// Desc transforms a Mesh into its serializable form.
func (mesh *Mesh) Desc() *MeshDesc {
	return &MeshDesc{Width: mesh.Width, Height: mesh.Height, CoresPerTile: mesh.CoresPerTile,
		BufferTileToTile: mesh.BufferTileToTile, BufferCoreToNet: mesh.BufferCoreToNet,
		BufferNetToCore: mesh.BufferNetToCore}
}

// CreateMeshFromDesc builds the run-time Mesh from its serialized
// description, validating the constants.
func CreateMeshFromDesc(md *MeshDesc) (*Mesh, error) {
	if md.Width < 1 || md.Height < 1 || md.CoresPerTile < 1 {
		return nil, InputErrorf("mesh description names a degenerate %dx%d grid with %d cores per tile",
			md.Width, md.Height, md.CoresPerTile)
	}
	if md.BufferTileToTile < 1 || md.BufferCoreToNet < 1 || md.BufferNetToCore < 1 {
		return nil, InputErrorf("mesh description names a non-positive buffer capacity")
	}
	return CreateMesh(md.Width, md.Height, md.CoresPerTile,
		md.BufferTileToTile, md.BufferCoreToNet, md.BufferNetToCore), nil
}

// WriteToFile stores the MeshDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (md *MeshDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*md)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*md, "", "\t")
	}

	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.WriteString(string(bytes[:]))
	f.Close()

	return werr
}

// ReadMeshDesc deserializes a byte slice holding a representation of a MeshDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadMeshDesc(filename string, useYAML bool, dict []byte) (*MeshDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := MeshDesc{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

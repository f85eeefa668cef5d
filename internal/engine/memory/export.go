package memory

import (
	"bufio"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection returns one feature per extrusion: the base polygon in
// local engine units with its height and history as properties.
func (s *Scene) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, solid := range s.Extrusions() {
		ring := make(orb.Ring, 0, len(solid.Base)+1)
		for _, p := range solid.Base {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = int64(solid.ID)
		f.Properties["height"] = solid.Height
		f.Properties["history"] = int64(solid.History)
		fc.Append(f)
	}
	return fc
}

// WriteOBJ writes every extrusion as a closed prism in Wavefront OBJ format,
// Z up, in engine units.
func (s *Scene) WriteOBJ(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# plat-massing scene")

	base := 1
	for _, solid := range s.Extrusions() {
		n := len(solid.Base)
		fmt.Fprintf(bw, "o extrusion_%d\n", solid.ID)
		for _, p := range solid.Base {
			fmt.Fprintf(bw, "v %g %g %g\n", p.X, p.Y, p.Z)
		}
		for _, p := range solid.Base {
			fmt.Fprintf(bw, "v %g %g %g\n", p.X, p.Y, p.Z+solid.Height)
		}

		// bottom, reversed so its normal points down
		bw.WriteString("f")
		for i := n - 1; i >= 0; i-- {
			fmt.Fprintf(bw, " %d", base+i)
		}
		bw.WriteString("\n")

		// top
		bw.WriteString("f")
		for i := 0; i < n; i++ {
			fmt.Fprintf(bw, " %d", base+n+i)
		}
		bw.WriteString("\n")

		// walls
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			fmt.Fprintf(bw, "f %d %d %d %d\n", base+i, base+j, base+n+j, base+n+i)
		}
		base += 2 * n
	}
	return bw.Flush()
}

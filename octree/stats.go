package octree

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Build a tabular representation of the octree node distribution and memory use.
func (o *Octree) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Level", "Nodes", "Occupancy"})
	for level := 0; level <= o.Depth; level++ {
		cells := float64(uint64(1) << (3 * uint(level)))
		table.Append([]string{
			fmt.Sprintf("%d", level),
			fmt.Sprintf("%d", o.LevelSize(level)),
			fmt.Sprintf("%3.4f %%", 100*float64(o.LevelSize(level))/cells),
		})
	}
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Nodes", fmt.Sprintf("%d", o.NodeCount()), fmtSize(o.Masks, o.Pointers)})
	table.Append([]string{"Leaf attributes", fmt.Sprintf("%d", o.LeafCount()), fmtSize(o.Normals, o.Albedo, o.Emission)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(o.Masks, o.Pointers, o.Normals, o.Albedo, o.Emission), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(v.Type().Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}

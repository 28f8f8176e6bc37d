// Package topo implements the XML topology loader (spec §6): a flat list
// of nodes, each carrying position, sensitivity, and maximum transmit
// power, with ids assigned by document order starting at 0. Grounded on
// encoding/xml rather than a third-party XML library — DESIGN.md records
// why: none of the retrieved example repos import one, and this loader's
// shape (flat, attribute-only, validate-then-reject) needs nothing a
// streaming/DOM third-party parser would add over the standard library.
package topo

import (
	"encoding/xml"
	"math"
	"strconv"
	"strings"

	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/types"
)

// NodeSpec is one <node> element's parsed, validated fields.
type NodeSpec struct {
	ID          types.NodeID
	Pos         types.Pos
	Sensitivity float64
	MaxPower    float64
}

type xmlTopology struct {
	XMLName xml.Name  `xml:"topology"`
	Nodes   []xmlNode `xml:"node"`
}

type xmlNode struct {
	X              string `xml:"x,attr"`
	Y              string `xml:"y,attr"`
	Sensitivity    string `xml:"sensitivity,attr"`
	MaximalPower   string `xml:"maximal_power,attr"`
}

// Parse parses an XML topology document's bytes into an ordered list of
// node specs (spec §6: "ids are assigned by creation order starting at
// 0"). Integer attributes (x, y) reject out-of-range and non-numeric
// input; float attributes (sensitivity, maximal_power) reject NaN,
// infinity, and non-numeric input.
func Parse(data []byte) ([]NodeSpec, error) {
	var doc xmlTopology
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, perr.Wrap(perr.BadMessage, err, "topo: malformed XML document")
	}

	specs := make([]NodeSpec, 0, len(doc.Nodes))
	for i, n := range doc.Nodes {
		x, err := parseInt(n.X)
		if err != nil {
			return nil, perr.Wrap(perr.BadMessage, err, "topo: node %d: bad x attribute %q", i, n.X)
		}
		y, err := parseInt(n.Y)
		if err != nil {
			return nil, perr.Wrap(perr.BadMessage, err, "topo: node %d: bad y attribute %q", i, n.Y)
		}
		sensitivity, err := parseFloat(n.Sensitivity)
		if err != nil {
			return nil, perr.Wrap(perr.BadMessage, err, "topo: node %d: bad sensitivity attribute %q", i, n.Sensitivity)
		}
		maxPower, err := parseFloat(n.MaximalPower)
		if err != nil {
			return nil, perr.Wrap(perr.BadMessage, err, "topo: node %d: bad maximal_power attribute %q", i, n.MaximalPower)
		}

		specs = append(specs, NodeSpec{
			ID:          types.NodeID(i),
			Pos:         types.Pos{X: x, Y: y},
			Sensitivity: sensitivity,
			MaxPower:    maxPower,
		})
	}
	return specs, nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, perr.New(perr.BadMessage, "topo: value %q is NaN or infinite", s)
	}
	return v, nil
}

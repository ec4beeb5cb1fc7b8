// Package cluster groups seismic events that lie close together.
//
// For every event R (in input order) the neighbourhood of R is every event
// within ThresholdKm of it, R included, kept in input order. A neighbourhood
// with more than one member is a cluster. Only clusters with exactly the same
// member set are collapsed (first occurrence wins); overlapping clusters and
// subsets are kept, so an event near two groups can appear in both.
//
// Neighbour candidates come from an s2 cell index instead of an all-pairs
// scan. The output is identical to the all-pairs definition above.
package cluster

import (
	"slices"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/uber/h3-go/v4"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/geo"
)

// ThresholdKm is the co-location distance.
const ThresholdKm = 50.0

// CellResolution is the H3 resolution used to label cluster centroids.
const CellResolution = 4

// indexLevel cells are roughly 60-80 km across, so a ThresholdKm cap touches
// only a handful of them.
const indexLevel = 7

// capSlack widens the search cap so points exactly on the threshold are never
// missed by the covering; membership is decided by DistanceKm alone.
const capSlack = 1e-3

type node struct {
	pos   int // position in the input slice
	point geo.Point
	ll    s2.LatLng
}

// Find returns the proximity clusters of events, plus one warning for every
// event skipped because it has no usable coordinates. Empty input yields no
// clusters.
func Find(events []domain.SeismicEvent) ([]domain.Cluster, []domain.DataIntegrityWarning) {
	nodes, warnings := validNodes(events)
	if len(nodes) < 2 {
		return nil, warnings
	}

	idx := newCellIndex(nodes)
	seen := make(map[string]struct{})
	var clusters []domain.Cluster

	for i := range nodes {
		members := idx.neighbours(nodes, i)
		if len(members) < 2 {
			continue
		}
		key := membershipKey(members)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		clusters = append(clusters, summarize(events, nodes, nodes[i].pos, members))
	}
	return clusters, warnings
}

func validNodes(events []domain.SeismicEvent) ([]node, []domain.DataIntegrityWarning) {
	nodes := make([]node, 0, len(events))
	var warnings []domain.DataIntegrityWarning
	for i := range events {
		p, err := events[i].Point()
		if err != nil {
			warnings = append(warnings, domain.DataIntegrityWarning{EventID: events[i].ID, Reason: err.Error()})
			continue
		}
		nodes = append(nodes, node{pos: i, point: p, ll: p.LatLng()})
	}
	return nodes, warnings
}

// cellIndex buckets node indices by their level-indexLevel s2 cell.
type cellIndex struct {
	cells   map[s2.CellID][]int
	coverer *s2.RegionCoverer
	radius  float64
}

func newCellIndex(nodes []node) *cellIndex {
	idx := &cellIndex{
		cells: make(map[s2.CellID][]int),
		coverer: &s2.RegionCoverer{
			MinLevel: indexLevel,
			MaxLevel: indexLevel,
			MaxCells: 64,
		},
		radius: ThresholdKm,
	}
	for i, n := range nodes {
		id := s2.CellIDFromLatLng(n.ll).Parent(indexLevel)
		idx.cells[id] = append(idx.cells[id], i)
	}
	return idx
}

// neighbours returns the indices of every node within the threshold of
// nodes[i], i included, in ascending order.
func (idx *cellIndex) neighbours(nodes []node, i int) []int {
	center := s2.PointFromLatLng(nodes[i].ll)
	region := s2.CapFromCenterAngle(center, geo.AngleForKm(idx.radius*(1+capSlack)))

	var out []int
	for _, id := range idx.coverer.Covering(region) {
		for _, j := range idx.cells[id] {
			if geo.DistanceKm(nodes[i].point, nodes[j].point) <= idx.radius {
				out = append(out, j)
			}
		}
	}
	slices.Sort(out)
	return out
}

func membershipKey(members []int) string {
	var b strings.Builder
	for i, m := range members {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(m))
	}
	return b.String()
}

func summarize(events []domain.SeismicEvent, nodes []node, seed int, members []int) domain.Cluster {
	c := domain.Cluster{
		Seed:    events[seed].ID,
		Members: make([]domain.SeismicEvent, len(members)),
	}

	var sum s2.Point
	for k, m := range members {
		ev := events[nodes[m].pos]
		c.Members[k] = ev
		if k == 0 || ev.Magnitude > c.MaxMagnitude {
			c.MaxMagnitude = ev.Magnitude
		}
		sum = s2.Point{Vector: sum.Add(s2.PointFromLatLng(nodes[m].ll).Vector)}
	}

	centroid := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	c.Centroid = domain.Geo{Lat: centroid.Lat.Degrees(), Lon: centroid.Lng.Degrees()}
	if cell, err := h3.LatLngToCell(h3.NewLatLng(c.Centroid.Lat, c.Centroid.Lon), CellResolution); err == nil {
		c.Cell = cell.String()
	}
	return c
}

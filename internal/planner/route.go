package planner

import (
	"math"

	"hiberry/internal/model"
)

// MaxExactStops caps the permutation search. Larger batches fall back to
// nearest neighbour before any search starts.
const MaxExactStops = 10

// Stop is one location to visit. ID is opaque to the sequencer.
type Stop struct {
	ID       string
	Location model.Coordinate
	Sequence int
}

// Sequencer orders stops starting from start. The start point is not part
// of the result and Sequence is the 0-based position in the returned slice.
type Sequencer interface {
	Sequence(stops []Stop, start model.Coordinate) []Stop
}

// SequenceRoute orders stops with the default strategy.
func SequenceRoute(stops []Stop, start model.Coordinate) []Stop {
	return DefaultRules().Sequencer().Sequence(stops, start)
}

// Distance is the planar distance between two coordinates.
func Distance(a, b model.Coordinate) float64 {
	dLat := a.Latitude - b.Latitude
	dLon := a.Longitude - b.Longitude
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// PathLength is the open path length start -> stops[0] -> ... -> stops[n-1].
func PathLength(start model.Coordinate, stops []Stop) float64 {
	total := 0.0
	cur := start
	for _, s := range stops {
		total += Distance(cur, s.Location)
		cur = s.Location
	}
	return total
}

// NearestNeighbor repeatedly visits the closest unvisited stop. Ties go to
// the stop that came first in the input.
type NearestNeighbor struct {
	// TwoOptPasses runs segment reversal on the tour afterwards; 0 disables.
	TwoOptPasses int
}

func (nn NearestNeighbor) Sequence(stops []Stop, start model.Coordinate) []Stop {
	unvisited := append([]Stop(nil), stops...)
	out := make([]Stop, 0, len(stops))
	cur := start
	for len(unvisited) > 0 {
		best := 0
		bestDist := Distance(cur, unvisited[0].Location)
		for i := 1; i < len(unvisited); i++ {
			if d := Distance(cur, unvisited[i].Location); d < bestDist {
				best, bestDist = i, d
			}
		}
		next := unvisited[best]
		out = append(out, next)
		cur = next.Location
		unvisited = append(unvisited[:best], unvisited[best+1:]...)
	}
	if nn.TwoOptPasses > 0 {
		out = improve2Opt(start, out, nn.TwoOptPasses)
	}
	return numbered(out)
}

// Exact enumerates every visiting order and keeps the shortest. Among
// equally short tours the first in lexicographic index order wins.
type Exact struct {
	// MaxStops guards the factorial search; above it nearest neighbour is
	// used. 0 means MaxExactStops.
	MaxStops int
}

func (e Exact) Sequence(stops []Stop, start model.Coordinate) []Stop {
	limit := e.MaxStops
	if limit <= 0 || limit > MaxExactStops {
		limit = MaxExactStops
	}
	n := len(stops)
	if n > limit {
		return NearestNeighbor{}.Sequence(stops, start)
	}
	if n == 0 {
		return []Stop{}
	}

	best := math.Inf(1)
	bestOrder := make([]int, n)
	cur := make([]int, 0, n)
	used := make([]bool, n)
	var walk func(from model.Coordinate, length float64)
	walk = func(from model.Coordinate, length float64) {
		// partial paths only grow, so anything already at best cannot win
		if length >= best {
			return
		}
		if len(cur) == n {
			best = length
			copy(bestOrder, cur)
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			cur = append(cur, i)
			walk(stops[i].Location, length+Distance(from, stops[i].Location))
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	walk(start, 0)

	out := make([]Stop, n)
	for pos, idx := range bestOrder {
		out[pos] = stops[idx]
	}
	return numbered(out)
}

// Auto uses Exact for small batches and NearestNeighbor otherwise.
type Auto struct {
	ExactMaxStops int
	TwoOptPasses  int
}

func (a Auto) Sequence(stops []Stop, start model.Coordinate) []Stop {
	limit := a.ExactMaxStops
	if limit <= 0 {
		limit = DefaultExactMaxStops
	}
	if len(stops) <= limit {
		return Exact{MaxStops: limit}.Sequence(stops, start)
	}
	return NearestNeighbor{TwoOptPasses: a.TwoOptPasses}.Sequence(stops, start)
}

func numbered(stops []Stop) []Stop {
	for i := range stops {
		stops[i].Sequence = i
	}
	return stops
}

// improve2Opt reverses segments of the open tour while that shortens it.
// The start point stays fixed in front.
func improve2Opt(start model.Coordinate, tour []Stop, passes int) []Stop {
	best := append([]Stop(nil), tour...)
	bestDist := PathLength(start, best)
	n := len(best)
	for it := 0; it < passes; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				candidate := twoOptSwap(best, i, k)
				d := PathLength(start, candidate)
				if d+1e-12 < bestDist {
					best = candidate
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []Stop, i, k int) []Stop {
	out := make([]Stop, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

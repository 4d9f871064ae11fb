// Package planner implements driver assignment and route sequencing for
// the delivery day: sectors, capacity allocation, day/window eligibility,
// stop ordering and the per-shift scheduler.
package planner

import "hiberry/internal/model"

var (
	// DefaultOrigin splits the city into four sectors.
	DefaultOrigin = model.Coordinate{Latitude: 20.6783825, Longitude: -103.348088}
	// DefaultDepot is where every driver starts the morning shift.
	DefaultDepot = model.Coordinate{Latitude: 20.7257943, Longitude: -103.3792193}
)

const (
	DefaultShiftCapacity  = 32
	DefaultWindowCapacity = 64
	DefaultDayCapacity    = 128
	// DefaultExactMaxStops is the largest batch Auto sends to the exact search.
	DefaultExactMaxStops = 8
)

// Drivers is the fixed driver pool.
var Drivers = []int{1, 2}

// Rules holds every tunable of assignment and routing. The zero value is
// not usable; start from DefaultRules.
type Rules struct {
	Origin model.Coordinate
	Depot  model.Coordinate

	// ShiftCapacity is the ceiling per driver per window.
	ShiftCapacity int
	// WindowCapacity is the ceiling per window across both drivers.
	WindowCapacity int
	// DayCapacity is the ceiling for the whole date.
	DayCapacity int

	// DriverForSector maps a sector to its driver. Index sector+1 is the
	// overflow (peer) driver, so the table carries a wraparound slot at 5.
	DriverForSector [6]int

	ExactMaxStops int
	TwoOptPasses  int
}

// DefaultRules returns the production configuration.
func DefaultRules() Rules {
	return Rules{
		Origin:          DefaultOrigin,
		Depot:           DefaultDepot,
		ShiftCapacity:   DefaultShiftCapacity,
		WindowCapacity:  DefaultWindowCapacity,
		DayCapacity:     DefaultDayCapacity,
		DriverForSector: [6]int{0, 1, 2, 1, 2, 1},
		ExactMaxStops:   DefaultExactMaxStops,
	}
}

// Sequencer returns the route strategy these rules select.
func (r Rules) Sequencer() Sequencer {
	return Auto{ExactMaxStops: r.ExactMaxStops, TwoOptPasses: r.TwoOptPasses}
}

package planner

import "hiberry/internal/model"

// Assignment outcome reasons, also used as metric labels.
const (
	ReasonAssigned   = "assigned"
	ReasonPriority   = "priority"
	ReasonNoCapacity = "no_capacity"
	ReasonIneligible = "ineligible"
)

// Assignment explains one driver decision.
type Assignment struct {
	Driver int
	Sector Sector
	Reason string
}

// Assigned reports whether a driver was found.
func (a Assignment) Assigned() bool { return a.Driver > 0 }

// AssignDriver returns the driver for an order at loc, or 0 when the order
// cannot be taken for that date and window.
func (r Rules) AssignDriver(loc model.Coordinate, window model.DeliveryWindow, date model.Date, existing []model.Order, source model.OrderSource) int {
	return r.Decide(loc, window, date, existing, source).Driver
}

// Decide is AssignDriver with the reason attached.
func (r Rules) Decide(loc model.Coordinate, window model.DeliveryWindow, date model.Date, existing []model.Order, source model.OrderSource) Assignment {
	day := date.Weekday()
	sector := ClassifySector(loc, r.Origin)
	driver := r.AllocateDriver(existing, window, sector, source)

	if source.IsPriority() {
		return Assignment{Driver: driver, Sector: sector, Reason: ReasonPriority}
	}
	if driver == 0 {
		return Assignment{Sector: sector, Reason: ReasonNoCapacity}
	}
	if !Eligible(day, window, sector) {
		return Assignment{Sector: sector, Reason: ReasonIneligible}
	}
	return Assignment{Driver: driver, Sector: sector, Reason: ReasonAssigned}
}

// Eligible applies the weekly sector rotation. day is 0 for Monday.
//
//	Mon/Wed/Fri  morning: west   afternoon: east
//	Tue/Thu/Sat  morning: east   afternoon: west
//	Sunday       never
func Eligible(day int, window model.DeliveryWindow, sector Sector) bool {
	switch day {
	case 0, 2, 4:
		switch window {
		case model.Morning:
			return sector.IsWest()
		case model.Afternoon:
			return sector.IsEast()
		}
	case 1, 3, 5:
		switch window {
		case model.Morning:
			return sector.IsEast()
		case model.Afternoon:
			return sector.IsWest()
		}
	}
	return false
}

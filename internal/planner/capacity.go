package planner

import "hiberry/internal/model"

// AllocateDriver decides which driver an order in sector would take given
// the orders already placed on the same date. It returns 0 when the date
// or the window is saturated.
//
// Overflow goes to DriverForSector[sector+1]; with the default table that
// sends SouthEast back to driver 1.
func (r Rules) AllocateDriver(existing []model.Order, window model.DeliveryWindow, sector Sector, source model.OrderSource) int {
	if sector < SectorInvalid || sector > SouthEast {
		return 0
	}
	total := len(existing)
	if total < r.ShiftCapacity || source.IsPriority() {
		return r.DriverForSector[sector]
	}
	if total >= r.DayCapacity {
		return 0
	}

	windowOrders, northOrders := 0, 0
	northDriver := r.DriverForSector[NorthWest]
	for _, o := range existing {
		if o.DeliveryWindow != window {
			continue
		}
		windowOrders++
		if o.Driver == northDriver {
			northOrders++
		}
	}
	if windowOrders >= r.WindowCapacity {
		return 0
	}
	// Fewer than WindowCapacity in the window means at least one driver
	// has room; if it is not the north driver it is the peer.
	if northOrders < r.ShiftCapacity {
		return r.DriverForSector[sector]
	}
	return r.DriverForSector[sector+1]
}

package planner

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiberry/internal/model"
)

var (
	northwest = model.Coordinate{Latitude: 20.709747, Longitude: -103.380421}
	southwest = model.Coordinate{Latitude: 20.621087, Longitude: -103.405140}
	northeast = model.Coordinate{Latitude: 20.704608, Longitude: -103.316906}
	southeast = model.Coordinate{Latitude: 20.595247, Longitude: -103.315226}
)

// week of 2024-01-08 (Monday) .. 2024-01-14 (Sunday)
var week = []model.Date{"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13", "2024-01-14"}

func placed(n int, window model.DeliveryWindow, driver int) []model.Order {
	out := make([]model.Order, n)
	for i := range out {
		out[i] = model.Order{ID: fmt.Sprintf("o%d", i), DeliveryWindow: window, Driver: driver}
	}
	return out
}

func TestClassifySector(t *testing.T) {
	o := DefaultOrigin
	assert.Equal(t, NorthWest, ClassifySector(northwest, o))
	assert.Equal(t, SouthWest, ClassifySector(southwest, o))
	assert.Equal(t, NorthEast, ClassifySector(northeast, o))
	assert.Equal(t, SouthEast, ClassifySector(southeast, o))
}

func TestClassifySectorBoundaries(t *testing.T) {
	o := model.Coordinate{Latitude: 10, Longitude: 10}
	assert.Equal(t, NorthWest, ClassifySector(o, o), "origin itself")
	assert.Equal(t, NorthEast, ClassifySector(model.Coordinate{Latitude: 10, Longitude: 10.0001}, o))
	assert.Equal(t, SouthWest, ClassifySector(model.Coordinate{Latitude: 9.9999, Longitude: 10}, o))
	assert.Equal(t, SectorInvalid, ClassifySector(model.Coordinate{Latitude: math.NaN(), Longitude: 10}, o))
}

func TestAllocateDriverUnderFirstShiftCapacity(t *testing.T) {
	r := DefaultRules()
	existing := placed(31, model.Morning, 1)
	assert.Equal(t, 1, r.AllocateDriver(existing, model.Morning, NorthWest, model.SourceApp))
	assert.Equal(t, 2, r.AllocateDriver(existing, model.Morning, SouthWest, model.SourceApp))
	assert.Equal(t, 1, r.AllocateDriver(existing, model.Morning, NorthEast, model.SourceApp))
	assert.Equal(t, 2, r.AllocateDriver(existing, model.Morning, SouthEast, model.SourceApp))
	assert.Equal(t, 0, r.AllocateDriver(existing, model.Morning, SectorInvalid, model.SourceApp))
}

func TestAllocateDriverOverflowToPeer(t *testing.T) {
	r := DefaultRules()
	existing := placed(32, model.Morning, 1)
	cases := []struct {
		sector Sector
		want   int
	}{
		{NorthWest, 2},
		{SouthWest, 1},
		{NorthEast, 2},
		{SouthEast, 1}, // wraps to slot 5, which is driver 1 again
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, r.AllocateDriver(existing, model.Morning, tc.sector, model.SourceApp), tc.sector.String())
	}
}

func TestAllocateDriverNorthDriverHasRoom(t *testing.T) {
	r := DefaultRules()
	existing := placed(40, model.Morning, 2)
	assert.Equal(t, 1, r.AllocateDriver(existing, model.Morning, NorthWest, model.SourceApp))
	assert.Equal(t, 2, r.AllocateDriver(existing, model.Morning, SouthEast, model.SourceApp))
}

func TestAllocateDriverDaySaturated(t *testing.T) {
	r := DefaultRules()
	var existing []model.Order
	existing = append(existing, placed(32, model.Morning, 1)...)
	existing = append(existing, placed(32, model.Morning, 2)...)
	existing = append(existing, placed(32, model.Afternoon, 1)...)
	existing = append(existing, placed(32, model.Afternoon, 2)...)
	for _, w := range model.Windows {
		for s := NorthWest; s <= SouthEast; s++ {
			assert.Equal(t, 0, r.AllocateDriver(existing, w, s, model.SourceApp))
		}
	}
	for _, d := range week {
		assert.Equal(t, 0, r.AssignDriver(northwest, model.Morning, d, existing, model.SourceApp))
	}
}

func TestAllocateDriverWindowSaturatedBeforeDay(t *testing.T) {
	r := DefaultRules()
	var existing []model.Order
	existing = append(existing, placed(32, model.Morning, 1)...)
	existing = append(existing, placed(32, model.Morning, 2)...)
	existing = append(existing, placed(6, model.Afternoon, 1)...)
	require.Len(t, existing, 70)

	assert.Equal(t, 0, r.AllocateDriver(existing, model.Morning, NorthWest, model.SourceApp))
	assert.Equal(t, 1, r.AllocateDriver(existing, model.Afternoon, NorthWest, model.SourceApp))
}

func TestAllocateDriverPrioritySourceBypassesCapacity(t *testing.T) {
	r := DefaultRules()
	existing := placed(200, model.Morning, 1)
	assert.Equal(t, 2, r.AllocateDriver(existing, model.Morning, SouthEast, model.SourceStorefront))
	assert.Equal(t, 1, r.AllocateDriver(existing, model.Morning, NorthWest, model.SourceStorefront))
}

func TestAllocateDriverIsIdempotent(t *testing.T) {
	r := DefaultRules()
	existing := append(placed(20, model.Morning, 1), placed(20, model.Morning, 2)...)
	first := r.AllocateDriver(existing, model.Morning, SouthWest, model.SourceApp)
	second := r.AllocateDriver(existing, model.Morning, SouthWest, model.SourceApp)
	assert.Equal(t, first, second)
	assert.Len(t, existing, 40)
}

func TestAssignDriverEligibilityTable(t *testing.T) {
	r := DefaultRules()
	locations := map[Sector]model.Coordinate{NorthWest: northwest, SouthWest: southwest, NorthEast: northeast, SouthEast: southeast}
	ownDriver := map[Sector]int{NorthWest: 1, SouthWest: 2, NorthEast: 1, SouthEast: 2}
	west := map[Sector]bool{NorthWest: true, SouthWest: true}

	for day, date := range week {
		for sector, loc := range locations {
			for _, window := range model.Windows {
				var open bool
				switch {
				case day == 6:
					open = false
				case day%2 == 0 && window == model.Morning, day%2 == 1 && window == model.Afternoon:
					open = west[sector]
				default:
					open = !west[sector]
				}
				want := 0
				if open {
					want = ownDriver[sector]
				}
				got := r.AssignDriver(loc, window, date, nil, model.SourceApp)
				assert.Equal(t, want, got, "%s %s %q", date, sector, window)
			}
		}
	}
}

func TestAssignDriverMondayNorthWest(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, 1, r.AssignDriver(northwest, model.Morning, "2024-01-08", nil, model.SourceApp))
	assert.Equal(t, 0, r.AssignDriver(northwest, model.Afternoon, "2024-01-08", nil, model.SourceApp))

	// capacity would allow it, the rotation does not
	d := r.Decide(northwest, model.Afternoon, "2024-01-08", placed(10, model.Afternoon, 1), model.SourceApp)
	assert.Equal(t, ReasonIneligible, d.Reason)
	assert.False(t, d.Assigned())
}

func TestAssignDriverOverflowStillHonoursRotation(t *testing.T) {
	r := DefaultRules()
	existing := placed(32, model.Morning, 1)
	assert.Equal(t, 2, r.AssignDriver(northwest, model.Morning, "2024-01-08", existing, model.SourceApp))
	assert.Equal(t, 0, r.AssignDriver(northeast, model.Morning, "2024-01-08", existing, model.SourceApp))
}

func TestAssignDriverPrioritySourceIgnoresRotation(t *testing.T) {
	r := DefaultRules()
	d := r.Decide(northwest, model.Afternoon, "2024-01-14", nil, model.SourceStorefront)
	assert.Equal(t, 1, d.Driver)
	assert.Equal(t, ReasonPriority, d.Reason)
}

func TestAssignDriverNoCapacityReason(t *testing.T) {
	r := DefaultRules()
	d := r.Decide(northwest, model.Morning, "2024-01-08", placed(128, model.Afternoon, 2), model.SourceApp)
	assert.Equal(t, ReasonNoCapacity, d.Reason)
	assert.Equal(t, 0, d.Driver)
}

func TestRulesOverride(t *testing.T) {
	r := DefaultRules()
	r.ShiftCapacity = 2
	r.WindowCapacity = 4
	r.DayCapacity = 8
	r.Origin = model.Coordinate{}
	nw := model.Coordinate{Latitude: 1, Longitude: -1}

	assert.Equal(t, 1, r.AssignDriver(nw, model.Morning, "2024-01-08", placed(1, model.Morning, 1), model.SourceApp))
	assert.Equal(t, 2, r.AssignDriver(nw, model.Morning, "2024-01-08", placed(2, model.Morning, 1), model.SourceApp))
	assert.Equal(t, 0, r.AssignDriver(nw, model.Morning, "2024-01-08", placed(4, model.Morning, 1), model.SourceApp))
}

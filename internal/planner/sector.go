package planner

import "hiberry/internal/model"

// Sector is a quadrant relative to the origin.
type Sector int

const (
	SectorInvalid Sector = iota
	NorthWest
	SouthWest
	NorthEast
	SouthEast
)

func (s Sector) String() string {
	switch s {
	case NorthWest:
		return "northwest"
	case SouthWest:
		return "southwest"
	case NorthEast:
		return "northeast"
	case SouthEast:
		return "southeast"
	default:
		return "invalid"
	}
}

func (s Sector) IsWest() bool { return s == NorthWest || s == SouthWest }

func (s Sector) IsEast() bool { return s == NorthEast || s == SouthEast }

// ClassifySector places point in a quadrant around origin. Latitude equal
// to the origin counts as north, longitude equal to the origin as west.
// Only NaN input yields SectorInvalid.
func ClassifySector(point, origin model.Coordinate) Sector {
	north := point.Latitude >= origin.Latitude
	south := point.Latitude < origin.Latitude
	west := point.Longitude <= origin.Longitude
	east := point.Longitude > origin.Longitude
	switch {
	case north && west:
		return NorthWest
	case south && west:
		return SouthWest
	case north && east:
		return NorthEast
	case south && east:
		return SouthEast
	default:
		return SectorInvalid
	}
}

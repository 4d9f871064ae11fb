// Package geo resolves delivery addresses to coordinates.
package geo

import (
	"context"
	"errors"
	"strings"

	"hiberry/internal/model"
)

// ErrAddressNotFound is returned when the provider has no match.
var ErrAddressNotFound = errors.New("address not found")

// Geocoder resolves a free-form street address.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (model.Coordinate, error)
}

// LocalPoint is what Static answers in the local environment.
var LocalPoint = model.Coordinate{Latitude: 20.721722843875, Longitude: -103.370054309085}

// Static answers every non-empty address with the same point.
type Static struct {
	Point model.Coordinate
}

func NewStatic() Static { return Static{Point: LocalPoint} }

func (s Static) Resolve(ctx context.Context, address string) (model.Coordinate, error) {
	if strings.TrimSpace(address) == "" {
		return model.Coordinate{}, ErrAddressNotFound
	}
	return s.Point, nil
}

// Package geohash converts between geohash cells and the query geometries
// of the dfi package.
package geohash

import (
	"math"
	"sort"

	"github.com/generalsystem/dfi"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// MaxPrecision is the longest geohash, in characters, that is handled.
const MaxPrecision = 12

// MaxCells bounds the number of cells Cover returns.
const MaxCells = 100000

// edge is the tolerance at cell boundaries. It also keeps cells on the edge
// of the world inside the exclusive bounds of a dfi.BBox.
const edge = 1e-9

func validPrecision(precision int) error {
	if precision < 1 || precision > MaxPrecision {
		return errors.Wrapf(dfi.ErrInputValueOutOfBound, "precision %d not within [1, %d]", precision, MaxPrecision)
	}
	return nil
}

// BBox returns the bounding box of the cell hash.
func BBox(hash string) (*dfi.BBox, error) {
	if err := geohash.Validate(hash); err != nil {
		return nil, errors.Wrapf(dfi.ErrInputValue, "'%s': %v", hash, err)
	}
	box := geohash.BoundingBox(hash)
	return dfi.NewBBoxFromCorners(
		math.Max(box.MinLng, dfi.LongitudeMin+edge),
		math.Max(box.MinLat, dfi.LatitudeMin+edge),
		math.Min(box.MaxLng, dfi.LongitudeMax-edge),
		math.Min(box.MaxLat, dfi.LatitudeMax-edge),
	)
}

// Encode returns the geohash of p with precision characters.
func Encode(p dfi.Point, precision int) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := validPrecision(precision); err != nil {
		return "", err
	}
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, uint(precision)), nil
}

// Cover returns, in order, the hashes of the cells with precision
// characters that intersect b.
func Cover(b *dfi.BBox, precision int) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := validPrecision(precision); err != nil {
		return nil, err
	}
	sw := geohash.BoundingBox(geohash.EncodeWithPrecision(b.MinLat, b.MinLon, uint(precision)))
	width, height := sw.MaxLng-sw.MinLng, sw.MaxLat-sw.MinLat
	cols := int(math.Ceil((b.MaxLon-sw.MinLng)/width - edge))
	rows := int(math.Ceil((b.MaxLat-sw.MinLat)/height - edge))
	if cols*rows > MaxCells {
		return nil, errors.Wrapf(dfi.ErrInputValueOutOfBound, "%d cells needed to cover %v at precision %d", cols*rows, b, precision)
	}
	bound := b.Bound()
	seen := make(map[string]struct{}, cols*rows)
	hashes := make([]string, 0, cols*rows)
	for r := 0; r < rows; r++ {
		lat := sw.MinLat + (float64(r)+0.5)*height
		for c := 0; c < cols; c++ {
			lon := sw.MinLng + (float64(c)+0.5)*width
			h := geohash.EncodeWithPrecision(lat, lon, uint(precision))
			if !cellBound(h).Intersects(bound) {
				continue
			}
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				hashes = append(hashes, h)
			}
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func cellBound(hash string) orb.Bound {
	box := geohash.BoundingBox(hash)
	return orb.Bound{Min: orb.Point{box.MinLng, box.MinLat}, Max: orb.Point{box.MaxLng, box.MaxLat}}
}

package dfi

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// Coordinate bounds. Longitude and latitude bounds are exclusive.
const (
	LongitudeMin = -180.0
	LongitudeMax = 180.0
	LatitudeMin  = -90.0
	LatitudeMax  = 90.0
	AltitudeMin  = -math.MaxFloat64
	AltitudeMax  = math.MaxFloat64

	// MinVertices is the number of points in the smallest closed linear ring.
	MinVertices = 4
	bboxLength  = 4
)

// Geometry is a spatial filter for a query document.
type Geometry interface {
	Validate() error
	Build() (interface{}, error)
}

// Point is a vertex of a Polygon or a corner of a BBox.
type Point struct {
	Lon float64
	Lat float64
}

// NewPoint returns a validated Point.
func NewPoint(lon, lat float64) (Point, error) {
	p := Point{Lon: lon, Lat: lat}
	return p, p.Validate()
}

// Validate checks the longitude and latitude bounds.
func (p Point) Validate() error {
	if err := ValidateLongitude(p.Lon); err != nil {
		return err
	}
	return ValidateLatitude(p.Lat)
}

// Build returns the point as [lon, lat].
func (p Point) Build() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

func (p Point) String() string {
	return fmt.Sprintf("Point(%v, %v)", p.Lon, p.Lat)
}

// ValidateLongitude returns ErrLongitudeOutOfBounds unless lon is strictly
// between LongitudeMin and LongitudeMax.
func ValidateLongitude(lon float64) error {
	if !(LongitudeMin < lon && lon < LongitudeMax) {
		return errors.Wrapf(ErrLongitudeOutOfBounds, "longitude value '%v' not within (%v, %v)", lon, LongitudeMin, LongitudeMax)
	}
	return nil
}

// ValidateLatitude returns ErrLatitudeOutOfBounds unless lat is strictly
// between LatitudeMin and LatitudeMax.
func ValidateLatitude(lat float64) error {
	if !(LatitudeMin < lat && lat < LatitudeMax) {
		return errors.Wrapf(ErrLatitudeOutOfBounds, "latitude value '%v' not within (%v, %v)", lat, LatitudeMin, LatitudeMax)
	}
	return nil
}

// ValidateAltitude returns ErrAltitudeOutOfBounds unless alt is strictly
// between AltitudeMin and AltitudeMax.
func ValidateAltitude(alt float64) error {
	if !(AltitudeMin < alt && alt < AltitudeMax) {
		return errors.Wrapf(ErrAltitudeOutOfBounds, "altitude value '%v' not within (%v, %v)", alt, AltitudeMin, AltitudeMax)
	}
	return nil
}

// BBox is a 2D bounding box as defined in RFC 7946 section 5.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// NewBBoxFromCorners returns a validated BBox.
func NewBBoxFromCorners(minLon, minLat, maxLon, maxLat float64) (*BBox, error) {
	b := &BBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewBBoxFromList returns a validated BBox from a GeoJSON bbox array
// [minLon, minLat, maxLon, maxLat].
func NewBBoxFromList(bounds []float64) (*BBox, error) {
	if len(bounds) != bboxLength {
		return nil, errors.Wrapf(ErrBBoxValue, "%d given", len(bounds))
	}
	return NewBBoxFromCorners(bounds[0], bounds[1], bounds[2], bounds[3])
}

// Validate checks both corners and their ordering.
func (b *BBox) Validate() error {
	if b == nil {
		return ErrBBoxUndefined
	}
	if err := (Point{b.MinLon, b.MinLat}).Validate(); err != nil {
		return errors.Wrap(err, "min corner")
	}
	if err := (Point{b.MaxLon, b.MaxLat}).Validate(); err != nil {
		return errors.Wrap(err, "max corner")
	}
	if b.MinLon >= b.MaxLon {
		return errors.Wrapf(ErrBBoxLongitudeMismatch, "min_lon (%v) is >= max_lon (%v)", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return errors.Wrapf(ErrBBoxLatitudeMismatch, "min_lat (%v) is >= max_lat (%v)", b.MinLat, b.MaxLat)
	}
	return nil
}

// Build validates the BBox and formats it for a query document.
func (b *BBox) Build() (interface{}, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"type":   "BoundingBox",
		"bounds": []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat},
	}, nil
}

// Bound returns the box as an orb.Bound.
func (b *BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

func (b *BBox) String() string {
	return fmt.Sprintf("BBox([%v, %v, %v, %v])", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Polygon is a single linear ring as defined in RFC 7946 section 3.1.6.
// MultiPolygons and holes are not supported.
type Polygon struct {
	Points []Point
}

// NewPolygonFromGeoJSON parses a GeoJSON Polygon geometry and uses its outer
// ring.
func NewPolygonFromGeoJSON(data []byte) (*Polygon, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrapf(ErrInputValue, "'geojson' could not be parsed: %v", err)
	}
	switch head.Type {
	case "Polygon":
	case "FeatureCollection", "Feature", "MultiPolygon", "LineString", "Point":
		return nil, errors.Wrapf(ErrInputValue, "'geojson' is not a Polygon, found %s", head.Type)
	default:
		return nil, errors.Wrap(ErrInputValue, "'geojson' could not be parsed")
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, errors.Wrapf(ErrInputValue, "'geojson' could not be parsed: %v", err)
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil, ErrPolygonUndefined
	}
	return NewPolygonFromRing(poly[0])
}

// NewPolygonFromRing builds a validated Polygon from an orb ring.
func NewPolygonFromRing(ring orb.Ring) (*Polygon, error) {
	p := &Polygon{Points: make([]Point, 0, len(ring))}
	for i, pt := range ring {
		point, err := NewPoint(pt.Lon(), pt.Lat())
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		p.Points = append(p.Points, point)
	}
	return p.validated()
}

// NewPolygonFromPoints builds a validated Polygon. If geoJSONOrder is false each
// point is taken to hold (latitude, longitude) and the values are swapped.
func NewPolygonFromPoints(points []Point, geoJSONOrder bool) (*Polygon, error) {
	p := &Polygon{Points: make([]Point, 0, len(points))}
	for i, pt := range points {
		if !geoJSONOrder {
			pt = Point{Lon: pt.Lat, Lat: pt.Lon}
		}
		if err := pt.Validate(); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		p.Points = append(p.Points, pt)
	}
	return p.validated()
}

// NewPolygonFromRawCoords builds a validated Polygon from coordinate pairs.
// With geoJSONOrder true the pairs are [lon, lat], otherwise [lat, lon].
func NewPolygonFromRawCoords(coords [][2]float64, geoJSONOrder bool) (*Polygon, error) {
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lon: c[0], Lat: c[1]}
	}
	return NewPolygonFromPoints(points, geoJSONOrder)
}

// NewPolygonFromWKT parses a WKT POLYGON and uses its outer ring.
func NewPolygonFromWKT(text string) (*Polygon, error) {
	poly, err := wkt.UnmarshalPolygon(text)
	if err != nil {
		return nil, errors.Wrapf(ErrInputValue, "parsing wkt polygon: %v", err)
	}
	if len(poly) == 0 {
		return nil, ErrPolygonUndefined
	}
	return NewPolygonFromRing(poly[0])
}

func (p *Polygon) validated() (*Polygon, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the polygon is a closed linear ring.
func (p *Polygon) Validate() error {
	if p == nil || len(p.Points) == 0 {
		return ErrPolygonUndefined
	}
	if len(p.Points) < MinVertices {
		return errors.Wrapf(ErrLinearRing, "polygons should be linear rings with %d or more points, only %d found", MinVertices, len(p.Points))
	}
	if p.Points[0] != p.Points[len(p.Points)-1] {
		return errors.Wrap(ErrPolygonNotClosed, "first and last points are not identical")
	}
	return nil
}

// Build validates the polygon and formats it for a query document.
func (p *Polygon) Build() (interface{}, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	coords := make([][2]float64, len(p.Points))
	for i, pt := range p.Points {
		coords[i] = pt.Build()
	}
	return map[string]interface{}{
		"type":        "Polygon",
		"coordinates": coords,
	}, nil
}

// Orb returns the polygon as an orb.Polygon with a single ring.
func (p *Polygon) Orb() orb.Polygon {
	ring := make(orb.Ring, len(p.Points))
	for i, pt := range p.Points {
		ring[i] = orb.Point{pt.Lon, pt.Lat}
	}
	return orb.Polygon{ring}
}

// WKT returns the polygon in well known text.
func (p *Polygon) WKT() string {
	return wkt.MarshalString(p.Orb())
}

func (p *Polygon) String() string {
	return fmt.Sprintf("Polygon(%v)", p.Points)
}

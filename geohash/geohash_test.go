package geohash

import (
	"testing"

	"github.com/generalsystem/dfi"
	"github.com/pkg/errors"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		point     dfi.Point
		precision int
		exp       string
		expErr    error
	}{
		{name: "london", point: dfi.Point{Lon: -0.1275, Lat: 51.507222}, precision: 6, exp: "gcpvj0"},
		{name: "short", point: dfi.Point{Lon: -0.1275, Lat: 51.507222}, precision: 1, exp: "g"},
		{name: "bad precision", point: dfi.Point{Lon: 0, Lat: 0}, precision: 13, expErr: dfi.ErrInputValueOutOfBound},
		{name: "bad latitude", point: dfi.Point{Lon: 0, Lat: 91}, precision: 5, expErr: dfi.ErrLatitudeOutOfBounds},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hash, err := Encode(test.point, test.precision)
			if errors.Cause(err) != test.expErr {
				t.Fatalf("got %v, expected %v", err, test.expErr)
			}
			if hash != test.exp {
				t.Fatalf("unexpected hash %s, expected %s", hash, test.exp)
			}
		})
	}
}

func TestBBox(t *testing.T) {
	b, err := BBox("gcpvj0")
	if err != nil {
		t.Fatalf("getting bbox: %v", err)
	}
	if !(b.MinLon < -0.1275 && -0.1275 < b.MaxLon && b.MinLat < 51.507222 && 51.507222 < b.MaxLat) {
		t.Fatalf("cell does not contain its point: %v", b)
	}
	if _, err := BBox("0"); err != nil {
		t.Fatalf("cell on the edge of the world: %v", err)
	}
	if _, err := BBox("gcpvja"); errors.Cause(err) != dfi.ErrInputValue {
		t.Fatalf("expected invalid hash, got %v", err)
	}
}

func TestCover(t *testing.T) {
	cell, err := BBox("gcpvj")
	if err != nil {
		t.Fatalf("getting bbox: %v", err)
	}
	hashes, err := Cover(cell, 5)
	if err != nil {
		t.Fatalf("covering: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != "gcpvj" {
		t.Fatalf("a cell should cover itself, got %v", hashes)
	}

	hashes, err = Cover(cell, 6)
	if err != nil {
		t.Fatalf("covering: %v", err)
	}
	if len(hashes) != 32 {
		t.Fatalf("expected 32 child cells, got %d: %v", len(hashes), hashes)
	}
	for _, h := range hashes {
		if h[:5] != "gcpvj" {
			t.Fatalf("child %s outside of gcpvj", h)
		}
	}

	corner, err := dfi.NewBBoxFromCorners(179.99, 89.99, 179.999, 89.999)
	if err != nil {
		t.Fatalf("corner bbox: %v", err)
	}
	hashes, err = Cover(corner, 3)
	if err != nil {
		t.Fatalf("covering corner: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != "zzz" {
		t.Fatalf("expected only the corner cell, got %v", hashes)
	}

	world, err := dfi.NewBBoxFromCorners(-179, -89, 179, 89)
	if err != nil {
		t.Fatalf("world bbox: %v", err)
	}
	if _, err := Cover(world, 8); errors.Cause(err) != dfi.ErrInputValueOutOfBound {
		t.Fatalf("expected too many cells, got %v", err)
	}
}

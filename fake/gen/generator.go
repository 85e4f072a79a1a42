// Package gen generates repeatable random values for fake DFI data: skewed
// entity ids, coordinates inside a box and increasing timestamps.
package gen

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"hash"
	"math/rand"
	"time"
)

// Generator holds state for generating random data in certain distributions.
// It is not safe for concurrent use.
type Generator struct {
	r     *rand.Rand
	zs    map[int]*rand.Zipf
	times map[time.Time]time.Duration
	hsh   hash.Hash
}

// NewGenerator gets a new Generator. Two generators with the same seed
// produce the same values.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		r:     rand.New(rand.NewSource(seed)),
		zs:    make(map[int]*rand.Zipf),
		times: make(map[time.Time]time.Duration),
		hsh:   sha1.New(),
	}
}

// ID gets a zipfian random id of the given length (at most 32) from a set
// with the given cardinality, so that a few entities produce most records.
func (g *Generator) ID(length, cardinality int) string {
	if length > 32 {
		length = 32
	}
	val := g.Uint64(cardinality)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	_, _ = g.hsh.Write(b)
	hashed := g.hsh.Sum(nil)
	g.hsh.Reset()
	return base32.StdEncoding.EncodeToString(hashed)[:length]
}

// Uint64 gets a zipfian random uint64 in [0, cardinality).
func (g *Generator) Uint64(cardinality int) uint64 {
	if cardinality < 2 {
		return 0
	}
	z, ok := g.zs[cardinality]
	if !ok {
		// rand.Zipf generates values in [0, imax]
		imax := uint64(cardinality) - 1
		v := 0.05 * float64(imax)
		if v < 1.0 {
			v = 1.0
		}
		z = rand.NewZipf(g.r, 1.1, v, imax)
		g.zs[cardinality] = z
	}
	return z.Uint64()
}

// Float gets a uniform random float in [min, max).
func (g *Generator) Float(min, max float64) float64 {
	return min + g.r.Float64()*(max-min)
}

// Time returns a time increasing from the "from" time with a random delta of
// less than maxDelta.
func (g *Generator) Time(from time.Time, maxDelta time.Duration) time.Time {
	delta := g.times[from] + time.Duration(g.r.Uint64()%uint64(maxDelta))
	g.times[from] = delta
	return from.Add(delta)
}

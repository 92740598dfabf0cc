package engine

// Rand is the shared, reproducible random source. Every observer seeds it
// from the timestamp the log assigned to an action, so the stream (and the
// order it is drawn in) is part of the game rules.
//
// Algorithm, bit for bit:
//
//	state = splitmix64(uint64(key)); if state == 0 { state = 1 }
//	next:   x ^= x << 13; x ^= x >> 7; x ^= x << 17
//	float:  float64(next() >> 11) / 2^53
type Rand struct {
	state uint64
}

// NewRand returns the stream for key.
func NewRand(key int64) *Rand {
	s := splitmix64(uint64(key))
	if s == 0 {
		s = 1 // xorshift can't start at 0
	}
	return &Rand{state: s}
}

func splitmix64(z uint64) uint64 {
	z += 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func (r *Rand) next() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return x
}

// Float64 returns the next draw in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

// Die rolls one three-sided die (1, 2 or 3).
func (r *Rand) Die() int {
	return 1 + int(3*r.Float64())
}

// Shuffle permutes n elements with Fisher-Yates, consuming n-1 draws from
// the last index down to index 1.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i >= 1; i-- {
		j := int(r.Float64() * float64(i+1))
		swap(i, j)
	}
}

// shuffled returns a shuffled copy of in.
func shuffled[T any](r *Rand, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

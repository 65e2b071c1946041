package utils

import (
	"math/rand/v2"
	"time"
)

// NewRand creates a PCG-backed generator. A zero seed picks a time based one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// DeriveSeed returns an independent seed for the index-th stream of a run.
// Zero stays zero so time based seeding is preserved.
func DeriveSeed(base uint64, index int) uint64 {
	if base == 0 {
		return 0
	}
	// splitmix64 step
	z := base + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return z
}

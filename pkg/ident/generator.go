package ident

import (
    "math/rand/v2"
    "sync"
    "time"

    "github.com/cespare/xxhash/v2"
)

// Generator issues strictly increasing IDs for one principal. It is safe
// for concurrent use; callers share one instance per node.
type Generator struct {
    principal string
    nameHash  uint64
    start     time.Time
    base      uint64

    mu      sync.Mutex
    last    uint64
    counter uint16
    rng     *rand.Rand
}

// NewGenerator returns a generator for the named local principal.
func NewGenerator(principal string) *Generator {
    now := time.Now()
    seed := uint64(now.UnixNano())
    return &Generator{
        principal: principal,
        nameHash:  xxhash.Sum64String(principal) & 0xFFFFFF,
        start:     now,
        base:      uint64(now.UnixNano()),
        rng:       rand.New(rand.NewPCG(seed, xxhash.Sum64String(principal)^rand.Uint64())),
    }
}

// Principal returns the name the generator hashes into every ID.
func (g *Generator) Principal() string { return g.principal }

// New returns the next ID. Hi never repeats: when the clock has not moved
// past the previous value it is bumped by one.
func (g *Generator) New() ID {
    hi := g.base + uint64(time.Since(g.start))
    g.mu.Lock()
    if hi <= g.last { hi = g.last + 1 }
    g.last = hi
    g.counter++
    lo := g.nameHash<<40 | uint64(g.counter)<<24 | g.rng.Uint64()&0xFFFFFF
    g.mu.Unlock()
    return ID{Hi: hi, Lo: lo}
}

// PrincipalHash returns the 24-bit principal hash stored in id.
func PrincipalHash(id ID) uint32 { return uint32(id.Lo >> 40) }

// Package random returns 32-bit values for building unique identifiers.
//
// Values come from the first entropy source that works, tried in priority
// order: the platform CSPRNG, the kernel getrandom syscall (Linux only), a
// userspace library generator, and finally a time-seeded pseudo-random
// generator. The fallback is fine for uniqueness but must never be used for
// secrets.
package random

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Source is one entropy tier. Uint32 reports false when the source could not
// deliver a full value.
type Source interface {
	Name() string
	Uint32() (uint32, bool)
}

// Generator walks its sources in order and remembers the first one that
// succeeded, so later calls start there.
type Generator struct {
	sources  []Source
	selected atomic.Int32

	fallbackOnce sync.Once
	fallbackMu   sync.Mutex
	fallback     *mrand.Rand
	now          func() time.Time
}

// New returns a generator over the given sources. Nil sources are skipped;
// an empty list leaves only the fallback tier.
func New(sources ...Source) *Generator {
	g := &Generator{now: time.Now}
	for _, src := range sources {
		if src != nil {
			g.sources = append(g.sources, src)
		}
	}
	g.selected.Store(-1)
	return g
}

// Platform returns the sources available in this build, best first.
func Platform() []Source {
	sources := []Source{cryptoSource{}}
	if src := kernelSource(); src != nil {
		sources = append(sources, src)
	}
	return append(sources, uuidSource{})
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
)

// Default is the process-wide generator over Platform sources.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGen = New(Platform()...)
	})
	return defaultGen
}

// Uint32 draws from the process-wide generator.
func Uint32() uint32 {
	return Default().Uint32()
}

// Uint32 never fails and never blocks indefinitely.
func (g *Generator) Uint32() uint32 {
	start := int(g.selected.Load())
	if start < 0 {
		start = 0
	}
	for i := start; i < len(g.sources); i++ {
		if v, ok := g.sources[i].Uint32(); ok {
			g.selected.CompareAndSwap(-1, int32(i))
			return v
		}
	}
	return g.fallbackUint32()
}

// Selected names the source that served the first successful call, or
// "fallback" when none has.
func (g *Generator) Selected() string {
	i := int(g.selected.Load())
	if i < 0 || i >= len(g.sources) {
		return "fallback"
	}
	return g.sources[i].Name()
}

func (g *Generator) fallbackUint32() uint32 {
	g.fallbackOnce.Do(func() {
		seed := uint64(g.now().UnixNano())
		g.fallback = mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	})
	g.fallbackMu.Lock()
	defer g.fallbackMu.Unlock()
	return g.fallback.Uint32()
}

type cryptoSource struct{}

func (cryptoSource) Name() string { return "crypto/rand" }

func (cryptoSource) Uint32() (uint32, bool) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}

// uuidSource takes its bits from a random (version 4) UUID. Version and
// variant bits live in bytes 6 and 8, so the first four bytes are untouched.
type uuidSource struct{}

func (uuidSource) Name() string { return "uuid" }

func (uuidSource) Uint32() (uint32, bool) {
	id, err := uuid.NewRandom()
	if err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(id[:4]), true
}

package apply

import (
	"github.com/fruitflybrain/neuroarch/internal/errors"
)

// Kind is the entity kind a change-set describes.
type Kind string

const (
	KindNode Kind = "node"
	KindEdge Kind = "edge"
)

// Phase is one of the three change-set maps. Phases run in Phases order.
type Phase string

const (
	PhaseMod Phase = "mod"
	PhaseAdd Phase = "add"
	PhaseDel Phase = "del"
)

// Phases is the fixed commit order: mods, then adds, then dels.
var Phases = []Phase{PhaseMod, PhaseAdd, PhaseDel}

// DefaultMaxRetries is the retry budget handed to the store per chunk.
const DefaultMaxRetries = 100

// ChunkConfig bounds the number of statements per transaction.
//
// Node statements carry full property maps, edge statements also carry an
// endpoint lookup, so edges use smaller chunks.
type ChunkConfig struct {
	NodeMod int `mapstructure:"node_mod_chunk" yaml:"node_mod_chunk"`
	NodeAdd int `mapstructure:"node_add_chunk" yaml:"node_add_chunk"`
	NodeDel int `mapstructure:"node_del_chunk" yaml:"node_del_chunk"`
	EdgeMod int `mapstructure:"edge_mod_chunk" yaml:"edge_mod_chunk"`
	EdgeAdd int `mapstructure:"edge_add_chunk" yaml:"edge_add_chunk"`
	EdgeDel int `mapstructure:"edge_del_chunk" yaml:"edge_del_chunk"`

	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// DefaultChunkConfig returns 1000 statements per node chunk and 200 per edge chunk.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		NodeMod:    1000,
		NodeAdd:    1000,
		NodeDel:    1000,
		EdgeMod:    200,
		EdgeAdd:    200,
		EdgeDel:    200,
		MaxRetries: DefaultMaxRetries,
	}
}

// SmallChunkConfig keeps transactions short for stores under memory pressure.
func SmallChunkConfig() ChunkConfig {
	return ChunkConfig{
		NodeMod:    200,
		NodeAdd:    200,
		NodeDel:    500,
		EdgeMod:    50,
		EdgeAdd:    50,
		EdgeDel:    100,
		MaxRetries: DefaultMaxRetries,
	}
}

// LargeChunkConfig trades transaction size for throughput on bulk loads.
func LargeChunkConfig() ChunkConfig {
	return ChunkConfig{
		NodeMod:    5000,
		NodeAdd:    5000,
		NodeDel:    5000,
		EdgeMod:    1000,
		EdgeAdd:    1000,
		EdgeDel:    1000,
		MaxRetries: DefaultMaxRetries,
	}
}

// UniformChunkConfig uses size for every phase. Mostly for tests.
func UniformChunkConfig(size int) ChunkConfig {
	return ChunkConfig{
		NodeMod: size, NodeAdd: size, NodeDel: size,
		EdgeMod: size, EdgeAdd: size, EdgeDel: size,
		MaxRetries: DefaultMaxRetries,
	}
}

// SizeFor returns the chunk size of a kind and phase.
func (c ChunkConfig) SizeFor(kind Kind, phase Phase) int {
	switch {
	case kind == KindNode && phase == PhaseMod:
		return c.NodeMod
	case kind == KindNode && phase == PhaseAdd:
		return c.NodeAdd
	case kind == KindNode && phase == PhaseDel:
		return c.NodeDel
	case kind == KindEdge && phase == PhaseMod:
		return c.EdgeMod
	case kind == KindEdge && phase == PhaseAdd:
		return c.EdgeAdd
	case kind == KindEdge && phase == PhaseDel:
		return c.EdgeDel
	}
	return 500
}

// Validate rejects non-positive chunk sizes and a negative retry budget.
func (c ChunkConfig) Validate() error {
	for _, kind := range []Kind{KindNode, KindEdge} {
		for _, phase := range Phases {
			if n := c.SizeFor(kind, phase); n < 1 {
				return errors.ConfigErrorf("%s %s chunk size must be >= 1, got %d", kind, phase, n)
			}
		}
	}
	if c.MaxRetries < 0 {
		return errors.ConfigErrorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// chunks splits items into consecutive runs of at most size.
func chunks[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

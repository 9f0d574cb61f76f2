package config

import (
	"fmt"

	"github.com/sbl8/sigflow/blocks"
	"github.com/sbl8/sigflow/runtime"
)

// Flowgraph is an engine with its blocks wired as a config describes.
type Flowgraph struct {
	Engine *runtime.Engine
	// Blocks maps config names to the built processors.
	Blocks map[string]runtime.Processor
}

// Build validates c and constructs the blocks and connections it names.
func (c *Config) Build() (*Flowgraph, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := c.EngineOptions()
	fg := &Flowgraph{
		Engine: runtime.NewEngine(&opts),
		Blocks: make(map[string]runtime.Processor, len(c.Blocks)),
	}
	for _, bc := range c.Blocks {
		p, err := blocks.Build(fg.Engine.IDs(), bc.Kind, blocks.Params(bc.Params))
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", bc.Name, err)
		}
		if err := fg.Engine.Add(p); err != nil {
			return nil, fmt.Errorf("block %q: %w", bc.Name, err)
		}
		fg.Blocks[bc.Name] = p
	}
	for _, conn := range c.Connections {
		src, srcPort, _ := ParseEndpoint(conn.From)
		dst, dstPort, _ := ParseEndpoint(conn.To)
		if err := fg.Engine.Connect(fg.Blocks[src], srcPort, fg.Blocks[dst], dstPort); err != nil {
			return nil, fmt.Errorf("connect %s -> %s: %w", conn.From, conn.To, err)
		}
	}
	return fg, nil
}

// Package snowflake hands out time-ordered int64 IDs for handoff records.
package snowflake

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Generator wraps a snowflake node for one process.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator. nodeID must fit in 10 bits (0-1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextID returns a new unique ID.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

var (
	defaultGen *Generator
	once       sync.Once
	initErr    error
)

// Init sets up the process-wide generator. Later calls are no-ops.
func Init(nodeID int64) error {
	once.Do(func() {
		defaultGen, initErr = NewGenerator(nodeID)
	})
	return initErr
}

// Default returns the process-wide generator, initialising node 0 if needed.
func Default() *Generator {
	if err := Init(0); err != nil {
		panic(err)
	}
	return defaultGen
}

// ID generates an ID from the default generator.
func ID() int64 {
	return Default().NextID()
}

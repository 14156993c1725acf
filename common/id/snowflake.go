package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the snowflake node used for row ids. Node ids must be unique
// per running process when several instances share one database.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	if err != nil {
		return fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return nil
}

// New returns a time-ordered int64 id. Init must have been called.
func New() int64 {
	if node == nil {
		// tests and tools that never call Init get node 0
		_ = Init(0)
	}
	return node.Generate().Int64()
}

// cmd/container.go
//
// Process composition root: loads configuration from the environment and
// builds the memstore domain container. The memory engine itself has no
// HTTP surface (routing is an explicit external collaborator); this file
// only owns what a process needs to stand the engine up and tear it down.
package main

import (
	"context"

	"github.com/cortexdb/cortex/pkg/logx"
	"github.com/cortexdb/cortex/pkg/memstore/memstorecontainer"
)

// Container holds the process's single bounded-context container.
type Container struct {
	Memstore *memstorecontainer.Container
}

func NewContainer(ctx context.Context) *Container {
	logx.Info("🔧 Initializing application container...")

	cfg := memstorecontainer.LoadConfigFromEnv()
	mc, err := memstorecontainer.New(ctx, cfg)
	if err != nil {
		logx.Fatalf("Failed to initialize memstore container: %v", err)
	}

	logx.Info("✅ Application container initialized")
	return &Container{Memstore: mc}
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")
	c.Memstore.Cleanup()
	logx.Info("✅ Cleanup complete")
}

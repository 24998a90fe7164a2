// Package safety holds the FaultSafeIntent cell that the Health Monitor writes to and the Controller
// Loop reads from each tick. There is exactly one producer (the Health Monitor, per battery) and one
// consumer (that battery's controller tick), so a mutex-guarded last-write-wins cell is enough - no
// channel or queueing semantics are needed.
package safety

import (
	"sync"
	"time"
)

// Intent is the Health Monitor's current verdict on whether a battery must be held in FAULT_SAFE.
type Intent struct {
	SourceCode string
	Active     bool
	SinceTS    time.Time
	Reason     string
}

// Cell holds the latest Intent for a single battery.
type Cell struct {
	mu     sync.RWMutex
	intent Intent
}

// NewCell returns a Cell initialized to an inactive Intent.
func NewCell() *Cell {
	return &Cell{}
}

// Set replaces the current Intent. Called only by the Health Monitor.
func (c *Cell) Set(i Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intent = i
}

// Get returns the current Intent. Called by the Controller Loop at the start of each tick.
func (c *Cell) Get() Intent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.intent
}

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Calibration Manager
// ============================================================================

// Calibration holds the process-wide direction offset. Reads are lock-free
// (the offset sits in an atomic word as float bits); writes take the mutex
// and write through to the JSON document.
type Calibration struct {
	bits atomic.Uint64
	mu   sync.Mutex
	path string
}

type calibrationDoc struct {
	Offset float64 `json:"offset"`
}

// NewCalibration loads the persisted offset, defaulting to 0 when the
// document is missing or unreadable.
func NewCalibration(dataDir string) *Calibration {
	c := &Calibration{path: filepath.Join(dataDir, CalibrationFilename)}

	data, err := os.ReadFile(c.path)
	if err == nil {
		var doc calibrationDoc
		if json.Unmarshal(data, &doc) == nil && doc.Offset >= -180 && doc.Offset <= 180 {
			c.bits.Store(math.Float64bits(doc.Offset))
			fmt.Printf("🧭 Calibration offset loaded: %+.1f°\n", doc.Offset)
			return c
		}
		fmt.Printf("⚠️  Ignoring invalid calibration document at %s\n", c.path)
	}
	c.bits.Store(math.Float64bits(0))
	return c
}

// Offset returns the current offset in degrees.
func (c *Calibration) Offset() float64 {
	return math.Float64frombits(c.bits.Load())
}

// SetOffset validates, stores, and persists a new offset.
func (c *Calibration) SetOffset(offset float64) error {
	if offset < -180 || offset > 180 {
		return fmt.Errorf("calibration offset %.1f out of range [-180, 180]", offset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bits.Store(math.Float64bits(offset))

	data, err := json.MarshalIndent(calibrationDoc{Offset: offset}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Apply maps a raw stored direction to its calibrated value in [0, 360).
func (c *Calibration) Apply(rawDeg int) int {
	return int(math.Round(NormalizeDegrees(float64(rawDeg)+c.Offset()))) % 360
}

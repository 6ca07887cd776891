// Package scheduler runs the periodic background sweep named in §4.8 and
// §3's "recomputed ... by scheduler" lifecycle line: tier migration and
// decay recompute, on a fixed cadence, independent of any access path.
package scheduler

package metrics

import "strings"

// Value returns the current count for the label values.
func (c *CounterVec) Value(values ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[strings.Join(values, "\xff")]
}

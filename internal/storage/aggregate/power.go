package aggregate

import (
	"github.com/shopspring/decimal"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

// ComputePower derives one Power point per UTC day on which both channels
// have readings. The value is the float64 product mean(current) *
// mean(voltage), rounded half away from zero on its exact binary value to two
// decimals. Points are ordered by day.
func ComputePower(current, voltage []types.StoredReading) []types.PowerPoint {
	m := NewManager(false)
	m.ProcessBatch(types.ChannelCurrent, current)
	m.ProcessBatch(types.ChannelVoltage, voltage)

	return PowerFrom(m)
}

// PowerFrom derives Power points from an already populated manager.
func PowerFrom(m *Manager) []types.PowerPoint {
	days := m.Days()
	out := make([]types.PowerPoint, 0, len(days))

	for _, day := range days {
		c := m.Get(day, types.ChannelCurrent)
		v := m.Get(day, types.ChannelVoltage)
		if c == nil || v == nil || c.IsEmpty() || v.IsEmpty() {
			continue
		}

		out = append(out, types.PowerPoint{
			Time:  types.DayKey(day),
			Name:  types.PowerName,
			Value: formatPower(c.Mean() * v.Mean()),
		})
	}

	return out
}

// formatPower renders p with exactly two decimals. The product is rounded
// from its exact binary value, so 1.005 (stored just below) gives "1.00"
// and 0.125 gives "0.13".
func formatPower(p float64) string {
	return decimal.NewFromFloatWithExponent(p, -2).StringFixed(2)
}

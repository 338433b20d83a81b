package manager

import (
	"fmt"

	"synaptor/internal/status"
	"synaptor/internal/synapse"
)

// GetStatus reports the rank-level status record as a loose map, the
// same shape SetStatus accepts.
func (m *Manager) GetStatus() map[string]any {
	return map[string]any{
		"min_delay_ms":             m.timeBase.MS(m.minDelay),
		"max_delay_ms":             m.timeBase.MS(m.maxDelay),
		"resolution_ms":            m.timeBase.ResolutionMS,
		"keep_source_table":        m.keepSourceTable,
		"num_connections":          m.NumConnections(),
		"connection_rules":         m.rules.Names(),
		"synapse_models":           m.synapses.Names(),
		"have_connections_changed": m.haveChanged,
		"source_table_cleared":     m.IsSourceTableCleared(),
	}
}

// KernelRecord is GetStatus in typed form, for export.
func (m *Manager) KernelRecord() status.KernelRecord {
	return status.ConvertKernel(m.GetStatus())
}

// SetStatus applies the writable subset of the status record. Pinning
// the delay extrema requires both bounds in one call; they then override
// observed values, and later connects outside them fail.
func (m *Manager) SetStatus(rec map[string]any) error {
	minRaw, hasMin := rec["min_delay_ms"]
	maxRaw, hasMax := rec["max_delay_ms"]
	if hasMin != hasMax {
		return fmt.Errorf("%w: min_delay_ms and max_delay_ms must be set together", synapse.ErrBadParameter)
	}
	if hasMin {
		minMS, ok := status.AsFloat64(minRaw)
		if !ok {
			return fmt.Errorf("%w: min_delay_ms must be numeric", synapse.ErrBadParameter)
		}
		maxMS, ok := status.AsFloat64(maxRaw)
		if !ok {
			return fmt.Errorf("%w: max_delay_ms must be numeric", synapse.ErrBadParameter)
		}
		if err := m.pinDelayExtrema(minMS, maxMS); err != nil {
			return err
		}
	}
	if raw, ok := rec["keep_source_table"]; ok {
		keep, ok := status.AsBool(raw)
		if !ok {
			return fmt.Errorf("%w: keep_source_table must be a bool", synapse.ErrBadParameter)
		}
		m.keepSourceTable = keep
	}
	return nil
}

package status

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var ErrRecordVersionMismatch = errors.New("record version mismatch")

// RecordEnvelope wraps one exported status record with version and kind
// metadata so consumers can reject records they do not understand.
type RecordEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	CodecVersion  int             `json:"codec_version"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

// KernelRecord is the rank-level status snapshot.
type KernelRecord struct {
	MinDelayMS             float64  `json:"min_delay_ms"`
	MaxDelayMS             float64  `json:"max_delay_ms"`
	ResolutionMS           float64  `json:"resolution_ms"`
	KeepSourceTable        bool     `json:"keep_source_table"`
	NumConnections         uint64   `json:"num_connections"`
	ConnectionRules        []string `json:"connection_rules"`
	SynapseModels          []string `json:"synapse_models"`
	HaveConnectionsChanged bool     `json:"have_connections_changed"`
	SourceTableCleared     bool     `json:"source_table_cleared"`
}

// ConnectionRecord is one exported connection.
type ConnectionRecord struct {
	Source  uint64  `json:"source"`
	Target  uint64  `json:"target"`
	Thread  int     `json:"thread"`
	Synapse string  `json:"synapse"`
	LCID    uint32  `json:"lcid"`
	Weight  float64 `json:"weight"`
	DelayMS float64 `json:"delay_ms"`
}

func DefaultRecord(kind string) (any, error) {
	switch kind {
	case "kernel":
		return KernelRecord{}, nil
	case "connection":
		return ConnectionRecord{}, nil
	default:
		return nil, ErrUnsupportedKind
	}
}

func EncodeRecord(kind string, record any) ([]byte, error) {
	if _, err := DefaultRecord(kind); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env := RecordEnvelope{
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Kind:          kind,
		Payload:       payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	return data, nil
}

func DecodeRecord(data []byte) (string, any, error) {
	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	if env.SchemaVersion != SupportedSchemaVersion || env.CodecVersion != SupportedCodecVersion {
		return "", nil, fmt.Errorf("%w: schema=%d codec=%d", ErrRecordVersionMismatch, env.SchemaVersion, env.CodecVersion)
	}
	switch env.Kind {
	case "kernel":
		var rec KernelRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return "", nil, fmt.Errorf("unmarshal kernel payload: %w", err)
		}
		return env.Kind, rec, nil
	case "connection":
		var rec ConnectionRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return "", nil, fmt.Errorf("unmarshal connection payload: %w", err)
		}
		return env.Kind, rec, nil
	default:
		return "", nil, ErrUnsupportedKind
	}
}

// ConvertKernel fills a KernelRecord from a loose status map, keeping
// defaults for missing or ill-shaped fields and ignoring unknown keys.
func ConvertKernel(in map[string]any) KernelRecord {
	var out KernelRecord
	for key, val := range in {
		switch key {
		case "min_delay_ms":
			if f, ok := AsFloat64(val); ok {
				out.MinDelayMS = f
			}
		case "max_delay_ms":
			if f, ok := AsFloat64(val); ok {
				out.MaxDelayMS = f
			}
		case "resolution_ms":
			if f, ok := AsFloat64(val); ok {
				out.ResolutionMS = f
			}
		case "keep_source_table":
			if b, ok := AsBool(val); ok {
				out.KeepSourceTable = b
			}
		case "num_connections":
			if n, ok := AsUint64(val); ok {
				out.NumConnections = n
			}
		case "connection_rules":
			if xs, ok := AsStrings(val); ok {
				out.ConnectionRules = xs
			}
		case "synapse_models":
			if xs, ok := AsStrings(val); ok {
				out.SynapseModels = xs
			}
		case "have_connections_changed":
			if b, ok := AsBool(val); ok {
				out.HaveConnectionsChanged = b
			}
		case "source_table_cleared":
			if b, ok := AsBool(val); ok {
				out.SourceTableCleared = b
			}
		}
	}
	return out
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var ErrSnapshotVersionMismatch = errors.New("snapshot version mismatch")

// EncodeSnapshot serializes a snapshot, stamping the supported codec
// versions.
func EncodeSnapshot(snap NetworkSnapshot) ([]byte, error) {
	snap.SchemaVersion = SupportedSchemaVersion
	snap.CodecVersion = SupportedCodecVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	return data, nil
}

// DecodeSnapshot deserializes a snapshot, rejecting payloads written by
// a different codec.
func DecodeSnapshot(data []byte) (NetworkSnapshot, error) {
	var snap NetworkSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return NetworkSnapshot{}, err
	}
	if snap.SchemaVersion != SupportedSchemaVersion || snap.CodecVersion != SupportedCodecVersion {
		return NetworkSnapshot{}, fmt.Errorf("%w: schema=%d codec=%d", ErrSnapshotVersionMismatch, snap.SchemaVersion, snap.CodecVersion)
	}
	return snap, nil
}

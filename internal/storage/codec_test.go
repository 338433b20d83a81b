package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeSnapshotRoundTrip(t *testing.T) {
	snap := sampleSnapshot("s1", time.Unix(100, 0).UTC())
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != snap.ID || got.Network != snap.Network {
		t.Fatalf("header mismatch: %+v", got)
	}
	if got.SchemaVersion != SupportedSchemaVersion || got.CodecVersion != SupportedCodecVersion {
		t.Fatalf("versions not stamped: %+v", got)
	}
	if len(got.Connections) != 2 || got.Connections[1].DelayMS != 4.0 {
		t.Fatalf("connections mismatch: %+v", got.Connections)
	}
	if !got.CreatedAt.Equal(snap.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, snap.CreatedAt)
	}
}

func TestDecodeSnapshotVersionMismatch(t *testing.T) {
	snap := sampleSnapshot("s1", time.Unix(100, 0).UTC())
	snap.SchemaVersion = SupportedSchemaVersion + 1
	snap.CodecVersion = SupportedCodecVersion
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrSnapshotVersionMismatch) {
		t.Fatalf("expected ErrSnapshotVersionMismatch, got %v", err)
	}
}

func TestDecodeSnapshotGarbage(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("{")); err == nil {
		t.Fatal("expected decode failure")
	}
}

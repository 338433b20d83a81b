// Package targettable holds the compiled routing tables used during
// simulation: for every local neuron, its resolved outgoing targets. A
// simplified device variant covers targets that never leave the rank.
package targettable

import (
	"fmt"

	"synaptor/internal/model"
)

// Table maps each local neuron to its resolved outgoing targets:
// threads × local neurons × targets. Populated by the resolution
// protocol; read-only during simulation. Each thread partition is owned
// exclusively by its worker.
type Table struct {
	targets [][][]model.Target // [thread][lid][]
}

func New(threads int) (*Table, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", threads)
	}
	return &Table{targets: make([][][]model.Target, threads)}, nil
}

// Prepare sizes one thread's partition for its local neuron count,
// discarding previous content.
func (t *Table) Prepare(tid model.ThreadID, numLocal int) error {
	if int(tid) < 0 || int(tid) >= len(t.targets) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	t.targets[tid] = make([][]model.Target, numLocal)
	return nil
}

// Add files one resolved routing entry under the source neuron's
// (thread, lid). The resolution protocol inserts each received record
// exactly once.
func (t *Table) Add(tid model.ThreadID, lid model.LocalID, tgt model.Target) error {
	if int(tid) < 0 || int(tid) >= len(t.targets) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	if int(lid) >= len(t.targets[tid]) {
		return fmt.Errorf("local id %d out of range on thread %d", lid, tid)
	}
	t.targets[tid][lid] = append(t.targets[tid][lid], tgt)
	return nil
}

// Targets is the fan-out list of one local neuron.
func (t *Table) Targets(tid model.ThreadID, lid model.LocalID) []model.Target {
	if int(tid) < 0 || int(tid) >= len(t.targets) || int(lid) >= len(t.targets[tid]) {
		return nil
	}
	return t.targets[tid][lid]
}

// Clear drops one thread's partition, for wholesale restructuring.
func (t *Table) Clear(tid model.ThreadID) {
	if int(tid) < 0 || int(tid) >= len(t.targets) {
		return
	}
	t.targets[tid] = nil
}

// DeviceTable routes the always-local device paths: the device targets
// of each local neuron, and the neuron targets of each local device.
// Both directions bypass the resolution protocol.
type DeviceTable struct {
	toDevice   [][][]model.Target // [thread][source neuron lid][]
	fromDevice [][][]model.Target // [thread][source device ldid][]
}

func NewDeviceTable(threads int) (*DeviceTable, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", threads)
	}
	return &DeviceTable{
		toDevice:   make([][][]model.Target, threads),
		fromDevice: make([][][]model.Target, threads),
	}, nil
}

func grow(part [][]model.Target, lid model.LocalID) [][]model.Target {
	for int(lid) >= len(part) {
		part = append(part, nil)
	}
	return part
}

// AddToDevice records a device target of a local neuron. The target's
// LCID addresses the device-connection storage, not the primary arrays.
func (d *DeviceTable) AddToDevice(tid model.ThreadID, sourceLID model.LocalID, tgt model.Target) error {
	if int(tid) < 0 || int(tid) >= len(d.toDevice) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	d.toDevice[tid] = grow(d.toDevice[tid], sourceLID)
	d.toDevice[tid][sourceLID] = append(d.toDevice[tid][sourceLID], tgt)
	return nil
}

// AddFromDevice records a neuron target of a local device.
func (d *DeviceTable) AddFromDevice(tid model.ThreadID, deviceLID model.LocalID, tgt model.Target) error {
	if int(tid) < 0 || int(tid) >= len(d.fromDevice) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	d.fromDevice[tid] = grow(d.fromDevice[tid], deviceLID)
	d.fromDevice[tid][deviceLID] = append(d.fromDevice[tid][deviceLID], tgt)
	return nil
}

func (d *DeviceTable) ToDevice(tid model.ThreadID, sourceLID model.LocalID) []model.Target {
	if int(tid) < 0 || int(tid) >= len(d.toDevice) || int(sourceLID) >= len(d.toDevice[tid]) {
		return nil
	}
	return d.toDevice[tid][sourceLID]
}

func (d *DeviceTable) FromDevice(tid model.ThreadID, deviceLID model.LocalID) []model.Target {
	if int(tid) < 0 || int(tid) >= len(d.fromDevice) || int(deviceLID) >= len(d.fromDevice[tid]) {
		return nil
	}
	return d.fromDevice[tid][deviceLID]
}

// Clear drops one thread's device routing, for wholesale restructuring.
func (d *DeviceTable) Clear(tid model.ThreadID) {
	if int(tid) < 0 || int(tid) >= len(d.toDevice) {
		return
	}
	d.toDevice[tid] = nil
	d.fromDevice[tid] = nil
}

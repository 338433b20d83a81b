package node

import (
	"fmt"

	"synaptor/internal/model"
)

// Location is the ownership record of one node: which rank and thread it
// lives on and its dense index there. Devices have their own local id
// space per thread.
type Location struct {
	Rank   model.Rank
	Thread model.ThreadID
	LID    model.LocalID
	Device bool
}

// Directory maps global ids to owners for one rank. Local nodes are held
// as objects; remote nodes only as locations. The directory is populated
// during network construction and read-only afterwards.
type Directory struct {
	rank    model.Rank
	owners  map[model.GlobalID]Location
	neurons [][]Node // [thread][lid]
	devices [][]Node // [thread][local device id]
}

func NewDirectory(rank model.Rank, threads int) (*Directory, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", threads)
	}
	return &Directory{
		rank:    rank,
		owners:  make(map[model.GlobalID]Location),
		neurons: make([][]Node, threads),
		devices: make([][]Node, threads),
	}, nil
}

func (d *Directory) Rank() model.Rank { return d.rank }

func (d *Directory) Threads() int { return len(d.neurons) }

// AddLocal registers a node living on this rank and returns its dense
// local id on the given thread. Devices are registered on every thread
// under the same local id, so device connections made on any thread
// resolve a thread-local entry; the object itself is shared.
func (d *Directory) AddLocal(tid model.ThreadID, n Node) (model.LocalID, error) {
	if err := d.checkAdd(tid, n.GID()); err != nil {
		return 0, err
	}
	device := !n.HasInputRouting()
	var lid model.LocalID
	if device {
		lid = model.LocalID(len(d.devices[tid]))
		for t := range d.devices {
			d.devices[t] = append(d.devices[t], n)
		}
	} else {
		lid = model.LocalID(len(d.neurons[tid]))
		d.neurons[tid] = append(d.neurons[tid], n)
	}
	d.owners[n.GID()] = Location{Rank: d.rank, Thread: tid, LID: lid, Device: device}
	return lid, nil
}

// AddRemote registers the location of a node owned by another rank.
func (d *Directory) AddRemote(gid model.GlobalID, loc Location) error {
	if gid == model.InvalidGlobalID {
		return fmt.Errorf("global id is required")
	}
	if loc.Rank == d.rank {
		return fmt.Errorf("node %d is local to rank %d, use AddLocal", gid, d.rank)
	}
	if _, exists := d.owners[gid]; exists {
		return fmt.Errorf("duplicate global id: %d", gid)
	}
	d.owners[gid] = loc
	return nil
}

func (d *Directory) checkAdd(tid model.ThreadID, gid model.GlobalID) error {
	if gid == model.InvalidGlobalID {
		return fmt.Errorf("global id is required")
	}
	if int(tid) < 0 || int(tid) >= len(d.neurons) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	if _, exists := d.owners[gid]; exists {
		return fmt.Errorf("duplicate global id: %d", gid)
	}
	return nil
}

// Owner resolves a global id to its location, local or remote.
func (d *Directory) Owner(gid model.GlobalID) (Location, bool) {
	loc, ok := d.owners[gid]
	return loc, ok
}

// Local returns the neuron object at (thread, lid) on this rank.
func (d *Directory) Local(tid model.ThreadID, lid model.LocalID) (Node, bool) {
	if int(tid) < 0 || int(tid) >= len(d.neurons) || int(lid) >= len(d.neurons[tid]) {
		return nil, false
	}
	return d.neurons[tid][lid], true
}

// LocalDevice returns the device object at (thread, local device id).
func (d *Directory) LocalDevice(tid model.ThreadID, ldid model.LocalID) (Node, bool) {
	if int(tid) < 0 || int(tid) >= len(d.devices) || int(ldid) >= len(d.devices[tid]) {
		return nil, false
	}
	return d.devices[tid][ldid], true
}

// GIDOf maps a local neuron back to its global id.
func (d *Directory) GIDOf(tid model.ThreadID, lid model.LocalID) (model.GlobalID, bool) {
	n, ok := d.Local(tid, lid)
	if !ok {
		return model.InvalidGlobalID, false
	}
	return n.GID(), true
}

// LocalCount is the number of neurons hosted on a thread of this rank.
func (d *Directory) LocalCount(tid model.ThreadID) int {
	if int(tid) < 0 || int(tid) >= len(d.neurons) {
		return 0
	}
	return len(d.neurons[tid])
}

// DeviceCount is the number of devices hosted on a thread of this rank.
func (d *Directory) DeviceCount(tid model.ThreadID) int {
	if int(tid) < 0 || int(tid) >= len(d.devices) {
		return 0
	}
	return len(d.devices[tid])
}

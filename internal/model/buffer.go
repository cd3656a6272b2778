package model

// Device identifies the memory space a Buffer lives in.
type Device int

const (
	// CPU is host memory.
	CPU Device = iota
	// GPU is device memory, disambiguated further by DeviceID.
	GPU
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Buffer is an owned, device-aware byte buffer (design notes §9:
// "a tagged value type ... is recommended over raw pointer pairs; it
// centralizes device-aware free").
//
// Ownership transfers with the value: whoever holds a Buffer is
// responsible for calling Free exactly once, or for handing it to a
// function (the evaluate stage's device migration, a Save write) that
// consumes it on their behalf.
type Buffer struct {
	Device   Device
	DeviceID int
	Data     []byte
	Size     int
	freed    bool
}

// NewCPUBuffer wraps data as a CPU-resident, owned Buffer.
func NewCPUBuffer(data []byte) Buffer {
	return Buffer{Device: CPU, DeviceID: 0, Data: data, Size: len(data)}
}

// SameDevice reports whether two buffers live in the same memory space
// (same Device and, for GPU, same DeviceID).
func (b Buffer) SameDevice(device Device, deviceID int) bool {
	if b.Device != device {
		return false
	}
	if device == GPU && b.DeviceID != deviceID {
		return false
	}
	return true
}

// Free releases the buffer's backing storage. Safe to call at most once;
// a double-free is a programmer error and panics, matching the open
// question in design notes §9 about leaked/double-freed column buffers
// in the reference implementation.
func (b *Buffer) Free() {
	if b.freed {
		panic("model: double free of buffer")
	}
	b.freed = true
	b.Data = nil
}

// Freed reports whether Free has already been called.
func (b Buffer) Freed() bool {
	return b.freed
}

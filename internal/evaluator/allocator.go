package evaluator

import "github.com/e7canasta/videobatch/internal/model"

// Allocator is the device-memory allocator the evaluate worker calls
// on when migrating a buffer across device boundaries. Concrete
// allocators (CUDA, ROCm, ...) are out of scope; this interface is
// the boundary.
type Allocator interface {
	// Alloc reserves size bytes on device/deviceID and returns a Buffer
	// ready to receive a copy. It must return enginerr.DeviceOOM-kind
	// errors on allocation failure.
	Alloc(device model.Device, deviceID, size int) (model.Buffer, error)

	// Copy copies src's bytes into dst. Both buffers must already be
	// allocated with dst.Size >= src.Size; src's device may differ from
	// dst's (a cross-device copy) or match (an intra-device copy).
	Copy(dst *model.Buffer, src model.Buffer) error
}

// HostAllocator is a CPU-memory allocator usable for any device tag:
// it treats every device as addressable host memory, which is correct
// for CPU-only evaluator chains and for tests that don't have real GPU
// hardware to migrate onto. A real deployment plugs in a CUDA/ROCm
// Allocator instead; the evaluate worker is written against the
// interface, not this implementation.
type HostAllocator struct{}

func (HostAllocator) Alloc(device model.Device, deviceID, size int) (model.Buffer, error) {
	return model.Buffer{Device: device, DeviceID: deviceID, Data: make([]byte, size), Size: size}, nil
}

func (HostAllocator) Copy(dst *model.Buffer, src model.Buffer) error {
	n:= copy(dst.Data, src.Data)
	dst.Size = n
	return nil
}

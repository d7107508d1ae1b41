// Package transport specifies the contract an NBD adapter drives the
// engine through (spec §6 External Interfaces). Attaching to a kernel
// NBD device node is out of scope for this core; this package carries
// only the Contract every adapter consumes and a Loopback reference
// implementation used by local tooling and integration tests in place
// of a real kernel attachment.
package transport

import "qbd/device"

// Contract is the set of operations a transport adapter drives the
// engine through. *device.Device satisfies it directly.
type Contract interface {
	Read(offset uint64, length uint32) ([]byte, error)
	Write(offset uint64, data []byte) error
	Flush() error
	Trim(offset uint64, length uint32) error
	Size() uint64
}

var _ Contract = (*device.Device)(nil)

// Loopback drives a Contract in-process, standing in for a kernel NBD
// attachment. Useful for provisioning tools and tests that want to
// exercise the engine end to end without a transport.
type Loopback struct {
	dev Contract
}

// NewLoopback wraps dev for in-process use.
func NewLoopback(dev Contract) *Loopback {
	return &Loopback{dev: dev}
}

func (l *Loopback) Read(offset uint64, length uint32) ([]byte, error) {
	return l.dev.Read(offset, length)
}

func (l *Loopback) Write(offset uint64, data []byte) error {
	return l.dev.Write(offset, data)
}

func (l *Loopback) Flush() error {
	return l.dev.Flush()
}

func (l *Loopback) Trim(offset uint64, length uint32) error {
	return l.dev.Trim(offset, length)
}

func (l *Loopback) Size() uint64 {
	return l.dev.Size()
}

// Disconnect performs a final flush; the engine that owns dev's file
// handles is responsible for closing them afterward (spec §6:
// "disconnect() — engine performs flush() then releases file handles").
func (l *Loopback) Disconnect() error {
	return l.dev.Flush()
}

// Package dispatch defines and provides a reference implementation of
// the collaborator contract the core subsystems (handle, databuffer,
// scripthost) consume but never implement themselves: send a message to
// a handle, install a handle's callback, run a named command against a
// handle's owning context, and report an error associated with a
// handle.
package dispatch

// Envelope is the message-envelope contract: bit-exact at the dispatcher
// boundary, opaque to the core subsystems beyond type/session/source/
// payload.
type Envelope struct {
	Type     uint8
	Session  int
	Payload  []byte
	DontCopy bool
}

// Handler is a service's installed message callback.
type Handler func(msgType uint8, session int, source uint32, payload []byte, dontCopy bool)

// Dispatcher is the host environment's collaborator contract that a
// ScriptServiceHost consumes: send, callback, command, error.
type Dispatcher interface {
	// Send delivers msg from source to dest's mailbox.
	Send(source, dest uint32, msg Envelope) error

	// Callback installs fn as handle's message callback, replacing any
	// previous one.
	Callback(handle uint32, fn Handler)

	// Command runs a named, synchronous operation against handle's
	// owning context (REG, GETENV, EXIT, ...). ok is false for an
	// unrecognized op.
	Command(handle uint32, op, arg string) (result string, ok bool)

	// Errorf reports an error associated with handle through the host
	// environment's diagnostic channel.
	Errorf(handle uint32, format string, args ...interface{})
}

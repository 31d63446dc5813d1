package hub

type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

// Frame is one outbound WebSocket message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

func TextFrame(b []byte) Frame   { return Frame{Kind: FrameText, Data: b} }
func BinaryFrame(b []byte) Frame { return Frame{Kind: FrameBinary, Data: b} }

// Peer is a room member as seen by the hub. Send must not block; a
// non-nil error means the peer is gone or cannot keep up and will be
// evicted.
type Peer interface {
	ID() string
	Send(f Frame) error
	Close() error
}

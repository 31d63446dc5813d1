package loadtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", k)
	}
}

// Op is one edit on the shared ordered collection of a room. SentAt is the
// sender's clock in unix nanoseconds; harness clients share one clock, so
// receivers measure relay latency directly.
type Op struct {
	Kind   OpKind  `cbor:"1,keyasint" json:"kind"`
	ID     string  `cbor:"2,keyasint" json:"id"`
	Index  int     `cbor:"3,keyasint" json:"index"`
	X      float64 `cbor:"4,keyasint,omitempty" json:"x,omitempty"`
	Y      float64 `cbor:"5,keyasint,omitempty" json:"y,omitempty"`
	Client int     `cbor:"6,keyasint" json:"client"`
	SentAt int64   `cbor:"7,keyasint" json:"sentAt"`
}

var errNotAnOp = errors.New("frame is not a harness op")

var cborEnc, cborDec = func() (cbor.EncMode, cbor.DecMode) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return em, dm
}()

// encodeOp returns the websocket message type and payload for op.
func encodeOp(mode Mode, op Op) (int, []byte, error) {
	if mode == ModeStructured {
		comps, err := json.Marshal([]Op{op})
		if err != nil {
			return 0, nil, err
		}
		data, err := json.Marshal(struct {
			Type       string          `json:"type"`
			Components json.RawMessage `json:"components"`
		}{"components-update", comps})
		return websocket.TextMessage, data, err
	}
	data, err := cborEnc.Marshal(op)
	return websocket.BinaryMessage, data, err
}

// decodeOp understands both encodings; text frames that are not a
// components-update carrying an op yield errNotAnOp.
func decodeOp(mt int, data []byte) (Op, error) {
	var op Op
	if mt == websocket.BinaryMessage {
		if err := cborDec.Unmarshal(data, &op); err != nil {
			return Op{}, fmt.Errorf("decode cbor op: %w", err)
		}
		if op.Kind == 0 {
			return Op{}, errNotAnOp
		}
		return op, nil
	}

	var env struct {
		Type       string `json:"type"`
		Components []Op   `json:"components"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Op{}, fmt.Errorf("decode json op: %w", err)
	}
	if env.Type != "components-update" || len(env.Components) != 1 || env.Components[0].Kind == 0 {
		return Op{}, errNotAnOp
	}
	return env.Components[0], nil
}

// collection is a client's replica of the room's ordered component list.
// Replicas are only approximately convergent; the harness measures the
// relay, not merge semantics.
type collection struct {
	ids []string
}

// next picks a random op applicable to the current replica and applies it.
func (c *collection) next(rng *rand.Rand, client int, at time.Time) Op {
	kind := OpKind(rng.IntN(3) + 1)
	if len(c.ids) == 0 {
		kind = OpInsert
	}
	op := Op{Kind: kind, Client: client, SentAt: at.UnixNano()}
	switch kind {
	case OpInsert:
		op.ID = uuid.NewString()
		op.Index = rng.IntN(len(c.ids) + 1)
		op.X, op.Y = rng.Float64()*800, rng.Float64()*600
	case OpUpdate:
		op.Index = rng.IntN(len(c.ids))
		op.ID = c.ids[op.Index]
		op.X, op.Y = rng.Float64()*800, rng.Float64()*600
	case OpDelete:
		op.Index = rng.IntN(len(c.ids))
		op.ID = c.ids[op.Index]
	}
	c.apply(op)
	return op
}

// apply integrates a local or remote op. Deletes and updates address
// the element by id; the index is only a hint.
func (c *collection) apply(op Op) {
	switch op.Kind {
	case OpInsert:
		if c.indexOf(op.ID) >= 0 {
			return
		}
		i := min(max(op.Index, 0), len(c.ids))
		c.ids = append(c.ids, "")
		copy(c.ids[i+1:], c.ids[i:])
		c.ids[i] = op.ID
	case OpDelete:
		if i := c.indexOf(op.ID); i >= 0 {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
		}
	case OpUpdate:
	}
}

func (c *collection) indexOf(id string) int {
	for i, v := range c.ids {
		if v == id {
			return i
		}
	}
	return -1
}

func (c *collection) len() int { return len(c.ids) }

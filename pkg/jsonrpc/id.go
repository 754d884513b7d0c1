package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID is a JSON-RPC request id: either an integer or a string, chosen by
// the sender. The zero ID is "no id" and never appears on the wire.
//
// The raw JSON scalar is kept verbatim so that an id received from an
// agent round-trips byte-for-byte, and so integer 1 and string "1" stay
// distinct when used as pending-table keys.
type ID struct {
	raw json.RawMessage
}

// Int64ID returns an integer id.
func Int64ID(n int64) ID {
	return ID{raw: json.RawMessage(strconv.FormatInt(n, 10))}
}

// StringID returns a string id.
func StringID(s string) ID {
	raw, _ := json.Marshal(s)
	return ID{raw: raw}
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return len(id.raw) == 0
}

// Key returns the exact raw JSON of the id, suitable as a map key.
func (id ID) Key() string {
	return string(id.raw)
}

// Int64 returns the id as an integer if it is one.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id.raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String returns the raw JSON text of the id, for logs and error messages.
func (id ID) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return string(id.raw)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero request id")
	}
	return id.raw, nil
}

// UnmarshalJSON accepts integers and strings. Fractional numbers, bools,
// null, arrays and objects are rejected: the protocol ids a channel can
// correlate on are scalars only.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty request id")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid string request id: %w", err)
		}
		*id = StringID(s)
		return nil
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("request id must be an integer or a string, got %q", data)
		}
		*id = Int64ID(n)
		return nil
	}
}

// IDSource yields ids for outbound requests. Implementations must be safe
// for concurrent use.
type IDSource interface {
	Next() ID
}

type int64Source struct {
	next atomic.Int64
}

// NewInt64Source returns the default id source: a monotonically
// increasing integer counter starting at 1.
func NewInt64Source() IDSource {
	return &int64Source{}
}

func (s *int64Source) Next() ID {
	return Int64ID(s.next.Add(1))
}

type uuidSource struct{}

// NewUUIDSource returns an id source producing random string ids. Useful
// when ids must stay unique across channel restarts, e.g. for replay
// logs.
func NewUUIDSource() IDSource {
	return uuidSource{}
}

func (uuidSource) Next() ID {
	return StringID(uuid.NewString())
}

package capture

// Payload is the typed payload attached to a raw marker row. The set of
// payload shapes is closed but extensible: shapes the core inspects get a
// concrete struct, everything else is carried as a GenericPayload.
type Payload interface {
	// Type returns the schema name the payload was declared with.
	Type() string
	// Field returns a named payload field for label rendering and search.
	Field(key string) (any, bool)
}

// WindowIDer is implemented by payloads associated with a page via an
// inner window id.
type WindowIDer interface {
	WindowID() uint64
}

// Numberer is implemented by payloads exposing named numeric fields, used by
// schema-declared custom tracks.
type Numberer interface {
	Number(key string) (float64, bool)
}

// TracingPayload is the payload of generic tracing markers.
type TracingPayload struct {
	Cat           string
	InnerWindowID uint64
}

func (p *TracingPayload) Type() string { return "tracing" }

func (p *TracingPayload) WindowID() uint64 { return p.InnerWindowID }

func (p *TracingPayload) Field(key string) (any, bool) {
	switch key {
	case "category":
		return p.Cat, true
	}
	return nil, false
}

// TextPayload carries a free-form text detail.
type TextPayload struct {
	Name          string
	InnerWindowID uint64
}

func (p *TextPayload) Type() string { return "Text" }

func (p *TextPayload) WindowID() uint64 { return p.InnerWindowID }

func (p *TextPayload) Field(key string) (any, bool) {
	switch key {
	case "name":
		return p.Name, true
	}
	return nil, false
}

// IPCSide distinguishes the two endpoints of an IPC message.
type IPCSide string

const (
	IPCSideSender   IPCSide = "sender"
	IPCSideReceiver IPCSide = "receiver"
)

// IPCPayload is the payload of IPC markers. Send/Recv times on the opposite
// endpoint are filled in during derivation from the correlation table.
type IPCPayload struct {
	MessageSeqno  int64
	MessageType   string
	Side          IPCSide
	OtherPID      int64
	SendTime      float64
	RecvTime      float64
	Correlated    bool
	InnerWindowID uint64
}

func (p *IPCPayload) Type() string { return "IPC" }

func (p *IPCPayload) WindowID() uint64 { return p.InnerWindowID }

func (p *IPCPayload) Field(key string) (any, bool) {
	switch key {
	case "messageType":
		return p.MessageType, true
	case "messageSeqno":
		return p.MessageSeqno, true
	case "side":
		return string(p.Side), true
	}
	return nil, false
}

// NetworkPayload is the payload of network markers.
type NetworkPayload struct {
	URI           string
	Status        string
	Pri           int64
	InnerWindowID uint64
}

func (p *NetworkPayload) Type() string { return "Network" }

func (p *NetworkPayload) WindowID() uint64 { return p.InnerWindowID }

func (p *NetworkPayload) Field(key string) (any, bool) {
	switch key {
	case "URI":
		return p.URI, true
	case "status":
		return p.Status, true
	case "pri":
		return p.Pri, true
	}
	return nil, false
}

// GenericPayload carries payloads of schema types the core has no concrete
// struct for. Numeric fields are reachable for custom tracks via Number.
type GenericPayload struct {
	SchemaType    string
	Values        map[string]any
	InnerWindowID uint64
}

func (p *GenericPayload) Type() string { return p.SchemaType }

func (p *GenericPayload) WindowID() uint64 { return p.InnerWindowID }

func (p *GenericPayload) Field(key string) (any, bool) {
	v, ok := p.Values[key]
	return v, ok
}

func (p *GenericPayload) Number(key string) (float64, bool) {
	switch v := p.Values[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

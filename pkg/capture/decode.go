package capture

import (
	"io"
	"math"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The JSON shape mirrors the columnar tables: one object per thread, one
// array per column, null for missing values.

type captureJSON struct {
	Product    string       `json:"product"`
	Interval   float64      `json:"interval"`
	Categories []Category   `json:"categories"`
	Threads    []threadJSON `json:"threads"`
}

type threadJSON struct {
	Name       string         `json:"name"`
	PID        int64          `json:"pid"`
	TID        int64          `json:"tid"`
	Strings    []string       `json:"stringTable"`
	Markers    markersJSON    `json:"markers"`
	Samples    samplesJSON    `json:"samples"`
	StackTable stackTableJSON `json:"stackTable"`
	FrameTable frameTableJSON `json:"frameTable"`
	FuncTable  funcTableJSON  `json:"funcTable"`
}

type markersJSON struct {
	Name      []StringIndex    `json:"name"`
	StartTime []float64        `json:"startTime"`
	EndTime   []*float64       `json:"endTime"`
	Phase     []Phase          `json:"phase"`
	Category  []CategoryIndex  `json:"category"`
	Data      []map[string]any `json:"data"`
}

type samplesJSON struct {
	Stack          []*int32   `json:"stack"`
	Time           []float64  `json:"time"`
	Responsiveness []*float64 `json:"responsiveness"`
	Weight         []float64  `json:"weight"`
	WeightType     WeightType `json:"weightType"`
}

type stackTableJSON struct {
	Prefix []*int32 `json:"prefix"`
	Frame  []int32  `json:"frame"`
}

type frameTableJSON struct {
	Func           []int32         `json:"func"`
	Category       []CategoryIndex `json:"category"`
	Subcategory    []*int32        `json:"subcategory"`
	Implementation []*StringIndex  `json:"implementation"`
}

type funcTableJSON struct {
	Name []StringIndex `json:"name"`
}

// Decode reads a capture from its JSON representation. Table columns must be
// of equal length within each table; payloads are validated and converted to
// their tagged shape once, here.
func Decode(r io.Reader) (*Capture, error) {
	var raw captureJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding capture")
	}
	c := &Capture{
		Product:    raw.Product,
		Interval:   raw.Interval,
		Categories: raw.Categories,
	}
	for ti := range raw.Threads {
		t, err := decodeThread(&raw.Threads[ti])
		if err != nil {
			return nil, errors.Wrapf(err, "thread %d (%s)", ti, raw.Threads[ti].Name)
		}
		c.Threads = append(c.Threads, t)
	}
	return c, nil
}

func decodeThread(raw *threadJSON) (*Thread, error) {
	t := &Thread{
		Name:    raw.Name,
		PID:     raw.PID,
		TID:     raw.TID,
		Strings: NewStringTable(raw.Strings...),
	}

	n := len(raw.Markers.Name)
	if len(raw.Markers.StartTime) != n || len(raw.Markers.EndTime) != n ||
		len(raw.Markers.Phase) != n || len(raw.Markers.Category) != n ||
		(raw.Markers.Data != nil && len(raw.Markers.Data) != n) {
		return nil, errors.New("marker table columns have unequal lengths")
	}
	t.Markers = RawMarkerTable{
		Name:      raw.Markers.Name,
		StartTime: raw.Markers.StartTime,
		EndTime:   floats(raw.Markers.EndTime),
		Phase:     raw.Markers.Phase,
		Category:  raw.Markers.Category,
		Data:      make([]Payload, n),
	}
	for i, d := range raw.Markers.Data {
		if d == nil {
			continue
		}
		p, err := decodePayload(d)
		if err != nil {
			return nil, errors.Wrapf(err, "marker row %d", i)
		}
		t.Markers.Data[i] = p
	}

	sn := len(raw.Samples.Time)
	if len(raw.Samples.Stack) != sn ||
		(raw.Samples.Responsiveness != nil && len(raw.Samples.Responsiveness) != sn) ||
		(raw.Samples.Weight != nil && len(raw.Samples.Weight) != sn) {
		return nil, errors.New("sample table columns have unequal lengths")
	}
	t.Samples = SampleTable{
		Stack:      stackRefs(raw.Samples.Stack),
		Time:       raw.Samples.Time,
		Weight:     raw.Samples.Weight,
		WeightType: raw.Samples.WeightType,
	}
	if raw.Samples.Responsiveness != nil {
		t.Samples.Responsiveness = floats(raw.Samples.Responsiveness)
	}
	if t.Samples.WeightType == "" {
		t.Samples.WeightType = WeightSamples
	}

	if len(raw.StackTable.Prefix) != len(raw.StackTable.Frame) {
		return nil, errors.New("stack table columns have unequal lengths")
	}
	t.Stacks = StackTable{
		Prefix: stackRefs(raw.StackTable.Prefix),
		Frame:  raw.StackTable.Frame,
	}
	if len(raw.FrameTable.Category) != len(raw.FrameTable.Func) {
		return nil, errors.New("frame table columns have unequal lengths")
	}
	t.Frames = FrameTable{
		Func:           raw.FrameTable.Func,
		Category:       raw.FrameTable.Category,
		Subcategory:    make([]int32, len(raw.FrameTable.Func)),
		Implementation: make([]StringIndex, len(raw.FrameTable.Func)),
	}
	for i := range raw.FrameTable.Func {
		t.Frames.Subcategory[i] = NoSubcategory
		t.Frames.Implementation[i] = NoImplementation
		if i < len(raw.FrameTable.Subcategory) && raw.FrameTable.Subcategory[i] != nil {
			t.Frames.Subcategory[i] = *raw.FrameTable.Subcategory[i]
		}
		if i < len(raw.FrameTable.Implementation) && raw.FrameTable.Implementation[i] != nil {
			t.Frames.Implementation[i] = *raw.FrameTable.Implementation[i]
		}
	}
	t.Funcs = FuncTable{Name: raw.FuncTable.Name}
	return t, nil
}

func decodePayload(d map[string]any) (Payload, error) {
	typ, _ := d["type"].(string)
	if typ == "" {
		return nil, errors.New("payload without type tag")
	}
	windowID := func() uint64 {
		if v, ok := d["innerWindowID"].(float64); ok {
			return uint64(v)
		}
		return NoInnerWindowID
	}
	str := func(k string) string { s, _ := d[k].(string); return s }
	num := func(k string) float64 { v, _ := d[k].(float64); return v }

	switch typ {
	case "tracing":
		return &TracingPayload{Cat: str("category"), InnerWindowID: windowID()}, nil
	case "Text":
		return &TextPayload{Name: str("name"), InnerWindowID: windowID()}, nil
	case "IPC":
		side := IPCSide(str("side"))
		if side != IPCSideSender && side != IPCSideReceiver {
			return nil, errors.Errorf("IPC payload with unknown side %q", side)
		}
		return &IPCPayload{
			MessageSeqno:  int64(num("messageSeqno")),
			MessageType:   str("messageType"),
			Side:          side,
			OtherPID:      int64(num("otherPid")),
			SendTime:      num("sendTime"),
			RecvTime:      num("recvTime"),
			InnerWindowID: windowID(),
		}, nil
	case "Network":
		return &NetworkPayload{
			URI:           str("URI"),
			Status:        str("status"),
			Pri:           int64(num("pri")),
			InnerWindowID: windowID(),
		}, nil
	default:
		values := make(map[string]any, len(d))
		for k, v := range d {
			if k == "type" || k == "innerWindowID" {
				continue
			}
			values[k] = v
		}
		return &GenericPayload{SchemaType: typ, Values: values, InnerWindowID: windowID()}, nil
	}
}

func floats(in []*float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	return out
}

func stackRefs(in []*int32) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = NoStack
		} else {
			out[i] = *v
		}
	}
	return out
}

package marker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelens/tracelens/pkg/capture"
)

func newThread(name string) *capture.Thread {
	return &capture.Thread{Name: name, Strings: capture.NewStringTable()}
}

func pushRow(t *capture.Thread, name string, start, end float64, phase capture.Phase) int32 {
	return t.Markers.Push(t.Strings.Index(name), start, end, phase, 0, nil)
}

func Test_Derive_StartEndMatching(t *testing.T) {
	th := newThread("GeckoMain")
	pushRow(th, "A", 1, math.NaN(), capture.PhaseIntervalStart)
	pushRow(th, "A", 5, 5, capture.PhaseIntervalEnd)

	got := Derive(th, DeriveOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, 1.0, got[0].Start)
	assert.Equal(t, 5.0, got[0].End)
	assert.True(t, got[0].HasEnd)
	assert.False(t, got[0].Incomplete)
	assert.Equal(t, []int32{0, 1}, got[0].RawRows)
}

func Test_Derive_SameNameNesting(t *testing.T) {
	// Two nested "A" intervals: the most recent unmatched start closes first.
	th := newThread("GeckoMain")
	pushRow(th, "A", 1, math.NaN(), capture.PhaseIntervalStart)
	pushRow(th, "A", 2, math.NaN(), capture.PhaseIntervalStart)
	pushRow(th, "A", 3, 3, capture.PhaseIntervalEnd)
	pushRow(th, "A", 9, 9, capture.PhaseIntervalEnd)

	got := Derive(th, DeriveOptions{})
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Start)
	assert.Equal(t, 3.0, got[0].End)
	assert.Equal(t, 1.0, got[1].Start)
	assert.Equal(t, 9.0, got[1].End)
}

func Test_Derive_UnmatchedStart(t *testing.T) {
	th := newThread("GeckoMain")
	pushRow(th, "B", 2, math.NaN(), capture.PhaseIntervalStart)

	got := Derive(th, DeriveOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, 2.0, got[0].Start)
	assert.False(t, got[0].HasEnd)
	assert.True(t, got[0].Incomplete)
}

func Test_Derive_OrphanEndDropped(t *testing.T) {
	th := newThread("GeckoMain")
	pushRow(th, "C", 4, 4, capture.PhaseIntervalEnd)
	pushRow(th, "D", 6, math.NaN(), capture.PhaseInstant)

	got := Derive(th, DeriveOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "D", got[0].Name)
	assert.False(t, got[0].HasEnd)
	assert.False(t, got[0].Incomplete)
}

func Test_Derive_InstantAndInterval(t *testing.T) {
	th := newThread("GeckoMain")
	pushRow(th, "Paint", 3, 8, capture.PhaseInterval)
	pushRow(th, "DOMEvent", 4, math.NaN(), capture.PhaseInstant)

	got := Derive(th, DeriveOptions{})
	require.Len(t, got, 2)
	assert.True(t, got[0].HasEnd)
	assert.Equal(t, 8.0, got[0].End)
	assert.False(t, got[1].HasEnd)
	assert.False(t, got[1].Incomplete)
}

func Test_Derive_IPCEnrichment(t *testing.T) {
	sender := newThread("parent")
	sender.Markers.Push(sender.Strings.Index("IPC"), 10, 10, capture.PhaseInterval, 0,
		&capture.IPCPayload{MessageSeqno: 7, MessageType: "PContent::Msg", Side: capture.IPCSideSender})
	receiver := newThread("child")
	receiver.Markers.Push(receiver.Strings.Index("IPC"), 25, 25, capture.PhaseInterval, 0,
		&capture.IPCPayload{MessageSeqno: 7, MessageType: "PContent::Msg", Side: capture.IPCSideReceiver})

	ipc := BuildIPCTable([]*capture.Thread{sender, receiver})
	got := Derive(sender, DeriveOptions{IPC: ipc})
	require.Len(t, got, 1)
	assert.Equal(t, 25.0, got[0].End)
	p, ok := got[0].Data.(*capture.IPCPayload)
	require.True(t, ok)
	assert.True(t, p.Correlated)
	assert.Equal(t, 10.0, p.SendTime)
	assert.Equal(t, 25.0, p.RecvTime)
	// The raw row's payload is untouched: enrichment copies.
	raw := sender.Markers.Data[0].(*capture.IPCPayload)
	assert.False(t, raw.Correlated)
}

func Test_Merge_SortedAndStable(t *testing.T) {
	derived := []Marker{
		{Name: "A", Start: 1},
		{Name: "B", Start: 5},
	}
	janks := []Marker{
		{Name: JankMarkerName, Start: 5, End: 60, HasEnd: true},
		{Name: JankMarkerName, Start: 0, End: 1, HasEnd: true},
	}
	list := Merge(derived, janks)
	require.Equal(t, 4, list.Len())

	// Sorted by start time, non-decreasing.
	for i := 1; i < list.Len(); i++ {
		assert.LessOrEqual(t, list.Marker(Index(i-1)).Start, list.Marker(Index(i)).Start)
	}
	// Ties keep concatenation order: derived before jank at t=5.
	assert.Equal(t, "B", list.Marker(2).Name)
	assert.Equal(t, JankMarkerName, list.Marker(3).Name)
}

func Test_List_StaleIndexPanics(t *testing.T) {
	list := Merge([]Marker{{Name: "A", Start: 1}})
	require.NotPanics(t, func() { list.Marker(0) })
	assert.Panics(t, func() { list.Marker(1) })
	assert.Panics(t, func() { list.Marker(-1) })
	assert.True(t, list.Valid(0))
	assert.False(t, list.Valid(1))
}

func Test_Marker_Deterministic(t *testing.T) {
	th := newThread("GeckoMain")
	pushRow(th, "A", 1, 2, capture.PhaseInterval)
	list := Merge(Derive(th, DeriveOptions{}))
	first := list.Marker(0)
	second := list.Marker(0)
	assert.Same(t, first, second)
}

package marker

import (
	"math"
	"sort"

	"github.com/tracelens/tracelens/pkg/capture"
)

// IPCPair is one correlated IPC message, keyed by message seqno across
// threads. It carries the timestamps observed on both endpoints.
type IPCPair struct {
	SendTime float64
	RecvTime float64
	HasRecv  bool
}

// BuildIPCTable scans the raw marker tables of all threads and correlates IPC
// payloads by message seqno.
func BuildIPCTable(threads []*capture.Thread) map[int64]IPCPair {
	table := make(map[int64]IPCPair)
	for _, t := range threads {
		for i := 0; i < t.Markers.Len(); i++ {
			p, ok := t.Markers.Data[i].(*capture.IPCPayload)
			if !ok {
				continue
			}
			pair := table[p.MessageSeqno]
			switch p.Side {
			case capture.IPCSideSender:
				pair.SendTime = t.Markers.StartTime[i]
			case capture.IPCSideReceiver:
				pair.RecvTime = t.Markers.StartTime[i]
				pair.HasRecv = true
			}
			table[p.MessageSeqno] = pair
		}
	}
	return table
}

// DeriveOptions tunes marker derivation.
type DeriveOptions struct {
	// IPC is the cross-thread correlation table. Nil disables enrichment.
	IPC map[int64]IPCPair
}

type pendingStart struct {
	row   int32
	start float64
}

// Derive turns the thread's raw marker rows into markers.
//
// Instant and interval rows map to one marker each. Start-only rows wait on a
// per-name stack until an end-only row of the same name closes the most
// recent one (LIFO, so same-named nested intervals pair up innermost-first).
// Starts still open at the end of the capture become incomplete markers;
// end rows with no pending start are dropped. Nothing here is fatal: capture
// truncation is common and derivation is best-effort by policy.
func Derive(t *capture.Thread, opts DeriveOptions) []Marker {
	rows := &t.Markers
	out := make([]Marker, 0, rows.Len())
	pending := make(map[capture.StringIndex][]pendingStart)

	for i := 0; i < rows.Len(); i++ {
		name := rows.Name[i]
		switch rows.Phase[i] {
		case capture.PhaseInstant:
			out = append(out, Marker{
				Name:     t.Strings.Get(name),
				Start:    rows.StartTime[i],
				Category: rows.Category[i],
				Data:     rows.Data[i],
				RawRows:  []int32{int32(i)},
			})

		case capture.PhaseInterval:
			end := rows.EndTime[i]
			if math.IsNaN(end) {
				end = rows.StartTime[i]
			}
			out = append(out, enrichIPC(Marker{
				Name:     t.Strings.Get(name),
				Start:    rows.StartTime[i],
				End:      end,
				HasEnd:   true,
				Category: rows.Category[i],
				Data:     rows.Data[i],
				RawRows:  []int32{int32(i)},
			}, opts.IPC))

		case capture.PhaseIntervalStart:
			pending[name] = append(pending[name], pendingStart{
				row:   int32(i),
				start: rows.StartTime[i],
			})

		case capture.PhaseIntervalEnd:
			stack := pending[name]
			if len(stack) == 0 {
				// Orphaned end row, the matching start fell outside the
				// capture. Dropped by policy.
				continue
			}
			open := stack[len(stack)-1]
			pending[name] = stack[:len(stack)-1]
			end := rows.EndTime[i]
			if math.IsNaN(end) {
				end = rows.StartTime[i]
			}
			data := rows.Data[open.row]
			if data == nil {
				data = rows.Data[i]
			}
			out = append(out, enrichIPC(Marker{
				Name:     t.Strings.Get(name),
				Start:    open.start,
				End:      end,
				HasEnd:   true,
				Category: rows.Category[open.row],
				Data:     data,
				RawRows:  []int32{open.row, int32(i)},
			}, opts.IPC))
		}
	}

	// Starts that never closed become incomplete markers, in row order so the
	// output is deterministic.
	var unmatched []pendingStart
	for _, stack := range pending {
		unmatched = append(unmatched, stack...)
	}
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].row < unmatched[j].row })
	for _, p := range unmatched {
		out = append(out, Marker{
			Name:       t.Strings.Get(rows.Name[p.row]),
			Start:      p.start,
			Incomplete: true,
			Category:   rows.Category[p.row],
			Data:       rows.Data[p.row],
			RawRows:    []int32{p.row},
		})
	}
	return out
}

// enrichIPC widens a sender-side IPC marker to the full send-to-receive span
// using the cross-thread correlation table.
func enrichIPC(m Marker, ipc map[int64]IPCPair) Marker {
	p, ok := m.Data.(*capture.IPCPayload)
	if !ok || ipc == nil {
		return m
	}
	pair, ok := ipc[p.MessageSeqno]
	if !ok || !pair.HasRecv {
		return m
	}
	enriched := *p
	enriched.SendTime = pair.SendTime
	enriched.RecvTime = pair.RecvTime
	enriched.Correlated = true
	m.Data = &enriched
	if p.Side == capture.IPCSideSender && pair.RecvTime > m.Start {
		m.End = pair.RecvTime
		m.HasEnd = true
	}
	return m
}

// Merge concatenates derived marker lists and stable-sorts by start time,
// producing the generation all downstream indexes refer into. Ties keep the
// concatenation order, so derived markers consistently precede synthesized
// ones that share a start time.
func Merge(lists ...[]Marker) *List {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	all := make([]Marker, 0, n)
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	return &List{markers: all}
}

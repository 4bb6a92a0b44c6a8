package sim

import "container/heap"

// eventEntry wraps an Event with a sequence ID for deterministic FIFO
// tie-breaking when neither event has priority over the other.
type eventEntry struct {
	event Event
	seqID int64
}

// eventHeap implements heap.Interface.
// Order by: occurrence time → HasPriorityOver → seqID
type eventHeap []eventEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	ei, ej := h[i].event, h[j].event
	ti, tj := ei.TimeOfOccurrence(), ej.TimeOfOccurrence()
	if !ti.Equal(tj) {
		return ti.LessThan(tj)
	}
	if ei.HasPriorityOver(ej) {
		return true
	}
	if ej.HasPriorityOver(ei) {
		return false
	}
	return h[i].seqID < h[j].seqID
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(eventEntry))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PendingEvents is the queue of externally delivered events waiting for the
// next external (or confluent) transition of one atomic model.
// Thread-safety: NOT thread-safe; owned by a single engine.
type PendingEvents struct {
	entries eventHeap
	nextSeq int64
}

// Schedule adds an event to the queue.
func (q *PendingEvents) Schedule(ev Event) {
	q.nextSeq++
	heap.Push(&q.entries, eventEntry{event: ev, seqID: q.nextSeq})
}

// Len returns the number of queued events.
func (q *PendingEvents) Len() int { return q.entries.Len() }

// EarliestTime returns the occurrence time of the next queued event, or
// TimeInfinity when the queue is empty.
func (q *PendingEvents) EarliestTime() Time {
	if q.entries.Len() == 0 {
		return TimeInfinity
	}
	return q.entries[0].event.TimeOfOccurrence()
}

// PopUntil removes and returns, in priority order, every event occurring at
// or before t.
func (q *PendingEvents) PopUntil(t Time) []Event {
	var out []Event
	for q.entries.Len() > 0 && q.entries[0].event.TimeOfOccurrence().LessThanOrEqual(t) {
		out = append(out, heap.Pop(&q.entries).(eventEntry).event)
	}
	return out
}

// Clear drops every queued event.
func (q *PendingEvents) Clear() {
	q.entries = q.entries[:0]
}

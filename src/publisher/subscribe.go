package publisher

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
)

// Subscription delivers a replay of persisted records followed by a live
// tail, with no gap and no duplicate beyond the record the replay already
// covered (spec.md §4.5: replayable snapshot + live tail).
type Subscription struct {
	p      *Publisher
	id     int
	live   chan Record
	headAt int64
}

// Subscribe registers a live listener before any replay is read, so no
// record published between "now" and the end of replay is lost — it is
// buffered on live and later deduplicated against the replay's head seq.
func (p *Publisher) Subscribe() *Subscription {
	p.subMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Record, 256)
	p.subscribers[id] = ch
	p.subMu.Unlock()

	return &Subscription{p: p, id: id, live: ch, headAt: p.HeadSeq()}
}

// Unsubscribe removes the listener.
func (s *Subscription) Unsubscribe() {
	s.p.subMu.Lock()
	delete(s.p.subscribers, s.id)
	s.p.subMu.Unlock()
}

// Replay streams persisted records with seq > from, up to the sequence
// number observed at Subscribe time, calling emit for each. It reads
// directly from the on-disk log so replay is correct even across a daemon
// restart (spec.md §4.5: "Initial snapshot is reconstructed by replaying
// the log from sequence 0 up to HEAD").
func (s *Subscription) Replay(from int64, emit func(Record) error) error {
	f, err := os.Open(s.p.logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	offset := s.p.offsetFor(from)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Seq <= from || rec.Seq > s.headAt {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Live returns records broadcast after the listener was registered. It is
// not deduplicated: it can carry records with Seq <= HeadAtSubscribe, which
// Replay also delivers, and callers drop those.
func (s *Subscription) Live() <-chan Record { return s.live }

// HeadAtSubscribe returns the sequence number observed when Subscribe was
// called, the boundary between replay and live.
func (s *Subscription) HeadAtSubscribe() int64 { return s.headAt }

// offsetFor returns the byte offset to seek to in order to read records
// with seq > from. from == 0 means "from the beginning".
func (p *Publisher) offsetFor(from int64) int64 {
	if from <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// index is seq-ascending; binary search for the entry whose seq == from.
	lo, hi := 0, len(p.index)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.index[mid].seq < from {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.index) && p.index[lo].seq == from {
		return p.index[lo].offset
	}
	if lo > 0 {
		return p.index[lo-1].offset
	}
	return 0
}

func (p *Publisher) broadcast(rec Record) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for id, ch := range p.subscribers {
		select {
		case ch <- rec:
		default:
			// Subscriber too slow: drop it, matching spec.md §5's
			// back-pressure policy ("the subscriber is disconnected and
			// must re-subscribe").
			close(ch)
			delete(p.subscribers, id)
		}
	}
}

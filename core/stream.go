package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"paysplit/core/types"
	"paysplit/storage/journal"
)

const streamHistoryLimit = 2048

// EventUpdate is one committed ledger event as seen by stream subscribers.
type EventUpdate struct {
	Sequence   uint64
	Cursor     string
	Type       string
	Attributes map[string]string
	Timestamp  int64
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if len(update.Attributes) > 0 {
		attrs := make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			attrs[k] = v
		}
		cloned.Attributes = attrs
	}
	return cloned
}

// publishEvent assigns a sequence, journals the event, and fans it out to the
// live subscribers. Slow subscribers are skipped rather than blocked on.
func (n *Node) publishEvent(event *types.Event) {
	if n == nil || event == nil {
		return
	}
	now := time.Now()

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventUpdate)
	}
	seq := n.streamSeq + 1
	if n.journal != nil {
		if journalled, err := n.journal.Append(event.Type, event.Attributes, now); err == nil {
			seq = journalled
		} else {
			n.logger.Error("journal append failed", "type", event.Type, "error", err)
		}
	}
	n.streamSeq = seq

	update := EventUpdate{
		Sequence:  seq,
		Cursor:    strconv.FormatUint(seq, 10),
		Type:      event.Type,
		Timestamp: now.Unix(),
	}
	if len(event.Attributes) > 0 {
		update.Attributes = make(map[string]string, len(event.Attributes))
		for k, v := range event.Attributes {
			update.Attributes[k] = v
		}
	}

	n.streamHistory = append(n.streamHistory, cloneEventUpdate(update))
	if len(n.streamHistory) > streamHistoryLimit {
		excess := len(n.streamHistory) - streamHistoryLimit
		trimmed := make([]EventUpdate, streamHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	subscribers := make([]chan EventUpdate, 0, len(n.streamSubs))
	for _, ch := range n.streamSubs {
		subscribers = append(subscribers, ch)
	}
	n.streamMu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneEventUpdate(update):
		default:
		}
	}
	n.stats.SetJournalHead(seq)
}

// SubscribeEvents registers a subscriber for committed ledger events starting
// after the supplied cursor. The backlog comes from the journal when one is
// attached, so cursors survive restarts; otherwise the in-memory history
// window serves it.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventUpdate)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	subscriberCount := len(n.streamSubs)

	var backlog []EventUpdate
	var backlogErr error
	if n.journal != nil {
		backlogErr = n.journal.ReplayAfter(since, func(record journal.Record) error {
			backlog = append(backlog, EventUpdate{
				Sequence:   record.Sequence,
				Cursor:     strconv.FormatUint(record.Sequence, 10),
				Type:       record.Type,
				Attributes: record.Attributes,
				Timestamp:  record.RecordedAt.Unix(),
			})
			return nil
		})
	} else {
		for _, entry := range n.streamHistory {
			if entry.Sequence > since {
				backlog = append(backlog, cloneEventUpdate(entry))
			}
		}
	}
	if backlogErr != nil {
		delete(n.streamSubs, id)
		n.streamMu.Unlock()
		close(updates)
		return nil, nil, nil, backlogErr
	}
	n.streamMu.Unlock()
	n.stats.SetStreamSubscribers(subscriberCount)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			remaining := len(n.streamSubs)
			n.streamMu.Unlock()
			n.stats.SetStreamSubscribers(remaining)
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}

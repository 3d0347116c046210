package store

import (
	"testing"
	"time"
)

func TestJournal_RecordDropsWhenSaturated(t *testing.T) {
	j := NewJournal(&Store{}, nil)

	// Without a running consumer the queue fills; overflow must drop
	// rather than block.
	total := journalQueueSize + 40
	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			j.Record(JournalEntry{EventID: "EVT", Outcome: "skip", DecidedAt: time.Now().UTC()})
		}
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a saturated queue")
	}

	if got := j.Stats().Dropped; got != 40 {
		t.Errorf("dropped = %d, want 40", got)
	}
	if got := len(j.input); got != journalQueueSize {
		t.Errorf("queued = %d, want %d", got, journalQueueSize)
	}
}

func TestJournal_AppendSignalsFullBatch(t *testing.T) {
	j := NewJournal(&Store{}, nil)

	for i := 0; i < journalBatchSize-1; i++ {
		if j.append(JournalEntry{EventID: "EVT"}) {
			t.Fatalf("batch signaled full at %d entries", i+1)
		}
	}
	if !j.append(JournalEntry{EventID: "EVT"}) {
		t.Errorf("batch did not signal full at %d entries", journalBatchSize)
	}
}

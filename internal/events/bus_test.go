package events

import (
	"testing"
	"time"
)

func TestEmitAssignsMonotonicIDs(t *testing.T) {
	b := NewBus(10)
	e1 := b.Emit("page.started", nil)
	e2 := b.Emit("page.completed", nil)
	if e1.ID != 1 || e2.ID != 2 {
		t.Errorf("got IDs %d, %d, want 1, 2", e1.ID, e2.ID)
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	b := NewBus(3)
	for i := 0; i < 5; i++ {
		b.Emit("evt", nil)
	}
	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(snap))
	}
	if snap[0].ID != 3 || snap[2].ID != 5 {
		t.Errorf("expected IDs 3..5, got %d..%d", snap[0].ID, snap[2].ID)
	}
}

func TestSubscribeReplaysAfterID(t *testing.T) {
	b := NewBus(10)
	b.Emit("a", nil)
	b.Emit("b", nil)
	b.Emit("c", nil)

	after := 1
	ch, unsub := b.Subscribe(&after)
	defer unsub()

	var got []Event
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			got = append(got, evt)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Errorf("got %v, want events with IDs 2,3", got)
	}
}

func TestSubscribeWithoutAfterIDReplaysAllBuffered(t *testing.T) {
	b := NewBus(10)
	b.Emit("a", nil)
	b.Emit("b", nil)
	ch, unsub := b.Subscribe(nil)
	defer unsub()

	var got []Event
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			got = append(got, evt)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("got %v, want events with IDs 1,2", got)
	}
}

func TestEmitFansOutToAllSubscribers(t *testing.T) {
	b := NewBus(10)
	ch1, unsub1 := b.Subscribe(nil)
	ch2, unsub2 := b.Subscribe(nil)
	defer unsub1()
	defer unsub2()

	b.Emit("x", map[string]interface{}{"k": "v"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Name != "x" {
				t.Errorf("got %q", evt.Name)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-out event")
		}
	}
}

func TestCloseSignalsSubscribersAndRejectsFurtherEmit(t *testing.T) {
	b := NewBus(10)
	ch, unsub := b.Subscribe(nil)
	defer unsub()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close signal")
	}

	evt := b.Emit("after-close", nil)
	if evt.ID != 0 {
		t.Errorf("expected emit after close to be a no-op, got %v", evt)
	}
}

func TestSubscribeAfterCloseReplaysThenClosesImmediately(t *testing.T) {
	b := NewBus(10)
	b.Emit("a", nil)
	b.Close()

	ch, unsub := b.Subscribe(nil)
	defer unsub()

	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("expected at least the buffered replay event before close")
		}
		if evt.Name != "a" {
			t.Errorf("got %q", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel closed after replay")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal close")
	}
}

func TestSubscribeReplayLargerThanSubscriberBufferDoesNotBlock(t *testing.T) {
	b := NewBus(200)
	for i := 0; i < 180; i++ {
		b.Emit("page.completed", nil)
	}

	after := 0
	done := make(chan struct{})
	go func() {
		ch, unsub := b.Subscribe(&after)
		defer unsub()
		count := 0
		for range ch {
			count++
			if count == 180 {
				break
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe replay of >subscriberBufferSize events deadlocked")
	}
}

func TestRegistryGetOrCreateNeverReplacesAClosedBus(t *testing.T) {
	r := NewRegistry(10)
	b1 := r.GetOrCreate("job-1")
	b1.Emit("job.completed", nil)
	b1.Close()

	b2 := r.GetOrCreate("job-1")
	if b2 != b1 {
		t.Error("expected the same closed bus so late subscribers can still replay its buffer")
	}

	ch, unsub := b2.Subscribe(nil)
	defer unsub()
	select {
	case evt, ok := <-ch:
		if !ok || evt.Name != "job.completed" {
			t.Errorf("expected the terminal run's buffered event to replay, got %v ok=%v", evt, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}
}

func TestRegistryStartRunReplacesAnyExistingBus(t *testing.T) {
	r := NewRegistry(10)
	b1 := r.GetOrCreate("job-1")
	ch1, unsub1 := b1.Subscribe(nil)
	defer unsub1()

	b2 := r.StartRun("job-1")
	if b2 == b1 {
		t.Error("expected StartRun to install a fresh bus")
	}

	select {
	case _, ok := <-ch1:
		if ok {
			t.Error("expected the previous bus's subscribers to see it close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for old bus to close")
	}

	evt := b2.Emit("job.started", nil)
	if evt.ID != 1 {
		t.Errorf("expected the new bus to be live, got %v", evt)
	}
	if r.GetOrCreate("job-1") != b2 {
		t.Error("expected the registry to now hand back the fresh bus")
	}
}

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry(10)
	b1 := r.GetOrCreate("job-1")
	b2 := r.GetOrCreate("job-1")
	if b1 != b2 {
		t.Error("expected the same bus instance for the same job ID")
	}
}

func TestRegistryRemoveClosesBus(t *testing.T) {
	r := NewRegistry(10)
	b := r.GetOrCreate("job-1")
	ch, unsub := b.Subscribe(nil)
	defer unsub()

	r.Remove("job-1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected bus to be closed on registry removal")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	if r.Get("job-1") != nil {
		t.Error("expected bus to be removed from registry")
	}
}

package progress

import (
	"errors"
	"testing"
	"time"
)

func TestReportForwardsFirstEventImmediately(t *testing.T) {
	r := NewReporter()
	ch := r.Subscribe()

	r.Report(Event{SamplesSeen: 1, Progress: 0.1})

	select {
	case ev := <-ch:
		if ev.SamplesSeen != 1 {
			t.Fatalf("expected first event to forward, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected first event to be forwarded without debounce")
	}
}

func TestReportDebouncesRapidUpdates(t *testing.T) {
	r := NewReporter()
	r.lastSent = time.Now()
	ch := r.Subscribe()

	r.Report(Event{SamplesSeen: 2, Progress: 0.2})

	select {
	case ev := <-ch:
		t.Fatalf("expected debounced event to be dropped, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReportAlwaysForwardsTerminalEvents(t *testing.T) {
	r := NewReporter()
	r.lastSent = time.Now()
	ch := r.Subscribe()

	r.Report(Event{Completed: true})

	select {
	case ev := <-ch:
		if !ev.Completed {
			t.Fatalf("expected completed event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected terminal event to bypass debounce")
	}
}

func TestReportForwardsErrorEventsImmediately(t *testing.T) {
	r := NewReporter()
	r.lastSent = time.Now()
	ch := r.Subscribe()

	r.Report(Event{Err: errors.New("boom")})

	select {
	case ev := <-ch:
		if ev.Err == nil {
			t.Fatal("expected error event")
		}
	case <-time.After(time.Second):
		t.Fatal("expected error event to bypass debounce")
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	r := NewReporter()
	ch := r.Subscribe()
	r.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
}

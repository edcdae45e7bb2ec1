package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetRemove(t *testing.T) {
	m := NewManager(0, time.Minute)
	ctx, s, err := m.Create(context.Background(), Spec{
		Transport:  TransportSSE,
		Words:      10,
		Delay:      25 * time.Millisecond,
		RemoteAddr: "127.0.0.1:5000",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Words != 10 || got.DelayMS != 25 || got.Transport != TransportSSE || got.Cancelled {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	if _, err := m.Remove(s.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("session context still live after Remove")
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
	}
	if !m.Cancelled(s.ID) {
		t.Fatalf("Cancelled() for removed id = false, want true")
	}
}

func TestManagerCancelSetsFlagAndContext(t *testing.T) {
	m := NewManager(0, time.Minute)
	ctx, s, err := m.Create(context.Background(), Spec{Words: 100, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.Cancelled(s.ID) {
		t.Fatalf("Cancelled() = true before Cancel")
	}

	got, err := m.Cancel(s.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !got.Cancelled || !m.Cancelled(s.ID) {
		t.Fatalf("cancelled flag not set: %+v", got)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("ctx.Err() = %v, want context.Canceled", ctx.Err())
	}
	if _, err := m.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerAdvanceCursor(t *testing.T) {
	m := NewManager(0, time.Minute)
	_, s, _ := m.Create(context.Background(), Spec{Words: 5, Delay: time.Millisecond})
	for i := 0; i < 3; i++ {
		m.Advance(s.ID, i)
	}
	got, _ := m.Get(s.ID)
	if got.Cursor != 3 {
		t.Fatalf("Cursor = %d, want 3", got.Cursor)
	}
}

func TestManagerCapacity(t *testing.T) {
	m := NewManager(1, time.Minute)
	_, first, err := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("second Create() error = %v, want ErrCapacity", err)
	}
	m.Remove(first.ID)
	if _, _, err := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond}); err != nil {
		t.Fatalf("Create() after Remove error = %v", err)
	}
}

func TestManagerListOldestFirst(t *testing.T) {
	m := NewManager(0, time.Minute)
	_, a, _ := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond})
	time.Sleep(2 * time.Millisecond)
	_, b, _ := m.Create(context.Background(), Spec{Words: 2, Delay: time.Millisecond})

	list := m.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("List() = %+v, want [%s %s]", list, a.ID, b.ID)
	}
}

func TestManagerJanitorExpiresIdle(t *testing.T) {
	m := NewManager(0, 30*time.Millisecond)
	var expired atomic.Int32
	m.SetExpireHook(func(Session) { expired.Add(1) })
	sctx, s, _ := m.Create(context.Background(), Spec{Words: 10, Delay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Cancelled {
		t.Fatalf("Cancelled = false, want true")
	}
	if sctx.Err() == nil {
		t.Fatalf("session context still live after expiry")
	}
	if expired.Load() != 1 {
		t.Fatalf("expire hook calls = %d, want 1", expired.Load())
	}
}

func TestManagerCancelAll(t *testing.T) {
	m := NewManager(0, time.Minute)
	c1, _, _ := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond})
	c2, _, _ := m.Create(context.Background(), Spec{Words: 1, Delay: time.Millisecond})
	if n := m.CancelAll(); n != 2 {
		t.Fatalf("CancelAll() = %d, want 2", n)
	}
	if c1.Err() == nil || c2.Err() == nil {
		t.Fatalf("contexts still live after CancelAll")
	}
}

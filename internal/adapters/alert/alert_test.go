package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubNotifier struct {
	ok    bool
	calls int
}

func (s *stubNotifier) Notify(_ context.Context, _, _ string) bool {
	s.calls++
	return s.ok
}

type stubCache struct {
	keys map[string]bool
	err  error
}

func newStubCache() *stubCache {
	return &stubCache{keys: make(map[string]bool)}
}

func (s *stubCache) Once(key string, _ time.Duration, fn func() error) error {
	if s.err != nil {
		return s.err
	}
	if s.keys[key] {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	s.keys[key] = true
	return nil
}

func (s *stubCache) Set(string, []byte, time.Duration) error { return nil }

func (s *stubCache) Get(string) ([]byte, error) { return nil, errors.New("not found") }

func TestFanout(t *testing.T) {
	failing := &stubNotifier{ok: false}
	working := &stubNotifier{ok: true}
	fanout := NewFanout(failing, working)

	if !fanout.Notify(context.Background(), "s", "b") {
		t.Fatalf("ожидали true, если хотя бы один канал доставил")
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Fatalf("оба канала должны быть вызваны: %d / %d", failing.calls, working.calls)
	}

	allFailing := NewFanout(&stubNotifier{}, &stubNotifier{})
	if allFailing.Notify(context.Background(), "s", "b") {
		t.Fatalf("ожидали false, когда все каналы отказали")
	}
}

func TestThrottledSuppressesRepeats(t *testing.T) {
	sink := &stubNotifier{ok: true}
	throttled := NewThrottled(sink, newStubCache(), time.Minute, zerolog.Nop())

	if !throttled.Notify(context.Background(), "db down", "body") {
		t.Fatalf("первое оповещение должно уйти")
	}
	if !throttled.Notify(context.Background(), "db down", "body") {
		t.Fatalf("подавленное оповещение считается обработанным")
	}
	if sink.calls != 1 {
		t.Fatalf("ожидали одну доставку в пределах окна, получили %d", sink.calls)
	}
}

func TestThrottledDistinctSubjects(t *testing.T) {
	sink := &stubNotifier{ok: true}
	throttled := NewThrottled(sink, newStubCache(), time.Minute, zerolog.Nop())

	throttled.Notify(context.Background(), "db down", "body")
	throttled.Notify(context.Background(), "smtp down", "body")
	if sink.calls != 2 {
		t.Fatalf("разные темы не должны подавляться: %d", sink.calls)
	}
}

func TestThrottledRetriesAfterFailedDelivery(t *testing.T) {
	sink := &stubNotifier{ok: false}
	throttled := NewThrottled(sink, newStubCache(), time.Minute, zerolog.Nop())

	if throttled.Notify(context.Background(), "db down", "body") {
		t.Fatalf("ожидали false при отказе канала")
	}
	throttled.Notify(context.Background(), "db down", "body")
	if sink.calls != 2 {
		t.Fatalf("после неудачи ключ должен сниматься, получили %d вызовов", sink.calls)
	}
}

func TestThrottledFallsBackWhenCacheDown(t *testing.T) {
	sink := &stubNotifier{ok: true}
	cache := newStubCache()
	cache.err = errors.New("redis down")
	throttled := NewThrottled(sink, cache, time.Minute, zerolog.Nop())

	if !throttled.Notify(context.Background(), "db down", "body") {
		t.Fatalf("при недоступном кэше оповещение должно уйти напрямую")
	}
	if sink.calls != 1 {
		t.Fatalf("ожидали прямую доставку, получили %d вызовов", sink.calls)
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*Event)}
}

func (r *fakeEventRepo) key(provider, externalID string) string {
	return provider + "|" + externalID
}

func (r *fakeEventRepo) InsertEvent(_ context.Context, evt Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(evt.Provider, evt.ExternalID)
	if _, exists := r.events[k]; exists {
		return false, nil
	}
	stored := evt
	r.events[k] = &stored
	return true, nil
}

func (r *fakeEventRepo) GetEvent(_ context.Context, provider, externalID string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evt, ok := r.events[r.key(provider, externalID)]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return *evt, nil
}

func (r *fakeEventRepo) MarkProcessed(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range r.events {
		if evt.ID == id {
			evt.Status = StatusProcessed
			evt.Result = result
			evt.Error = nil
		}
	}
	return nil
}

func (r *fakeEventRepo) MarkFailed(_ context.Context, id uuid.UUID, handlerErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range r.events {
		if evt.ID == id {
			evt.Status = StatusFailed
			msg := handlerErr.Error()
			evt.Error = &msg
		}
	}
	return nil
}

type passVerifier struct{}

func (passVerifier) Verify([]byte, map[string]string) error { return nil }

func newTestRouter(t *testing.T) (*Router, *fakeEventRepo) {
	t.Helper()
	repo := newFakeEventRepo()
	rt := NewRouter(repo, nil, logger.New("development"))
	rt.AddProvider(Provider{
		Name:       ProviderReply,
		Verifier:   passVerifier{},
		Normalizer: ReplyNormalizer{},
	})
	return rt, repo
}

func TestIngestDispatchesAndStoresResult(t *testing.T) {
	rt, repo := newTestRouter(t)

	var handled int32
	rt.RegisterFunc(EventReplyReceived, func(_ context.Context, evt Event) (json.RawMessage, error) {
		atomic.AddInt32(&handled, 1)
		return json.RawMessage(`{"category":"positive"}`), nil
	})

	body := []byte(`{"message_id":"MSG-1","text":"yes please"}`)
	result, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "203.0.113.9")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Duplicate {
		t.Error("first delivery flagged as duplicate")
	}
	if string(result.Result) != `{"category":"positive"}` {
		t.Errorf("result = %s", result.Result)
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("handler invoked %d times, want 1", handled)
	}

	stored, err := repo.GetEvent(context.Background(), ProviderReply, "MSG-1")
	if err != nil {
		t.Fatalf("stored event missing: %v", err)
	}
	if stored.Status != StatusProcessed {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestIngestDuplicateReturnsStoredResult(t *testing.T) {
	rt, _ := newTestRouter(t)

	var handled int32
	rt.RegisterFunc(EventReplyReceived, func(context.Context, Event) (json.RawMessage, error) {
		atomic.AddInt32(&handled, 1)
		return json.RawMessage(`{"category":"neutral"}`), nil
	})

	body := []byte(`{"message_id":"MSG-2","text":"maybe"}`)
	first, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "")
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "")
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if !second.Duplicate {
		t.Error("redelivery not flagged as duplicate")
	}
	if second.EventID != first.EventID {
		t.Error("redelivery returned a different event id")
	}
	if string(second.Result) != string(first.Result) {
		t.Errorf("redelivery result = %s, want %s", second.Result, first.Result)
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("handler invoked %d times, want 1", handled)
	}
}

func TestIngestRetriesAfterHandlerFailure(t *testing.T) {
	rt, repo := newTestRouter(t)

	var attempts int32
	rt.RegisterFunc(EventReplyReceived, func(context.Context, Event) (json.RawMessage, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, errors.New("classifier unavailable")
		}
		return json.RawMessage(`{"category":"positive"}`), nil
	})

	body := []byte(`{"message_id":"MSG-3","text":"ok"}`)
	if _, err := rt.Ingest(context.Background(), ProviderReply, body, nil, ""); err == nil {
		t.Fatal("first delivery should surface the handler failure")
	}

	stored, err := repo.GetEvent(context.Background(), ProviderReply, "MSG-3")
	if err != nil {
		t.Fatalf("failed event not recorded: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Errorf("stored status = %q, want %q", stored.Status, StatusFailed)
	}

	result, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "")
	if err != nil {
		t.Fatalf("redelivery after failure errored: %v", err)
	}
	if result.Duplicate {
		t.Error("first successful processing flagged as duplicate")
	}
	if string(result.Result) != `{"category":"positive"}` {
		t.Errorf("redelivery result = %s", result.Result)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("handler invoked %d times, want 2", attempts)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	rt, _ := newTestRouter(t)
	_, err := rt.Ingest(context.Background(), "pigeon", []byte(`{}`), nil, "")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestIngestUnregisteredEventTypeIsAcked(t *testing.T) {
	rt, repo := newTestRouter(t)

	body := []byte(`{"message_id":"MSG-4","text":"hi"}`)
	result, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if string(result.Result) != `{"handled":false}` {
		t.Errorf("result = %s", result.Result)
	}
	stored, _ := repo.GetEvent(context.Background(), ProviderReply, "MSG-4")
	if stored.Status != StatusProcessed {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestIngestHandlerPanicIsContained(t *testing.T) {
	rt, repo := newTestRouter(t)

	rt.RegisterFunc(EventReplyReceived, func(context.Context, Event) (json.RawMessage, error) {
		panic("boom")
	})

	body := []byte(`{"message_id":"MSG-5","text":"hi"}`)
	if _, err := rt.Ingest(context.Background(), ProviderReply, body, nil, ""); err == nil {
		t.Fatal("panicking handler should surface an error")
	}
	stored, err := repo.GetEvent(context.Background(), ProviderReply, "MSG-5")
	if err != nil {
		t.Fatalf("event not recorded after panic: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Errorf("stored status = %q, want %q", stored.Status, StatusFailed)
	}
}

func TestIngestConcurrentSameKeyDispatchesOnce(t *testing.T) {
	rt, _ := newTestRouter(t)

	var handled int32
	rt.RegisterFunc(EventReplyReceived, func(context.Context, Event) (json.RawMessage, error) {
		atomic.AddInt32(&handled, 1)
		time.Sleep(10 * time.Millisecond)
		return json.RawMessage(`{"category":"neutral"}`), nil
	})

	body := []byte(`{"message_id":"MSG-6","text":"same delivery twice"}`)
	var wg sync.WaitGroup
	duplicates := make([]bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := rt.Ingest(context.Background(), ProviderReply, body, nil, "")
			if err != nil {
				t.Errorf("concurrent ingest failed: %v", err)
				return
			}
			duplicates[i] = result.Duplicate
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&handled); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
	firsts := 0
	for _, dup := range duplicates {
		if !dup {
			firsts++
		}
	}
	if firsts != 1 {
		t.Errorf("%d deliveries claimed to be first, want 1", firsts)
	}
}

func TestRedisLockerSerializes(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, time.Second)

	release, err := locker.Acquire(context.Background(), "reply:MSG-7")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	blocked, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(blocked, "reply:MSG-7"); err == nil {
		t.Fatal("second acquire succeeded while lock held")
	}

	release()
	release2, err := locker.Acquire(context.Background(), "reply:MSG-7")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestMemoryLockerEvictsReleasedKeys(t *testing.T) {
	locker := NewMemoryLocker()

	for i := 0; i < 100; i++ {
		release, err := locker.Acquire(context.Background(), fmt.Sprintf("reply:MSG-%d", i))
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		release()
	}

	locker.mu.Lock()
	remaining := len(locker.locks)
	locker.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d lock entries retained after release, want 0", remaining)
	}
}

func TestMemoryLockerSerializes(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), "reply:MSG-8")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan func())
	go func() {
		r, err := locker.Acquire(context.Background(), "reply:MSG-8")
		if err != nil {
			t.Errorf("second acquire failed: %v", err)
			return
		}
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case r := <-acquired:
		r()
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}

	locker.mu.Lock()
	remaining := len(locker.locks)
	locker.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d lock entries retained, want 0", remaining)
	}
}

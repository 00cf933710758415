package queue

import (
	"sync"
	"testing"

	"github.com/atendezap/atendezap/internal/media"
)

func TestEnqueueDrain_FIFO(t *testing.T) {
	q := NewSenderQueue()
	q.Enqueue("s1", Fragment{Content: "f1", Kind: media.KindText})
	q.Enqueue("s1", Fragment{Content: "f2", Kind: media.KindAudio})
	q.Enqueue("s1", Fragment{Content: "f3", Kind: media.KindText})

	frags := q.Drain("s1")
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	for i, want := range []string{"f1", "f2", "f3"} {
		if frags[i].Content != want {
			t.Errorf("fragment %d: expected %q, got %q", i, want, frags[i].Content)
		}
	}
}

func TestDrain_EmptyReturnsNil(t *testing.T) {
	q := NewSenderQueue()
	if frags := q.Drain("nobody"); frags != nil {
		t.Fatalf("expected nil for empty sender, got %v", frags)
	}
}

func TestDrain_RemovesFragments(t *testing.T) {
	q := NewSenderQueue()
	q.Enqueue("s1", Fragment{Content: "f1"})
	q.Drain("s1")
	if n := q.Count("s1"); n != 0 {
		t.Fatalf("expected empty buffer after drain, got %d", n)
	}
	if frags := q.Drain("s1"); frags != nil {
		t.Fatalf("second drain should be empty, got %v", frags)
	}
}

func TestQueue_SendersIndependent(t *testing.T) {
	q := NewSenderQueue()
	q.Enqueue("a", Fragment{Content: "fa"})
	q.Enqueue("b", Fragment{Content: "fb"})

	if frags := q.Drain("a"); len(frags) != 1 || frags[0].Content != "fa" {
		t.Fatalf("unexpected drain for a: %v", frags)
	}
	if n := q.Count("b"); n != 1 {
		t.Fatalf("draining a must not touch b, got count %d", n)
	}
}

func TestClear(t *testing.T) {
	q := NewSenderQueue()
	q.Enqueue("s1", Fragment{Content: "f1"})
	q.Clear("s1")
	if n := q.Count("s1"); n != 0 {
		t.Fatalf("expected 0 after clear, got %d", n)
	}
}

// Two simultaneous drains: exactly one must win the buffered fragments,
// the other must observe an empty buffer.
func TestDrain_ConcurrentAtMostOnce(t *testing.T) {
	for round := 0; round < 100; round++ {
		q := NewSenderQueue()
		for i := 0; i < 5; i++ {
			q.Enqueue("s1", Fragment{Content: "f"})
		}

		var wg sync.WaitGroup
		results := make([][]Fragment, 2)
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = q.Drain("s1")
			}(i)
		}
		close(start)
		wg.Wait()

		got := len(results[0]) + len(results[1])
		if got != 5 {
			t.Fatalf("round %d: fragments lost or duplicated: %d + %d", round, len(results[0]), len(results[1]))
		}
		if len(results[0]) != 0 && len(results[1]) != 0 {
			t.Fatalf("round %d: both drains won", round)
		}
	}
}

func TestEnqueue_ConcurrentAppendOnly(t *testing.T) {
	q := NewSenderQueue()
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue("s1", Fragment{Content: "f"})
		}()
	}
	wg.Wait()
	if got := q.Count("s1"); got != n {
		t.Fatalf("expected %d fragments, got %d", n, got)
	}
}

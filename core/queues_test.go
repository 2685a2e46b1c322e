package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
)

func TestFrameRingPreservesOrder(t *testing.T) {
	r := newFrameRing(4, nil)

	for seq := uint64(1); seq <= 3; seq++ {
		r.Push(audio.Frame{Seq: seq})
	}

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		frame, ok := r.Pop(ctx)
		if !ok {
			t.Fatalf("expected frame %d, got closed ring", seq)
		}
		if frame.Seq != seq {
			t.Fatalf("expected frame %d, got %d", seq, frame.Seq)
		}
	}
}

func TestFrameRingOverwritesOldestWhenFull(t *testing.T) {
	var dropped []uint64
	r := newFrameRing(2, func(frame audio.Frame) {
		dropped = append(dropped, frame.Seq)
	})

	for seq := uint64(1); seq <= 4; seq++ {
		r.Push(audio.Frame{Seq: seq})
	}

	if len(dropped) != 2 || dropped[0] != 1 || dropped[1] != 2 {
		t.Fatalf("expected frames 1 and 2 dropped, got %v", dropped)
	}

	ctx := context.Background()
	first, _ := r.Pop(ctx)
	second, _ := r.Pop(ctx)
	if first.Seq != 3 || second.Seq != 4 {
		t.Fatalf("expected surviving frames 3 and 4, got %d and %d", first.Seq, second.Seq)
	}
}

func TestFrameRingConcurrentPushesNeverExceedCapacity(t *testing.T) {
	const capacity = 2
	r := newFrameRing(capacity, func(audio.Frame) {})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Push(audio.Frame{Seq: uint64(worker*200 + i)})
				if length := r.Len(); length > capacity {
					t.Errorf("ring grew to %d frames, capacity is %d", length, capacity)
					return
				}
			}
		}(worker)
	}
	wg.Wait()

	if length := r.Len(); length != capacity {
		t.Fatalf("expected a full ring of %d frames after the pushes, got %d", capacity, length)
	}
}

func TestFrameRingPopBlocksUntilPush(t *testing.T) {
	r := newFrameRing(4, nil)

	popped := make(chan audio.Frame, 1)
	go func() {
		frame, ok := r.Pop(context.Background())
		if ok {
			popped <- frame
		}
	}()

	select {
	case <-popped:
		t.Fatalf("expected pop to block on an empty ring")
	case <-time.After(20 * time.Millisecond):
	}

	r.Push(audio.Frame{Seq: 7})
	select {
	case frame := <-popped:
		if frame.Seq != 7 {
			t.Fatalf("expected frame 7, got %d", frame.Seq)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected pop to return after push")
	}
}

func TestFrameRingPopReturnsOnClose(t *testing.T) {
	r := newFrameRing(4, nil)

	done := make(chan bool, 1)
	go func() {
		_, ok := r.Pop(context.Background())
		done <- ok
	}()

	r.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected pop to report a closed ring")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected pop to return after close")
	}
}

func TestFrameRingPopReturnsOnContextCancel(t *testing.T) {
	r := newFrameRing(4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := r.Pop(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected pop to give up on context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected pop to return after cancellation")
	}
}

func TestFrameRingDrainsBufferedFramesAfterClose(t *testing.T) {
	r := newFrameRing(4, nil)
	r.Push(audio.Frame{Seq: 1})
	r.Close()

	frame, ok := r.Pop(context.Background())
	if !ok || frame.Seq != 1 {
		t.Fatalf("expected the buffered frame to drain after close, got ok=%v seq=%d", ok, frame.Seq)
	}
	if _, ok := r.Pop(context.Background()); ok {
		t.Fatalf("expected the drained ring to report closed")
	}
}

func TestSendGivesUpOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queue := make(chan int) // unbuffered, nothing receiving
	if send(ctx, queue, 1) {
		t.Fatalf("expected send to fail on a cancelled context")
	}
}

package head

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestListen_AckRoundTrip(t *testing.T) {
	tr := NewChannelTransport(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const groupID, headRank, rank = 1, 0, 1
	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, tr, groupID, headRank, 1, 1, func(_ context.Context, msg Message) (Message, error) {
			return Message{Kind: KindAck, Level: msg.Level, CkptID: msg.CkptID, CorrelationID: msg.CorrelationID}, nil
		})
	}()

	if err := tr.Send(ctx, groupID, headRank, Message{Kind: KindCheckpoint, Level: 2, CkptID: 5, FromRank: rank}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply, err := tr.Recv(ctx, groupID, rank)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if reply.Kind != KindAck || reply.CkptID != 5 {
		t.Fatalf("reply = %+v, want Ack for ckpt 5", reply)
	}

	if err := tr.Send(ctx, groupID, headRank, Message{Kind: KindEnd}); err != nil {
		t.Fatalf("Send end: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Listen returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after KindEnd")
	}
}

// At most one post-processing task may be active at a time per group:
// maxInline=1 must serialize two concurrent checkpoint notices instead of
// running their handlers in parallel.
func TestListen_SerializesInlineWorkWithinGroup(t *testing.T) {
	tr := NewChannelTransport(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const groupID, headRank = 2, 0
	var active int32
	var maxObserved int32

	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, tr, groupID, headRank, 1, 2, func(_ context.Context, msg Message) (Message, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return Message{Kind: KindAck, CkptID: msg.CkptID}, nil
		})
	}()

	tr.Send(ctx, groupID, headRank, Message{Kind: KindCheckpoint, CkptID: 1, FromRank: 1})
	tr.Send(ctx, groupID, headRank, Message{Kind: KindCheckpoint, CkptID: 2, FromRank: 2})

	if _, err := tr.Recv(ctx, groupID, 1); err != nil {
		t.Fatalf("Recv(1): %v", err)
	}
	if _, err := tr.Recv(ctx, groupID, 2); err != nil {
		t.Fatalf("Recv(2): %v", err)
	}

	tr.Send(ctx, groupID, headRank, Message{Kind: KindEnd, FromRank: 1})
	tr.Send(ctx, groupID, headRank, Message{Kind: KindEnd, FromRank: 2})
	<-done

	if maxObserved != 1 {
		t.Fatalf("max concurrent inline tasks = %d, want 1", maxObserved)
	}
}

// A head serving two application ranks must not stop after only the first
// rank's END arrives.
func TestListen_WaitsForAllRanksToEnd(t *testing.T) {
	tr := NewChannelTransport(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const groupID, headRank = 3, 0
	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, tr, groupID, headRank, 1, 2, func(_ context.Context, msg Message) (Message, error) {
			return Message{Kind: KindAck, CkptID: msg.CkptID}, nil
		})
	}()

	if err := tr.Send(ctx, groupID, headRank, Message{Kind: KindEnd, FromRank: 1}); err != nil {
		t.Fatalf("Send end(1): %v", err)
	}

	select {
	case err := <-done:
		t.Fatalf("Listen returned early after only one of two ranks ended (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := tr.Send(ctx, groupID, headRank, Message{Kind: KindEnd, FromRank: 2}); err != nil {
		t.Fatalf("Send end(2): %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Listen returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after all ranks ended")
	}
}

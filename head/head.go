// Package head implements the dedicated-head offload protocol: application
// ranks hand a checkpoint file off to their group's head rank, which
// performs Level 2/3 post-processing out of band so the application
// returns to compute without waiting. The head is a single-threaded
// cooperative dispatcher driven by a blocking receive, with a bounded work
// pool capping concurrently active post-processing tasks per group.
package head

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Kind tags a Message's purpose so head.Listen can switch on it without
// the sender and receiver sharing an untyped opcode; invalid transitions
// are unrepresentable on the wire.
type Kind int

const (
	KindCheckpoint Kind = iota // rank -> head: a file is ready for offload
	KindReject                 // rank -> head: the write failed; head -> rank: post-processing failed, the checkpoint does not count
	KindAck                    // head -> rank: offload accepted and durable
	KindEnd                    // rank -> head: Finalize, drain and stop listening
)

func (k Kind) String() string {
	switch k {
	case KindCheckpoint:
		return "checkpoint"
	case KindReject:
		return "reject"
	case KindAck:
		return "ack"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Message is the unit exchanged between an application rank and its head.
type Message struct {
	Kind          Kind
	Level         int
	CkptID        int
	FromRank      int
	Path          string
	CorrelationID uuid.UUID
}

// Transport abstracts the channel a rank and its head communicate over.
// A multi-process deployment supplies its own implementation over its
// point-to-point transport; NewChannelTransport below is the
// single-process stand-in used by tests and the demo command.
type Transport interface {
	Send(ctx context.Context, groupID, rank int, msg Message) error
	Recv(ctx context.Context, groupID, rank int) (Message, error)
}

// ChannelTransport implements Transport with one buffered Go channel per
// (groupID, rank) pair, standing in for the inter-process transport a real
// deployment would use. Mailboxes are created lazily under a mutex since
// every rank's goroutine shares one transport.
type ChannelTransport struct {
	buf   int
	mu    sync.Mutex
	chans map[int]map[int]chan Message
}

// NewChannelTransport builds a transport with per-rank mailboxes of depth
// buf: the head must be able to absorb a burst of checkpoint notices
// without blocking ranks that finished a timestep.
func NewChannelTransport(buf int) *ChannelTransport {
	return &ChannelTransport{buf: buf, chans: make(map[int]map[int]chan Message)}
}

func (c *ChannelTransport) mailbox(groupID, rank int) chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.chans[groupID]
	if !ok {
		g = make(map[int]chan Message)
		c.chans[groupID] = g
	}
	ch, ok := g[rank]
	if !ok {
		ch = make(chan Message, c.buf)
		g[rank] = ch
	}
	return ch
}

func (c *ChannelTransport) Send(ctx context.Context, groupID, rank int, msg Message) error {
	select {
	case c.mailbox(groupID, rank) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ChannelTransport) Recv(ctx context.Context, groupID, rank int) (Message, error) {
	select {
	case msg := <-c.mailbox(groupID, rank):
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Handler processes one KindCheckpoint message and returns the Message to
// send back to the rank (KindAck or KindReject).
type Handler func(ctx context.Context, msg Message) (Message, error)

// Listen runs the head's dispatch loop for one group: it receives messages
// addressed to headRank, hands KindCheckpoint messages to handle, and caps
// the number of concurrently active post-processing tasks at maxInline via
// a buffered work channel (one per group in the default configuration).
// nbAppRanks is the number of application ranks in the group; Listen
// decrements a live-rank count on each KindEnd and returns only once every
// application rank in the group has ended, or when ctx is canceled.
func Listen(ctx context.Context, t Transport, groupID, headRank, maxInline, nbAppRanks int, handle Handler) error {
	workSlots := make(chan struct{}, maxInline)
	eg, ctx := errgroup.WithContext(ctx)
	liveRanks := nbAppRanks

	for {
		msg, err := t.Recv(ctx, groupID, headRank)
		if err != nil {
			break
		}

		switch msg.Kind {
		case KindEnd:
			liveRanks--
			log.Debug("head: received end", "group", groupID, "live_ranks_remaining", liveRanks)
			if liveRanks > 0 {
				continue
			}
			if werr := eg.Wait(); werr != nil {
				return werr
			}
			return nil
		case KindReject:
			// The rank's own write failed before offload; nothing to
			// post-process, just echo the rejection so drainPreviousLocked
			// doesn't block waiting for a reply that will never come.
			reply := msg
			if err := t.Send(ctx, groupID, msg.FromRank, reply); err != nil {
				return err
			}
		case KindCheckpoint:
			select {
			case workSlots <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			msg := msg
			eg.Go(func() error {
				defer func() { <-workSlots }()
				reply, herr := handle(ctx, msg)
				if herr != nil {
					log.Error("head: post-processing failed", "ckptID", msg.CkptID, "level", msg.Level, "err", herr)
					reply = Message{Kind: KindReject, Level: msg.Level, CkptID: msg.CkptID, CorrelationID: msg.CorrelationID}
				}
				return t.Send(ctx, groupID, msg.FromRank, reply)
			})
		default:
			log.Warn("head: unexpected message kind", "kind", msg.Kind)
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return fmt.Errorf("head: listen loop for group %d stopped unexpectedly", groupID)
}

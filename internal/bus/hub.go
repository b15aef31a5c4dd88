package bus

import (
	"log/slog"
	"sync"
)

// QueueDepth is the bounded depth of every inbound and outbound queue.
const QueueDepth = 100

// ErrChannelNotFound is returned by SendOutbound when no channel is
// registered under the message's channel name.
type ErrChannelNotFound struct{ Channel Channel }

func (e ErrChannelNotFound) Error() string {
	return "bus: no channel registered: " + string(e.Channel)
}

// Hub is the single process-wide broker between chat channels and the agent
// loop. It owns one bounded inbound queue and one bounded outbound queue per
// registered channel. Queues never block a sender: a full queue drops its
// oldest element, logs a warning, then enqueues the new one.
//
// The inbound queue has exactly one consumer (the agent loop); each outbound
// queue has exactly one consumer (its Channel). Senders never hold the
// registry lock while sending — the target queue is looked up and cloned
// out, then used without the lock held.
type Hub struct {
	inbound chan InboundMessage

	mu        sync.RWMutex
	outbound  map[Channel]chan OutboundMessage
}

// NewHub creates a Hub with an inbound queue of depth QueueDepth.
func NewHub() *Hub {
	return &Hub{
		inbound:  make(chan InboundMessage, QueueDepth),
		outbound: make(map[Channel]chan OutboundMessage),
	}
}

// RegisterChannel allocates a bounded outbound queue for the given channel
// name and returns the receive-only end for that channel's consumer.
func (h *Hub) RegisterChannel(name Channel) <-chan OutboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.outbound[name]
	if !ok {
		q = make(chan OutboundMessage, QueueDepth)
		h.outbound[name] = q
	}
	return q
}

// SendInbound enqueues msg on the inbound queue, dropping the oldest pending
// message first if the queue is full.
func (h *Hub) SendInbound(msg InboundMessage) {
	for {
		select {
		case h.inbound <- msg:
			return
		default:
		}
		select {
		case dropped := <-h.inbound:
			slog.Warn("hub: inbound queue full, dropping oldest", "channel", dropped.Channel(), "chat_id", dropped.ChatID())
		default:
		}
	}
}

// ReceiveInbound returns the receive-only inbound queue. Only the agent loop
// should consume from it.
func (h *Hub) ReceiveInbound() <-chan InboundMessage {
	return h.inbound
}

// SendOutbound routes msg to the outbound queue registered for its channel,
// dropping the oldest pending message first if that queue is full.
// Returns ErrChannelNotFound if no channel is registered under that name.
func (h *Hub) SendOutbound(msg OutboundMessage) error {
	h.mu.RLock()
	q, ok := h.outbound[msg.Channel()]
	h.mu.RUnlock()
	if !ok {
		return ErrChannelNotFound{Channel: msg.Channel()}
	}

	for {
		select {
		case q <- msg:
			return nil
		default:
		}
		select {
		case dropped := <-q:
			slog.Warn("hub: outbound queue full, dropping oldest", "channel", dropped.Channel(), "chat_id", dropped.ChatID())
		default:
		}
	}
}

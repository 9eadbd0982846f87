package notify

import (
	"context"
	"sync"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const subscriberBuffer = 16

// Hub fans session snapshots out to in-process subscribers keyed by room code.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan *entity.Session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan *entity.Session]struct{}),
	}
}

// Subscribe - registers a subscriber until ctx is done, then closes its channel.
func (that *Hub) Subscribe(ctx context.Context, roomCode string) <-chan *entity.Session {
	ch := make(chan *entity.Session, subscriberBuffer)

	that.mu.Lock()
	if that.subscribers[roomCode] == nil {
		that.subscribers[roomCode] = make(map[chan *entity.Session]struct{})
	}
	that.subscribers[roomCode][ch] = struct{}{}
	that.mu.Unlock()

	go func() {
		<-ctx.Done()

		that.mu.Lock()
		defer that.mu.Unlock()

		delete(that.subscribers[roomCode], ch)
		if len(that.subscribers[roomCode]) == 0 {
			delete(that.subscribers, roomCode)
		}
		close(ch)
	}()

	return ch
}

// Publish - never blocks. A subscriber with a full buffer loses its oldest snapshot.
func (that *Hub) Publish(session *entity.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for ch := range that.subscribers[session.RoomCode] {
		snapshot := session.Clone()

		select {
		case ch <- snapshot:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (that *Hub) Subscribers(roomCode string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.subscribers[roomCode])
}

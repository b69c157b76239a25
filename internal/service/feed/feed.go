package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"e2e_messaging/internal/service/events"
	"e2e_messaging/internal/utils/log"
)

const writeTimeout = 10 * time.Second

var kinds = []events.Kind{
	events.MessageSent,
	events.MessageRead,
	events.ConversationCreated,
	events.ConversationUpdated,
}

type (
	// Source is anything events can be subscribed to, usually the messaging service.
	Source interface {
		On(kind events.Kind, fn events.Handler) events.Subscription
		Off(sub events.Subscription) bool
	}

	Frame struct {
		Event   events.Kind `json:"event"`
		Payload any         `json:"payload"`
	}

	// Feed streams events to websocket clients. A client that falls more than
	// buffer frames behind misses frames rather than stalling the emitter.
	Feed struct {
		source   Source
		buffer   int
		upgrader websocket.Upgrader
	}
)

func NewFeed(source Source, buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	// the zero Upgrader rejects cross-origin requests
	return &Feed{
		source: source,
		buffer: buffer,
	}
}

func (f *Feed) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("feed upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		frames := make(chan Frame, f.buffer)
		subs := make([]events.Subscription, 0, len(kinds))
		for _, k := range kinds {
			subs = append(subs, f.source.On(k, func(ev events.Event) {
				select {
				case frames <- Frame{Event: ev.Kind, Payload: ev.Payload()}:
				default:
					log.Warn("feed client too slow, dropping frame", zap.String("event", string(ev.Kind)))
				}
			}))
		}
		defer func() {
			for _, s := range subs {
				f.source.Off(s)
			}
		}()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					log.Debug("feed client closed", zap.Error(err))
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case fr := <-frames:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(fr); err != nil {
					log.Debug("feed write failed", zap.Error(err))
					return
				}
			}
		}
	}
}

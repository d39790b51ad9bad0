package wsapi

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type heldKey struct {
	asset model.AssetID
	topic port.Topic
}

// session 一个 websocket 连接，同时是 port.Viewer
type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// 只在 readLoop 中访问
	held map[heldKey]struct{}

	writeTimeout time.Duration
}

func newSession(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *session {
	return &session{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		held:         make(map[heldKey]struct{}),
		writeTimeout: writeTimeout,
	}
}

func (s *session) ID() string { return s.id }

func (s *session) holds(asset model.AssetID, topic port.Topic) bool {
	_, ok := s.held[heldKey{asset, topic}]
	return ok
}

func (s *session) hold(asset model.AssetID, topic port.Topic) {
	if asset != "" {
		s.held[heldKey{asset, topic}] = struct{}{}
	}
}

// release 返回该连接此前是否持有订阅
func (s *session) release(asset model.AssetID, topic port.Topic) bool {
	k := heldKey{asset, topic}
	if _, ok := s.held[k]; !ok {
		return false
	}
	delete(s.held, k)
	return true
}

func (s *session) DeliverQuote(q model.PriceQuote) bool {
	return s.enqueue(priceUpdate{Type: "price_update", Data: q})
}

func (s *session) DeliverTrades(asset model.AssetID, trades []model.Trade) bool {
	return s.enqueue(tradesUpdate{Type: "trades_update", TokenAddress: string(asset), Data: trades})
}

// enqueue 不阻塞，缓冲满或已关闭时丢弃
func (s *session) enqueue(v any) bool {
	b, err := sonic.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("marshal viewer message failed")
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *session) writeLoop() {
	defer s.close()
	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Err(err).Str("session", s.id).Msg("viewer write failed")
				return
			}
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

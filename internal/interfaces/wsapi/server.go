package wsapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

// Relay viewer 订阅入口（service.Relay 实现）
type Relay interface {
	SubscribeQuote(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error)
	SubscribeTrades(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error)
	UnsubscribeQuote(raw string, viewer port.Viewer)
	UnsubscribeTrades(raw string, viewer port.Viewer)
	Disconnect(viewer port.Viewer)
	QuoteSnapshot(ctx context.Context, asset model.AssetID) (model.PriceQuote, bool)
	TradesSnapshot(ctx context.Context, asset model.AssetID) []model.Trade
}

type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	Health       func() Health
	Metrics      http.Handler // nil 时不挂载 /metrics
}

type Server struct {
	relay    Relay
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(relay Relay, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Server{
		relay:    relay,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	return mux
}

// Run 阻塞直到 ctx 结束
func (s *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	log.Info().Str("addr", addr).Msg("viewer server listening")

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	h := Health{Status: "ok"}
	if s.opts.Health != nil {
		h = s.opts.Health()
	}
	b, err := sonic.Marshal(h)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sess := newSession(conn, s.opts.SendBuffer, s.opts.WriteTimeout)
	log.Debug().Str("session", sess.id).Str("remote", r.RemoteAddr).Msg("viewer connected")

	go sess.writeLoop()
	go s.readLoop(sess)
}

func (s *Server) readLoop(sess *session) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.relay.Disconnect(sess)
		sess.close()
		log.Debug().Str("session", sess.id).Msg("viewer disconnected")
	}()

	for {
		_, b, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := sonic.Unmarshal(b, &msg); err != nil {
			sess.enqueue(errorMessage{Type: "error", Message: "invalid message"})
			continue
		}
		s.handle(ctx, sess, msg)
	}
}

func (s *Server) handle(ctx context.Context, sess *session, msg inbound) {
	token := strings.TrimSpace(msg.TokenAddress)

	var err error
	switch msg.Type {
	case msgSubscribe:
		err = s.subscribe(ctx, sess, token, port.TopicQuote)
	case msgSubscribeTrades:
		err = s.subscribe(ctx, sess, token, port.TopicTrades)
	case msgUnsubscribe:
		if sess.release(model.NormalizeAsset(token), port.TopicQuote) {
			s.relay.UnsubscribeQuote(token, sess)
		}
	case msgUnsubscribeTrades:
		if sess.release(model.NormalizeAsset(token), port.TopicTrades) {
			s.relay.UnsubscribeTrades(token, sess)
		}
	default:
		sess.enqueue(errorMessage{Type: "error", TokenAddress: token, Message: "unknown message type " + msg.Type})
		return
	}
	if err != nil {
		sess.enqueue(errorMessage{Type: "error", TokenAddress: token, Message: err.Error()})
	}
}

// subscribe 同一连接重复订阅只补发快照，不重复计数
func (s *Server) subscribe(ctx context.Context, sess *session, token string, topic port.Topic) error {
	asset := model.NormalizeAsset(token)
	if sess.holds(asset, topic) {
		if topic == port.TopicQuote {
			if q, ok := s.relay.QuoteSnapshot(ctx, asset); ok {
				sess.DeliverQuote(q)
			}
		} else if trades := s.relay.TradesSnapshot(ctx, asset); len(trades) > 0 {
			sess.DeliverTrades(asset, trades)
		}
		return nil
	}

	var err error
	if topic == port.TopicQuote {
		asset, err = s.relay.SubscribeQuote(ctx, token, sess)
	} else {
		asset, err = s.relay.SubscribeTrades(ctx, token, sess)
	}
	sess.hold(asset, topic)
	return err
}

package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

var (
	ErrNotConnected = errors.New("feed: not connected")
	ErrClosed       = errors.New("feed: connection closed")
)

// Config 上游连接参数
type Config struct {
	URL               string
	APIKey            string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration // 0 表示不设置读超时
}

func (c *Config) applyDefaults() {
	c.URL = strings.TrimSpace(c.URL)
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Connection 唯一的上游 socket
// 状态机: Disconnected -> Connecting -> Open -> Disconnected -(延迟)-> Connecting
// 心跳和重连定时器各自最多一个，新建前先取消旧的
type Connection struct {
	cfg     Config
	pools   port.ActivePools
	handler port.FeedHandler
	dialer  *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     model.ConnState
	conn      *websocket.Conn
	epoch     uint64
	reconnect *time.Timer
	hbStop    chan struct{}
	closed    bool
	onState   func(model.ConnState)

	writeMu sync.Mutex
}

func NewConnection(cfg Config, pools port.ActivePools, handler port.FeedHandler) *Connection {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		cfg:     cfg,
		pools:   pools,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		ctx:     ctx,
		cancel:  cancel,
		state:   model.Disconnected,
	}
}

// OnStateChange 状态变化回调（持锁调用，不能阻塞）
func (c *Connection) OnStateChange(fn func(model.ConnState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Start 发起首次连接，ctx 结束时关闭
func (c *Connection) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.ctx.Done():
		}
	}()
	c.Connect()
}

func (c *Connection) State() model.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect 实现 port.Upstream，Connecting/Open 时为空操作
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.closed || c.state == model.Connecting || c.state == model.Open {
		c.mu.Unlock()
		return
	}
	c.stopReconnectLocked()
	c.epoch++
	epoch := c.epoch
	c.setStateLocked(model.Connecting)
	c.mu.Unlock()

	go c.dial(epoch)
}

func (c *Connection) dial(epoch uint64) {
	log.Info().Str("url", c.cfg.URL).Msg("feed connecting")

	dctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
	ws, _, err := c.dialer.DialContext(dctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("feed dial failed")
		c.disconnected(epoch, err)
		return
	}

	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != model.Connecting {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.conn = ws
	c.setStateLocked(model.Open)
	c.startHeartbeatLocked()
	c.mu.Unlock()

	log.Info().Msg("feed connected")
	go c.readLoop(ws, epoch)

	if err := c.pools.ReplayActive(c.SubscribePools); err != nil {
		log.Warn().Err(err).Msg("replay subscriptions failed")
		_ = ws.Close()
	}
}

func (c *Connection) readLoop(ws *websocket.Conn, epoch uint64) {
	for {
		if c.cfg.ReadTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		_, b, err := ws.ReadMessage()
		if err != nil {
			c.disconnected(epoch, err)
			return
		}
		ev, ok := DecodeFrame(b, time.Now())
		if !ok {
			log.Debug().Int("bytes", len(b)).Msg("unrecognized feed frame dropped")
			continue
		}
		c.handler.HandleFeedEvent(ev)
	}
}

// disconnected 进入 Disconnected：停心跳、丢弃 socket、安排一次重连
func (c *Connection) disconnected(epoch uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state == model.Disconnected {
		return
	}
	c.stopHeartbeatLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(model.Disconnected)
	if c.closed {
		return
	}
	log.Warn().Err(cause).Dur("retry_in", c.cfg.ReconnectDelay).Msg("feed disconnected, reconnecting")
	c.scheduleReconnectLocked()
}

func (c *Connection) scheduleReconnectLocked() {
	c.stopReconnectLocked()
	var t *time.Timer
	t = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		stale := c.reconnect != t
		if !stale {
			c.reconnect = nil
		}
		c.mu.Unlock()
		if !stale {
			c.Connect()
		}
	})
	c.reconnect = t
}

func (c *Connection) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Connection) startHeartbeatLocked() {
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.hbStop = stop

	go func() {
		t := time.NewTicker(c.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := c.send(pingFrame); err != nil {
					log.Debug().Err(err).Msg("heartbeat skipped")
				}
			}
		}
	}()
}

func (c *Connection) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

// HeartbeatActive 是否有心跳在运行
func (c *Connection) HeartbeatActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hbStop != nil
}

// ReconnectPending 是否有待执行的重连
func (c *Connection) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect != nil
}

// SubscribePools 实现 port.Upstream
func (c *Connection) SubscribePools(pools []model.PoolRef) error {
	frame, err := EncodeSubscribe(c.cfg.APIKey, pools)
	if err != nil {
		return err
	}
	return c.send(frame)
}

// UnsubscribePools 实现 port.Upstream
func (c *Connection) UnsubscribePools(pools []model.PoolRef) error {
	frame, err := EncodeUnsubscribe(c.cfg.APIKey, pools)
	if err != nil {
		return err
	}
	return c.send(frame)
}

func (c *Connection) send(frame []byte) error {
	c.mu.Lock()
	ws, state, closed := c.conn, c.state, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if ws == nil || state != model.Open {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

// Close 关闭连接，不再重连
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.setStateLocked(model.Closing)
	c.stopReconnectLocked()
	c.stopHeartbeatLocked()
	ws := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = ws.Close()
	}

	c.mu.Lock()
	c.setStateLocked(model.Disconnected)
	c.mu.Unlock()
	log.Info().Msg("feed closed")
	return nil
}

func (c *Connection) setStateLocked(s model.ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

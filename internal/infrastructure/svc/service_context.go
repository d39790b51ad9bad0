package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"mdrelay/internal/application/container"
	"mdrelay/internal/application/port"
	"mdrelay/internal/application/service"
	"mdrelay/internal/application/usecase/monitor"
	"mdrelay/internal/domain/model"
	"mdrelay/internal/infrastructure/config"
	infracontainer "mdrelay/internal/infrastructure/container"
	"mdrelay/internal/infrastructure/feed"
	"mdrelay/internal/infrastructure/metrics"
	"mdrelay/internal/infrastructure/mobula"
	"mdrelay/internal/interfaces/console"
	"mdrelay/internal/interfaces/wsapi"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	storage *infracontainer.Container
	client  *mobula.Client
	gateway *mobula.Gateway
	metrics *metrics.Relay
	conn    *feed.Connection

	// 输出端口
	Sink port.Sink

	// 应用业务组件（依赖基础设施）
	app *container.Container

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		metrics:     metrics.New(),
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖关系有序初始化
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	storage, err := infracontainer.New(sc.Config)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	sc.storage = storage
	sc.closerChain = append(sc.closerChain, storage.Close)

	// 1. 行情 HTTP 服务
	cfg := sc.Config
	sc.client = mobula.NewClient(mobula.ClientConfig{
		APIKey:     cfg.Mobula.APIKey,
		Timeout:    time.Duration(cfg.Mobula.TimeoutSec) * time.Second,
		RateLimit:  cfg.Mobula.RatePerMin,
		MaxRetries: cfg.Mobula.MaxRetries,
	})
	sc.closerChain = append(sc.closerChain, sc.client.Close)
	sc.gateway = mobula.NewGateway(sc.client, mobula.Config{
		RestURL:     cfg.Mobula.RestURL,
		TradesURL:   cfg.Mobula.TradesURL,
		RefPriceTTL: time.Duration(cfg.Mobula.RefPriceTTLSec) * time.Second,
	})

	// 2. 应用服务
	sc.app = container.New(storage.Repository(), sc.gateway, sc.metrics, container.Settings{
		Resolver: service.ResolverConfig{
			Chain:    cfg.Relay.Chain,
			MaxPools: cfg.Relay.MaxPools,
			CacheTTL: cfg.PoolCacheTTL(),
			Timeout:  time.Duration(cfg.Relay.ResolveTimeoutSec) * time.Second,
		},
		Relay: service.RelayConfig{
			SnapshotTimeout: time.Duration(cfg.Relay.SnapshotTimeoutSec) * time.Second,
			TradeLimit:      cfg.Relay.TradeHistory,
		},
		HistorySize:   cfg.Relay.TradeHistory,
		FlushInterval: cfg.FlushInterval(),
	})
	sc.app.PriceService().OnFlush(sc.metrics.QuotesFlushed)

	// 3. 上游连接（依赖注册表做重放，注册表又通过它收发订阅）
	registry := sc.app.Registry()
	sc.conn = feed.NewConnection(feed.Config{
		URL:               cfg.Feed.WsURL,
		APIKey:            cfg.Mobula.APIKey,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		ReconnectDelay:    cfg.ReconnectDelay(),
		DialTimeout:       time.Duration(cfg.Feed.DialTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.Feed.WriteTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.Feed.ReadTimeoutSec) * time.Second,
	}, registry, sc.app.Dispatcher())
	sc.conn.OnStateChange(sc.metrics.ConnState)
	registry.BindUpstream(sc.conn)
	sc.closerChain = append(sc.closerChain, sc.conn.Close)

	log.Info().
		Str("ws", cfg.Feed.WsURL).
		Str("chain", cfg.Relay.Chain).
		Int("max_pools", cfg.Relay.MaxPools).
		Msg("✓ All components initialized")
	return nil
}

// Relay viewer 订阅入口
func (sc *ServiceContext) Relay() *service.Relay {
	return sc.app.Relay()
}

// Health /healthz 数据
func (sc *ServiceContext) Health() wsapi.Health {
	st := sc.app.Registry().Stats()
	status := "ok"
	if sc.conn.State() != model.Open {
		status = "degraded"
	}
	return wsapi.Health{
		Status:  status,
		Feed:    sc.conn.State().String(),
		Assets:  st.Assets,
		Viewers: st.Viewers,
		Pools:   st.Pools,
	}
}

// Run 启动上游连接、报价落库、viewer 服务和控制台监视，直到 ctx 结束
func (sc *ServiceContext) Run(ctx context.Context) error {
	cfg := sc.Config
	if !cfg.Server.Enabled && len(cfg.App.Watch) == 0 {
		return ErrNothingToRun
	}

	sc.conn.Start(ctx)

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		sc.app.PriceService().Run(ctx)
		return nil
	})

	if cfg.Server.Enabled {
		srv := wsapi.NewServer(sc.app.Relay(), wsapi.Options{
			SendBuffer:   cfg.Server.SendBuffer,
			WriteTimeout: time.Duration(cfg.Feed.WriteTimeoutSec) * time.Second,
			Health:       sc.Health,
			Metrics:      sc.metrics.Handler(),
		})
		p.Go(func(ctx context.Context) error {
			return srv.Run(ctx, cfg.Server.Addr)
		})
	}

	if len(cfg.App.Watch) > 0 {
		watcher := monitor.NewService(monitor.ServiceDeps{
			Relay:           sc.app.Relay(),
			Assets:          cfg.App.Watch,
			PrintEvery:      cfg.PrintEvery(),
			ChangeThreshold: 1,
			Sink:            sc.Sink,
		})
		p.Go(func(ctx context.Context) error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return p.Wait()
}

// Close 关闭所有资源（后进先出）
func (sc *ServiceContext) Close() error {
	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}

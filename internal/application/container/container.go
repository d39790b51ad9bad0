package container

import (
	"time"

	"mdrelay/internal/application/port"
	"mdrelay/internal/application/service"
)

// Gateway 行情服务，同时提供池子发现
type Gateway interface {
	port.QuoteGateway
	service.PoolSource
}

// Settings 应用层参数
type Settings struct {
	Resolver      service.ResolverConfig
	Relay         service.RelayConfig
	HistorySize   int
	FlushInterval time.Duration
}

// Container 按需创建应用服务，每个只创建一次
type Container struct {
	repo     port.Repository
	gateway  Gateway
	metrics  port.Metrics
	settings Settings

	resolver     *service.CachedResolver
	registry     *service.Registry
	dispatcher   *service.Dispatcher
	relay        *service.Relay
	priceService *service.PriceService
}

func New(repo port.Repository, gateway Gateway, metrics port.Metrics, settings Settings) *Container {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Container{
		repo:     repo,
		gateway:  gateway,
		metrics:  metrics,
		settings: settings,
	}
}

func (c *Container) Repository() port.Repository {
	return c.repo
}

func (c *Container) Resolver() *service.CachedResolver {
	if c.resolver == nil {
		c.resolver = service.NewCachedResolver(c.gateway, c.repo, c.settings.Resolver, c.metrics)
	}
	return c.resolver
}

// Registry 订阅表，移除订阅时同步清理分发器中的缓存
func (c *Container) Registry() *service.Registry {
	c.routing()
	return c.registry
}

func (c *Container) Dispatcher() *service.Dispatcher {
	c.routing()
	return c.dispatcher
}

// routing 注册表和分发器互相引用，总是成对创建
func (c *Container) routing() {
	if c.registry != nil {
		return
	}
	reg := service.NewRegistry(c.Resolver(), c.metrics)
	disp := service.NewDispatcher(reg, c.settings.HistorySize, c.metrics)
	disp.SetQuoteSink(c.PriceService())
	reg.OnRemoved(disp.Forget)
	c.registry, c.dispatcher = reg, disp
}

func (c *Container) Relay() *service.Relay {
	if c.relay == nil {
		c.relay = service.NewRelay(c.Registry(), c.Dispatcher(), c.gateway, c.repo, c.settings.Relay)
	}
	return c.relay
}

func (c *Container) PriceService() *service.PriceService {
	if c.priceService == nil {
		c.priceService = service.NewPriceService(c.repo, c.settings.FlushInterval)
	}
	return c.priceService
}

func (c *Container) Close() error {
	return c.repo.Close()
}

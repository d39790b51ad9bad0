package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/infrastructure/config"
	"mdrelay/internal/infrastructure/storage"
	"mdrelay/internal/infrastructure/storage/composite"
	pgrepo "mdrelay/internal/infrastructure/storage/postgres"
	redisrepo "mdrelay/internal/infrastructure/storage/redis"
	sqliterepo "mdrelay/internal/infrastructure/storage/sqlite"
)

// Container 存储层依赖
type Container struct {
	cfg          *config.Config
	redisRepo    *redisrepo.Repo
	sqliteRepo   *sqliterepo.Repo
	postgresRepo *pgrepo.Repo
	repo         port.Repository
	closeOnce    sync.Once
	closerChain  []func() error
}

// New 创建新的容器实例
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(); err != nil {
		// 清理已初始化的资源
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// initStorage 初始化存储层（Redis、SQLite、Postgres），都未启用时使用内存仓储
func (c *Container) initStorage() error {
	var repos []port.Repository

	if c.cfg.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		repos = append(repos, c.redisRepo)
	}

	if c.cfg.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		repos = append(repos, c.sqliteRepo)
	}

	if c.cfg.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		repos = append(repos, c.postgresRepo)
	}

	if len(repos) == 0 {
		log.Info().Msg("no storage enabled, using in-memory repository")
		c.repo = storage.NewMemory()
		return nil
	}
	c.repo = composite.New(repos...)
	return nil
}

// initRedis 初始化 Redis 连接
func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisRepo = redisrepo.New(
		rdb,
		c.cfg.Redis.Prefix,
		time.Duration(c.cfg.Redis.TTLSeconds)*time.Second,
		c.cfg.PoolCacheTTL(),
		c.cfg.Redis.QuoteChannel,
	)

	// 注册关闭回调
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return c.redisRepo.Close()
	})

	log.Info().
		Str("addr", c.cfg.Redis.Addr).
		Int("db", c.cfg.Redis.DB).
		Str("channel", c.redisRepo.QuoteChannel()).
		Msg("redis initialized")

	return nil
}

// initSQLite 初始化 SQLite 数据库
func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.SQLite.Path).
		Msg("sqlite initialized")

	return nil
}

// initPostgres 初始化 Postgres
func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	c.postgresRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Repository 所有启用后端的组合仓储
func (c *Container) Repository() port.Repository {
	return c.repo
}

// RedisRepo 获取 Redis 仓储
func (c *Container) RedisRepo() *redisrepo.Repo {
	return c.redisRepo
}

// SQLiteRepo 获取 SQLite 仓储
func (c *Container) SQLiteRepo() *sqliterepo.Repo {
	return c.sqliteRepo
}

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}

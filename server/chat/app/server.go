package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"workhub/server/chat/api"
	"workhub/server/chat/repository"
	"workhub/server/chat/service"
	commonauth "workhub/server/common/auth"
	"workhub/server/common/infra/cache"
	"workhub/server/common/infra/db"
	"workhub/server/common/infra/mq"
	"workhub/server/common/infra/object"
	commonlog "workhub/server/common/log"
	"workhub/server/common/metrics"
)

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Publisher  *service.AMQPPublisher
	Relay      *service.RedisRelay
	Chat       *service.ChatService

	stopRelay context.CancelFunc
}

// NewServer connects the enabled backends and assembles the HTTP server.
// Without Postgres the workspace runs on the in-memory repository.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s := &Server{}
	var repo service.Repository = repository.NewMemoryRepository()
	if cfg.Postgres.Enabled {
		pool, err := db.NewPool(initCtx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repository.Migrate(initCtx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s.DB = pool
		repo = repository.NewPostgresRepository(pool)
	} else {
		commonlog.Warnf("event=server_init action=repository status=memory reason=postgres_disabled")
	}

	var publishers []service.EventPublisher
	if cfg.MQ.Enabled {
		conn, err := mq.NewConnection(cfg.MQ.URL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		s.MQConn = conn
		s.Publisher, err = service.NewAMQPPublisher(conn)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
		publishers = append(publishers, s.Publisher)
	}
	if cfg.Redis.Enabled {
		s.Redis = cache.NewClient(cfg.Redis.Addr)
		if err := cache.Ping(initCtx, s.Redis); err != nil {
			s.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.Relay = service.NewRedisRelay(s.Redis)
		publishers = append(publishers, s.Relay)
	}

	workspace := service.NewWorkspace(repo, cfg.HistoryLimit)
	s.Chat = service.NewChatService(repo, workspace, publishers...)
	if err := s.Chat.EnsureChannels(initCtx, cfg.DefaultChannels); err != nil {
		s.close()
		return nil, fmt.Errorf("seed channels: %w", err)
	}

	var attachments *service.AttachmentService
	if cfg.Objects.Enabled {
		client, err := object.NewClient(cfg.Objects.Endpoint, cfg.Objects.AccessKey, cfg.Objects.SecretKey, cfg.Objects.UseSSL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		if err := object.EnsureBucket(initCtx, client, cfg.Objects.Bucket); err != nil {
			s.close()
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Objects.Bucket, err)
		}
		attachments = service.NewAttachmentService(object.NewBucket(client, cfg.Objects.Bucket, cfg.Objects.Prefix), s.Chat)
	}

	tokens := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	users := service.NewUserService(repo, workspace, tokens, s.Chat)
	realtime := service.NewRealtimeService(s.Chat, workspace)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/metrics", gin.WrapH(metrics.HandlerFor(registry)))
	api.NewHandler(s.Chat, users, attachments, realtime, tokens).RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// websocket connections are long lived; writes carry their own deadlines
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

// Start runs background consumers. The HTTP server is started by the caller.
func (s *Server) Start(ctx context.Context) {
	if s.Relay == nil {
		return
	}
	relayCtx, cancel := context.WithCancel(ctx)
	s.stopRelay = cancel
	go s.Relay.Run(relayCtx, s.Chat)
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.stopRelay != nil {
		s.stopRelay()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	} else if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		commonlog.Debugf("event=http_request method=%s path=%s status=%d latency_ms=%d", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(startedAt).Milliseconds())
	}
}

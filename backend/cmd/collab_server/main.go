package main

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collabdocs/backend/config"
	"collabdocs/backend/internal/authservice"
	"collabdocs/backend/internal/cache"
	"collabdocs/backend/internal/collab"
	"collabdocs/backend/internal/httpapi/handlers"
	"collabdocs/backend/internal/httpapi/middleware"
	"collabdocs/backend/internal/store"
	"collabdocs/backend/internal/ws"
	"collabdocs/logger"
)

func main() {
	cfg, err := config.Init()
	if err != nil {
		logger.Errorf("init config failed: %v", err)
		return
	}

	authservice.Init(cfg.Auth.Secret)

	// relay 按 origin 过滤自己发出的消息，节点标识必须唯一
	if cfg.Running.NodeID == "" {
		cfg.Running.NodeID = uuid.NewString()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		logger.Errorf("connect redis failed: %v", err)
		return
	}
	defer rdb.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		logger.Errorf("connect mysql failed: %v", err)
		return
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Errorf("get sql.DB failed: %v", err)
		return
	}
	defer sqlDB.Close()

	// Kafka 可选：没配 broker 就只走本地 + Redis 广播
	var dispatcher *collab.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			logger.Errorf("connect kafka failed: %v", err)
			return
		}
		defer producer.Close()

		dispatcher = collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(100),
			collab.KafkaDispatcherOptions{
				QueueSize:   10_000,
				Workers:     4,
				MaxRetry:    3,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,
			},
		)
	}

	userStore := store.NewUserStore(sqlDB)
	documentStore := store.NewDocumentStore(gormDB)
	versionStore := store.NewVersionStore(sqlDB, 0)
	commentStore := store.NewCommentStore(gormDB)
	resolver := collab.NewResolver(documentStore)

	relay := cache.NewRedisRelay(rdb, cfg.Running.NodeID)
	hub := ws.NewHub(relay)
	hub.Run(context.Background())

	wsCfg := cfg.Websocket
	manager := ws.NewManager(ws.Deps{
		Hub:        hub,
		Resolver:   resolver,
		Users:      userStore,
		Admission:  cache.NewConnectionManager(rdb, wsCfg.MaxConnectionsPerUser, wsCfg.ConnectionTTL),
		Limiter:    cache.NewRateLimiter(rdb, wsCfg.RateLimitMessages, wsCfg.RateLimitWindow),
		Validator:  ws.NewDeltaValidator(wsCfg.MaxMessageBytes, wsCfg.MaxOps),
		Dispatcher: dispatcher,
	})

	auth := authservice.NewHandlers(userStore, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	docs := handlers.NewDocuments(documentStore, userStore, versionStore, commentStore, resolver, hub, dispatcher)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	v1 := r.Group("/v1/auth")
	v1.POST("/register", auth.Register)
	v1.POST("/login", auth.Login)
	v1.POST("/refresh", auth.Refresh)
	v1.GET("/verify", middleware.AuthMiddleware(), auth.Verify)

	api := r.Group("/api", middleware.AuthMiddleware())
	api.GET("/docs", docs.List)
	api.POST("/docs", docs.Create)
	api.GET("/docs/:documentID", docs.Get)
	api.PUT("/docs/:documentID", docs.Update)
	api.DELETE("/docs/:documentID", docs.Delete)
	api.POST("/docs/:documentID/share", docs.Share)
	api.DELETE("/docs/:documentID/share/:username", docs.Unshare)
	api.GET("/docs/:documentID/collaborators", docs.ListCollaborators)
	api.GET("/docs/:documentID/versions", docs.ListVersions)
	api.POST("/docs/:documentID/versions/:versionID/restore", docs.RestoreVersion)
	api.GET("/docs/:documentID/comments", docs.ListComments)
	api.POST("/docs/:documentID/comments", docs.CreateComment)
	api.PUT("/comments/:commentID", docs.UpdateComment)
	api.DELETE("/comments/:commentID", docs.DeleteComment)

	// WebSocket 鉴权走 subprotocol token，不挂 HTTP 中间件
	r.GET("/ws/docs/:documentID/", manager.HandleWS)
	r.GET("/ws/docs/:documentID", manager.HandleWS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	logger.Infof("collab server listening on :%d (node=%s)", cfg.Running.Port, cfg.Running.NodeID)
	_ = r.Run(fmt.Sprintf(":%d", cfg.Running.Port))
}

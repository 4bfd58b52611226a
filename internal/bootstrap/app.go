package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/norandomtechie/queup/internal/handler/http"
	wsHandler "github.com/norandomtechie/queup/internal/handler/websocket"
	"github.com/norandomtechie/queup/internal/infra/auditlog"
	gormpersistence "github.com/norandomtechie/queup/internal/infra/persistence/gorm"
	redisstate "github.com/norandomtechie/queup/internal/infra/state/redis"
	"github.com/norandomtechie/queup/internal/middleware"
	"github.com/norandomtechie/queup/internal/notify"
	"github.com/norandomtechie/queup/internal/repository"
	"github.com/norandomtechie/queup/internal/service"
	"github.com/norandomtechie/queup/internal/tasks"
	"github.com/norandomtechie/queup/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DataDir          string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	JWTSecret        string
	ServerPort       string
	LogLevel         string
	AppEnv           string // 应用环境 (development/production)
	KeyPrefix        string // Redis Key 前缀
	RateLimitBackend string // "sqlite" 或 "redis"
	NotifyTimeout    time.Duration
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		DataDir:          os.Getenv("DATA_DIR"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ServerPort:       os.Getenv("SERVER_PORT"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		AppEnv:           os.Getenv("APP_ENV"),
		KeyPrefix:        os.Getenv("REDIS_KEY_PREFIX"),
		RateLimitBackend: os.Getenv("RATE_LIMIT_BACKEND"),
		NotifyTimeout:    notify.DefaultIdleTimeout,
	}

	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr) // 忽略错误，默认为 0

	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "qu:"
	}
	if cfg.RateLimitBackend == "" {
		cfg.RateLimitBackend = "sqlite"
	}
	if cfg.RateLimitBackend == "redis" && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR to be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if timeoutStr := os.Getenv("NOTIFY_TIMEOUT_SECONDS"); timeoutStr != "" {
		if secs, err := strconv.Atoi(timeoutStr); err == nil && secs > 0 {
			cfg.NotifyTimeout = time.Duration(secs) * time.Second
		}
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	Store       *gormpersistence.Store
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	sqliteLimiter  *gormpersistence.SqliteRateLimitRepository
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s)", logLevel.String())
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := gormpersistence.NewStore(cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init room store: %w", err)
	}
	log.Info("Room store initialized")

	app := &App{Config: cfg, Log: log, Store: store}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		app.RedisClient = redisClient
		app.redisClientOpt = asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqClient = asynq.NewClient(app.redisClientOpt)
		log.Info("Redis client and Asynq client initialized")
	} else {
		log.Warn("REDIS_ADDR not set: running without Redis, rate limit history is pruned lazily")
	}
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	roomRepo := gormpersistence.NewGormRoomRepository(store)
	queueRepo := gormpersistence.NewGormQueueRepository(store)

	var limiter repository.RateLimitRepository
	if cfg.RateLimitBackend == "redis" {
		limiter = redisstate.NewRedisRateLimitRepository(app.RedisClient, cfg.KeyPrefix)
		log.Info("Rate limiter backend: redis")
	} else {
		sqliteLimiter, err := gormpersistence.NewSqliteRateLimitRepository(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to init rate limiter: %w", err)
		}
		app.sqliteLimiter = sqliteLimiter
		limiter = sqliteLimiter
		log.Info("Rate limiter backend: sqlite")
	}

	auditRepo := auditlog.NewFileAuditLog(filepath.Join(cfg.DataDir, "room.log"), log)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	log.Info("Initializing services...")
	perm := service.NewPermanence(cfg.DataDir)
	snapshotter := service.NewSnapshotter(roomRepo, queueRepo, perm)
	notifier := notify.NewNotifier(snapshotter, cfg.NotifyTimeout, log)
	engine := service.NewEngine(roomRepo, queueRepo, auditRepo, limiter, snapshotter, notifier, perm, log)
	log.Info("Services initialized")

	// 6. 初始化 Handlers
	log.Info("Initializing handlers...")
	roomHandler := httpHandler.NewRoomHandler(engine)
	socketHandler := wsHandler.NewWebSocketHandler(engine)
	log.Info("Handlers initialized")

	// 7. 初始化 Worker Server (仅当 Redis 可用)
	if app.RedisClient != nil {
		log.Info("Initializing worker server...")
		app.AsynqServer = worker.NewWorkerServer(app.redisClientOpt, limiter, log)
		log.Info("Worker server initialized")
	}

	// 8. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	router.Use(func(c *gin.Context) { /* CORS */
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := router.Group("/api").Use(middleware.Auth(cfg.JWTSecret))
	{
		api.GET("/room", roomHandler.Handle)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/room/:room", socketHandler.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 9. 初始化 HTTP Server
	app.HttpServer = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")

	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
		a.registerPeriodicTasks()
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	taskPayload, err := tasks.NewRateLimitPruneTask(time.Minute)
	if err != nil {
		a.Log.Errorf("Failed to create rate limit prune task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeRateLimitPrune, taskPayload)

	schedule := "@every 1m"
	entryID, err := scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic rate limit prune task: %v", err)
	} else {
		a.Log.Infof("Periodic rate limit prune task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil {
			if !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	if a.sqliteLimiter != nil {
		if err := a.sqliteLimiter.Close(); err != nil {
			a.Log.Errorf("Error closing rate limiter store: %v", err)
		}
	}
	a.Store.Close()

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   clientIP,
			"method":      method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}

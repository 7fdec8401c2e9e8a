package main

import (
	"context"
	"os"
	"strconv"
	"time"

	_ "echallan-backend/api/swagger" // swagger docs
	"echallan-backend/internal/database"
	"echallan-backend/internal/handler"
	"echallan-backend/internal/middleware"
	"echallan-backend/internal/render"
	"echallan-backend/internal/repository"
	"echallan-backend/internal/service"
	"echallan-backend/internal/storage"
	"echallan-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           E-Challan API
// @version         1.0
// @description     Backend for issuing and settling transport e-challans with branch-scoped access.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		// Running with environment variables only is fine.
	}

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewConnection(buildDSN())
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("connected to postgres")

	objectStore, err := storage.NewS3ObjectStorage(&storage.Config{
		Endpoint:     os.Getenv("S3_ENDPOINT"),
		Region:       os.Getenv("S3_REGION"),
		Bucket:       envOr("S3_BUCKET", "echallan-files"),
		AccessKey:    envOr("S3_ACCESS_KEY", "minioadmin"),
		SecretKey:    envOr("S3_SECRET_KEY", "minioadmin"),
		UsePathStyle: envBool("S3_PATH_STYLE", true),
		UseSSL:       envBool("S3_USE_SSL", false),
	}, storage.WithLogger(logger))
	if err != nil {
		logger.Fatal("object storage init failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn("bucket check failed, uploads may not work", zap.Error(err))
	}
	cancel()

	renderer := render.NewChromedpRenderer(render.ChromedpConfig{
		RemoteURL: os.Getenv("CHROME_REMOTE_URL"),
		NoSandbox: envBool("CHROME_NO_SANDBOX", true),
		Logger:    logger,
	})
	defer renderer.Close()

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	userService := service.NewUserService(userRepo, branchRepo, txManager, logger)
	branchService := service.NewBranchService(branchRepo, userRepo, logger)
	invoiceService := service.NewInvoiceService(invoiceRepo, userRepo, txManager, renderer, wsHub, logger)
	attachmentService := service.NewAttachmentService(invoiceRepo, objectStore, txManager, wsHub, logger)

	userHandler := handler.NewUserHandler(userService)
	branchHandler := handler.NewBranchHandler(branchService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	attachmentHandler := handler.NewAttachmentHandler(attachmentService)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	root := router.Group("")
	userHandler.RegisterRoutes(root)
	branchHandler.RegisterRoutes(root)
	invoiceHandler.RegisterRoutes(root)
	attachmentHandler.RegisterRoutes(root)

	port := envOr("PORT", "8080")
	logger.Info("server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func buildDSN() string {
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	user := envOr("DB_USER", "postgres")
	password := envOr("DB_PASSWORD", "postgres")
	name := envOr("DB_NAME", "postgres")
	sslMode := envOr("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=" + sslMode
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

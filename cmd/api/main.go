package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"cylinder-recon/internal/approval"
	"cylinder-recon/internal/cache"
	"cylinder-recon/internal/config"
	"cylinder-recon/internal/handler"
	"cylinder-recon/internal/middleware"
	"cylinder-recon/internal/repository"
	"cylinder-recon/internal/service"
	"cylinder-recon/pkg/logger"
)

// @title Cylinder Verification API
// @version 1.0
// @description API for verifying rental gas cylinder orders against barcode scans

// @contact.name API Support
// @contact.email support@cylinder-recon.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.App.LogLevel)
	logger.GetLogger().Info("Starting Cylinder Verification Service")

	db, err := connectDB(cfg.Database)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	logger.GetLogger().Info("Database connection established")

	rdb := connectRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	// Repositories
	scanRepo := repository.NewScanRepository(db)
	importRepo := repository.NewImportRepository(db)
	custodyRepo := repository.NewCustodyRepository(db)
	exceptionRepo := repository.NewExceptionRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	// Asset cache and engines
	assetCache := cache.NewAssetCache(rdb, custodyRepo)
	engine := approval.NewEngine(custodyRepo, scanRepo, importRepo, exceptionRepo, customerRepo, assetCache)
	policy := approval.NewPolicy(engine, custodyRepo, importRepo)

	// Services
	verificationService := service.NewVerificationService(scanRepo, importRepo, assetCache)
	approvalService := service.NewApprovalService(verificationService, engine, policy)
	maintenanceService := service.NewMaintenanceService(scanRepo)
	importService := service.NewImportService(importRepo, verificationService, policy)

	// Handlers
	recordHandler := handler.NewRecordHandler(verificationService, approvalService)
	maintenanceHandler := handler.NewMaintenanceHandler(maintenanceService)
	importHandler := handler.NewImportHandler(importService)

	router := setupRouter(recordHandler, maintenanceHandler, importHandler)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.GetLogger().WithField("address", addr).Info("Server starting")

	if err := router.Run(addr); err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to start server")
	}
}

func connectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// connectRedis returns nil when Redis is disabled or unreachable; the asset
// cache degrades to database reads
func connectRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		logger.GetLogger().Info("Redis disabled, asset cache will read through to the database")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.GetLogger().WithError(err).Warn("Redis unreachable, continuing without asset cache")
		rdb.Close()
		return nil
	}

	logger.GetLogger().WithField("addr", cfg.Addr).Info("Redis connection established")
	return rdb
}

func setupRouter(recordHandler *handler.RecordHandler, maintenanceHandler *handler.MaintenanceHandler, importHandler *handler.ImportHandler) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireOrganization())
	{
		records := v1.Group("/records")
		{
			records.GET("", recordHandler.ListRecords)
			records.GET("/stats", recordHandler.GetStats)
			records.POST("/approve", recordHandler.Approve)
			records.POST("/reject", recordHandler.Reject)
			records.POST("/bulk-approve", recordHandler.BulkApprove)
			records.POST("/bulk-reject", recordHandler.BulkReject)
			records.POST("/auto-approve", recordHandler.AutoApprove)
		}

		scans := v1.Group("/scans")
		{
			scans.POST("/restore", maintenanceHandler.RestoreScans)
			scans.POST("/reassign", maintenanceHandler.ReassignOrder)
		}

		v1.POST("/imports", importHandler.Upload)
	}

	return router
}

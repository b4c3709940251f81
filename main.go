package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/bootstrap"
	"dbmonitorapi/config"
	"dbmonitorapi/controllers"
	"dbmonitorapi/pkg/events"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/repository"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/services/backup"
	"dbmonitorapi/services/gateway"
	"dbmonitorapi/services/monitor"
	"dbmonitorapi/services/registry"
	"dbmonitorapi/services/vault"
	"dbmonitorapi/utils"
)

func main() {
	// 1) Load config
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("LoadConfig error: %v", err)
	}

	// 2) Init structured logger with config
	logger.Init(config.Cfg.LogFile, logger.ParseLevel(config.Cfg.LogLevel), logger.Options{
		MaxSize:    config.Cfg.LogMaxSize,
		MaxBackups: config.Cfg.LogMaxBackups,
		MaxAge:     config.Cfg.LogMaxAge,
		Compress:   config.Cfg.LogCompress,
	})
	logger.Infof("Starting database monitor API with log level: %s", config.Cfg.LogLevel)

	// 3) Open stores and vault
	if err := config.ConnectStores(); err != nil {
		log.Fatalf("ConnectStores error: %v", err)
	}
	v, err := vault.New(config.Cfg.DataDir)
	if err != nil {
		log.Fatalf("Vault init error: %v", err)
	}

	if err := bootstrap.LoadData(); err != nil {
		log.Fatalf("Load data error: %v", err)
	}

	// 4) Wire the core
	reg := registry.New(repository.NewConnectionRepository(), v, config.Cfg.ProbeTimeout)
	if err := reg.Load(); err != nil {
		log.Fatalf("Load connections error: %v", err)
	}
	az := authz.NewService()
	bus := events.NewBus(config.Cfg.EventBufferSize)
	presence := events.NewPresence(bus)
	gw := gateway.New(reg, az, config.Cfg.QueryTimeout)
	bk := backup.New(reg)
	mon := monitor.New(reg, bus, config.Cfg.MonitorInterval, config.Cfg.ProbeTimeout)

	controllers.SetRegistry(reg)
	controllers.SetAuthzService(az)
	controllers.SetGateway(gw)
	controllers.SetBackupService(bk)
	controllers.SetMonitor(mon)
	controllers.SetPresence(presence)

	// 5) Setup Gin
	router := gin.Default()
	router.Use(utils.LoggerMiddleware())

	api := router.Group("/api", controllers.RequireAuth())
	{
		controllers.RegisterDatabaseRoutes(api)
		controllers.RegisterQueryRoutes(api)
		controllers.RegisterBackupRoutes(api)
		controllers.RegisterUserRoutes(api)
		controllers.RegisterRoleRoutes(api)
		controllers.RegisterGrantRoutes(api)
		controllers.RegisterStatusRoutes(api)
	}

	mon.Start()

	// Drain the event bus into the log until a push transport is attached.
	go func() {
		for e := range bus.Events() {
			logger.Debugf("event %s: %v", e.Name, e.Payload)
		}
	}()

	// 6) Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infof("Received shutdown signal, stopping health monitor...")
		mon.Stop()
		reg.Close()
		bus.Close()
		logger.Infof("Application shutdown complete")
		os.Exit(0)
	}()

	// 7) Run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	logger.Infof("Starting server at port %s", port)
	router.Run("0.0.0.0:" + port)
}

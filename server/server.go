package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
	"github.com/PatrickKish1/x402-manager-backend/internal/abuse"
	database "github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/gateway"
	"github.com/PatrickKish1/x402-manager-backend/internal/handler"
	"github.com/PatrickKish1/x402-manager-backend/internal/ratelimit"
	"github.com/PatrickKish1/x402-manager-backend/internal/signer"
	"github.com/PatrickKish1/x402-manager-backend/internal/validation"
	"github.com/PatrickKish1/x402-manager-backend/internal/verifier"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
)

func Main() {
	conf := config.GetConfig()

	logger, err := log.GetLogger(&conf.Logger)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	logger.Info("Starting x402 broker")

	db, err := database.NewDB(conf, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err}).Error("Failed to initialize database")
		panic(err)
	}
	if err := db.Migrate(); err != nil {
		logger.WithFields(logrus.Fields{"error": err}).Error("Failed to migrate database")
		panic(err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	if conf.Monitor.Enable {
		monitor.InitPrometheus()
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
		logger.Info("Prometheus monitoring enabled")
	}

	v := verifier.New(db, logger)
	gw := gateway.New(db, v, gateway.Config{
		AllowOrigins:           conf.AllowOrigins,
		ServiceCacheExpiration: conf.Gateway.ServiceCacheExpiration,
		UpstreamTimeout:        conf.Gateway.UpstreamTimeout,
		TrackerWorkers:         conf.Gateway.TrackerWorkers,
		EnableMonitor:          conf.Monitor.Enable,
	}, logger)
	gw.Register(engine)

	guard := abuse.New(db, conf.Abuse.FailOpen, logger)
	limiter := ratelimit.New(ratelimit.Config{
		RatePerSecond: conf.Validation.RateLimit.RatePerSecond,
		BurstSize:     conf.Validation.RateLimit.BurstSize,
		RatePerMinute: conf.Validation.RateLimit.RatePerMinute,
	})
	s := signer.New(conf.Networks, logger)
	validationEngine := validation.New(db, s, guard, limiter, conf.Validation.Workers, logger)

	h := handler.New(db, validationEngine, logger)
	h.Register(engine)

	go pruneNonces(db, conf.NoncePruneInterval, logger)

	logger.WithFields(logrus.Fields{"address": conf.Address}).Info("Starting HTTP server")
	if err := engine.Run(conf.Address); err != nil {
		logger.WithFields(logrus.Fields{"error": err}).Error("Failed to start HTTP server")
		panic(err)
	}
}

// pruneNonces periodically removes consumed-nonce rows past their expiry.
func pruneNonces(db *database.DB, interval time.Duration, logger log.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		pruned, err := db.PruneExpiredNonces(time.Now())
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error("Failed to prune expired nonces")
			continue
		}
		if pruned > 0 {
			logger.WithFields(logrus.Fields{"pruned": pruned}).Info("Pruned expired nonces")
		}
	}
}

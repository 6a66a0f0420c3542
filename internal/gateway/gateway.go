// Package gateway turns a registered upstream HTTP API into a payment-gated
// one: it challenges unpaid requests with a protocol-compliant 402, verifies
// payment proofs, prevents replay, forwards paid traffic and records usage.
package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/verifier"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

type Gateway struct {
	db       *db.DB
	verifier *verifier.Verifier
	svcCache *cache.Cache
	tracker  *workerpool.WorkerPool
	client   *http.Client
	logger   log.Logger

	allowOrigins  []string
	enableMonitor bool
}

type Config struct {
	AllowOrigins           []string
	ServiceCacheExpiration time.Duration
	UpstreamTimeout        time.Duration
	TrackerWorkers         int
	EnableMonitor          bool
}

func New(database *db.DB, v *verifier.Verifier, conf Config, logger log.Logger) *Gateway {
	if len(conf.AllowOrigins) == 0 {
		conf.AllowOrigins = []string{"*"}
	}
	if conf.ServiceCacheExpiration <= 0 {
		conf.ServiceCacheExpiration = 5 * time.Minute
	}
	if conf.TrackerWorkers <= 0 {
		conf.TrackerWorkers = 4
	}

	g := &Gateway{
		db:            database,
		verifier:      v,
		svcCache:      cache.New(conf.ServiceCacheExpiration, 2*conf.ServiceCacheExpiration),
		tracker:       workerpool.New(conf.TrackerWorkers),
		client:        &http.Client{Timeout: conf.UpstreamTimeout},
		logger:        logger,
		enableMonitor: conf.EnableMonitor,
	}
	g.allowOrigins = conf.AllowOrigins
	return g
}

func (g *Gateway) Register(engine *gin.Engine) {
	group := engine.Group(constant.GatewayPrefix)

	group.Use(cors.New(cors.Config{
		AllowOrigins: g.allowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{"*"},
	}))

	if g.enableMonitor {
		group.Use(monitor.TrackMetrics())
	}

	group.Any("/:owner/:service/*path", g.handle)
}

// Stop drains the usage tracker pool. Used on shutdown and in tests.
func (g *Gateway) Stop() {
	g.tracker.StopWait()
}

// handle drives the per-request state machine:
// LOOKUP -> {NOT_FOUND, INACTIVE, CHALLENGE, VERIFY} -> FORWARD.
func (g *Gateway) handle(ctx *gin.Context) {
	owner := ctx.Param("owner")
	serviceID := ctx.Param("service")
	path := ctx.Param("path")

	svc, err := g.lookupService(owner, serviceID)
	if err != nil {
		g.handleGatewayError(ctx, err, "resolve service")
		return
	}

	if svc.Status != model.ServiceStatusActive {
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": fmt.Sprintf("service is %s", svc.Status),
		})
		return
	}

	header := ctx.GetHeader(constant.PaymentHeader)
	if header == "" {
		g.challenge(ctx, svc, path)
		return
	}

	proof, err := x402.DecodePaymentHeader(header)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"error":      err,
			"service_id": serviceID,
		}).Info("Malformed payment header")
		monitor.GatewayVerifyFailureCount.Inc()
		g.paymentRequired(ctx, svc, path, "Invalid payment header format")
		return
	}

	if err := g.verifier.Verify(ctx, proof, verifier.Expected{
		Amount:    svc.PricePerRequest,
		Recipient: svc.PayTo,
		Network:   svc.Network,
	}, svc.ServiceID); err != nil {
		// The specific failed check is logged, never returned, so the
		// response is useless as an oracle against nonce or signature
		// state.
		g.logger.WithFields(logrus.Fields{
			"error":      err,
			"service_id": serviceID,
			"user":       proof.From,
		}).Info("Payment verification rejected")
		monitor.GatewayVerifyFailureCount.Inc()
		g.paymentRequired(ctx, svc, path, "Payment verification failed")
		return
	}

	monitor.GatewayVerifySuccessCount.Inc()
	g.forward(ctx, svc, proof, path)
}

func (g *Gateway) lookupService(owner, serviceID string) (*model.Service, error) {
	key := owner + "/" + serviceID
	if cached, ok := g.svcCache.Get(key); ok {
		if svc, ok := cached.(*model.Service); ok {
			return svc, nil
		}
	}

	svc, err := g.db.GetService(owner, serviceID)
	if err != nil {
		return nil, err
	}

	g.svcCache.Set(key, svc, cache.DefaultExpiration)
	return svc, nil
}

func (g *Gateway) handleGatewayError(ctx *gin.Context, err error, context string) {
	g.logger.Errorf("Gateway error: %v, context: %s", err, context)
	errors.Response(ctx, err)
}

package gateway

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

// forward relays the verified request to the upstream and streams the
// response back. A usage record is emitted asynchronously after every
// forwarded call, whether or not forwarding succeeded; tracking never blocks
// or fails the caller.
func (g *Gateway) forward(ctx *gin.Context, svc *model.Service, proof *x402.PaymentProof, path string) {
	targetURL := strings.TrimSuffix(svc.UpstreamURL, "/") + path
	if raw := ctx.Request.URL.RawQuery; raw != "" {
		targetURL += "?" + raw
	}

	req, err := http.NewRequestWithContext(ctx.Request.Context(), ctx.Request.Method, targetURL, ctx.Request.Body)
	if err != nil {
		g.handleGatewayError(ctx, errors.UpstreamUnavailable(errors.Wrap(err, "prepare upstream request")), "prepare upstream request")
		return
	}

	for k, values := range ctx.Request.Header {
		if k == constant.PaymentHeader {
			continue
		}
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(constant.PaymentVerifiedHeader, "true")
	req.Header.Set(constant.PayerHeader, proof.From)
	req.Header.Set(constant.ProviderHeader, svc.Owner)

	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		monitor.GatewayForwardErrorCount.Inc()
		g.trackUsage(svc, proof, ctx.Request.Method, path, elapsed, http.StatusBadGateway, err.Error())
		g.handleGatewayError(ctx, errors.UpstreamUnavailable(errors.Wrap(err, "call upstream")), "call upstream")
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		ctx.Writer.Header()[k] = values
	}
	ctx.Writer.Header().Set(constant.PaymentVerifiedHeader, "true")
	ctx.Status(resp.StatusCode)

	// Stream without buffering: upstream stalls surface as client latency
	// rather than broker memory.
	if _, err := io.Copy(ctx.Writer, resp.Body); err != nil {
		g.logger.WithFields(logrus.Fields{
			"error":      err,
			"service_id": svc.ServiceID,
		}).Error("Failed to stream upstream response")
	}

	monitor.GatewayForwardCount.Inc()
	g.trackUsage(svc, proof, ctx.Request.Method, path, elapsed, resp.StatusCode, "")
}

func (g *Gateway) trackUsage(svc *model.Service, proof *x402.PaymentProof, method, path string, elapsed int64, statusCode int, errMsg string) {
	rec := &model.UsageRecord{
		ServiceID:      svc.ServiceID,
		Owner:          svc.Owner,
		Endpoint:       path,
		Method:         method,
		UserAddress:    proof.From,
		Amount:         proof.Amount,
		Network:        proof.Network,
		ResponseTimeMs: elapsed,
		StatusCode:     statusCode,
		Error:          errMsg,
	}
	g.tracker.Submit(func() {
		if err := g.db.CreateUsageRecord(rec); err != nil {
			// Tracking failures are recovered locally; the caller already
			// has its response.
			g.logger.WithFields(logrus.Fields{
				"error":      err,
				"service_id": rec.ServiceID,
			}).Error("Failed to track usage")
		}
	})
}

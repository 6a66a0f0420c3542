package gateway

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

// challenge answers a request that carries no payment header: browsers get a
// human-facing payment page, everything else gets the machine-readable 402.
func (g *Gateway) challenge(ctx *gin.Context, svc *model.Service, path string) {
	monitor.GatewayChallengeCount.Inc()

	if ctx.Request.Method == http.MethodGet &&
		strings.Contains(ctx.GetHeader("Accept"), "text/html") {
		g.paymentPage(ctx, svc, path)
		return
	}

	g.paymentRequired(ctx, svc, path, "X-Payment header is required")
}

// paymentRequired writes the protocol 402 body. Field names are the
// protocol's discovery contract and must stay byte-stable.
func (g *Gateway) paymentRequired(ctx *gin.Context, svc *model.Service, path, errMsg string) {
	ctx.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequiredResponse{
		X402Version: constant.X402Version,
		Accepts:     []x402.PaymentRequirements{g.paymentRequirements(ctx, svc, path)},
		Error:       errMsg,
	})
}

func (g *Gateway) paymentRequirements(ctx *gin.Context, svc *model.Service, path string) x402.PaymentRequirements {
	scheme := "https"
	if ctx.Request.TLS == nil {
		scheme = "http"
	}
	resource := fmt.Sprintf("%s://%s%s", scheme, ctx.Request.Host, ctx.Request.URL.Path)

	return x402.PaymentRequirements{
		Scheme:            constant.SchemeExact,
		Network:           svc.Network,
		MaxAmountRequired: svc.PricePerRequest,
		Resource:          resource,
		Description:       svc.Description,
		MimeType:          "application/json",
		PayTo:             svc.PayTo,
		MaxTimeoutSeconds: 60,
		Asset:             svc.TokenAddress,
		Extra: x402.RequirementExtra{
			Name:            svc.TokenName,
			Version:         svc.TokenVersion,
			ServiceName:     svc.Name,
			ServiceID:       svc.ServiceID,
			Endpoint:        path,
			ProviderAddress: svc.Owner,
		},
	}
}

var paymentPageTmpl = template.Must(template.New("payment").Parse(`<!DOCTYPE html>
<html>
<head><title>Payment Required - {{.Name}}</title></head>
<body>
<h1>402 Payment Required</h1>
<p>{{.Name}} is a paid API.</p>
<ul>
<li>Price per request: {{.Price}} (atomic units)</li>
<li>Network: {{.Network}}</li>
<li>Pay to: {{.PayTo}}</li>
<li>Asset: {{.Asset}}</li>
</ul>
<p>Attach a signed payment proof in the <code>X-Payment</code> header to access this endpoint.</p>
</body>
</html>
`))

func (g *Gateway) paymentPage(ctx *gin.Context, svc *model.Service, path string) {
	ctx.Status(http.StatusPaymentRequired)
	ctx.Header("Content-Type", "text/html; charset=utf-8")
	_ = paymentPageTmpl.Execute(ctx.Writer, map[string]string{
		"Name":    svc.Name,
		"Price":   svc.PricePerRequest,
		"Network": svc.Network,
		"PayTo":   svc.PayTo,
		"Asset":   svc.TokenAddress,
	})
}

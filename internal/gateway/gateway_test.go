package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/signer"
	"github.com/PatrickKish1/x402-manager-backend/internal/verifier"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

const (
	testKey   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testOwner = "0x1111111111111111111111111111111111111111"
	testToken = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

type fixture struct {
	engine   *gin.Engine
	gateway  *Gateway
	database *db.DB
	upstream *httptest.Server
	service  *model.Service
}

func setupGateway(t *testing.T, upstream http.HandlerFunc) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	database := db.New(gdb, log.NewTestLogger())
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	svc := &model.Service{
		ServiceID:       "svc-1",
		Owner:           testOwner,
		Name:            "Weather API",
		Description:     "weather data",
		UpstreamURL:     server.URL,
		PayTo:           testOwner,
		PricePerRequest: "1000",
		Network:         "base-sepolia",
		TokenAddress:    testToken,
		TokenName:       "USDC",
		TokenVersion:    "2",
		Status:          model.ServiceStatusActive,
	}
	if err := database.CreateService(svc); err != nil {
		t.Fatalf("create service: %v", err)
	}

	v := verifier.New(database, log.NewTestLogger())
	gw := New(database, v, Config{UpstreamTimeout: 5 * time.Second}, log.NewTestLogger())

	engine := gin.New()
	gw.Register(engine)

	return &fixture{engine: engine, gateway: gw, database: database, upstream: server, service: svc}
}

func (f *fixture) request(t *testing.T, method, path, paymentHeader string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if paymentHeader != "" {
		req.Header.Set("X-Payment", paymentHeader)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func signedHeader(t *testing.T, svc *model.Service) string {
	t.Helper()
	networks := config.Networks{
		svc.Network: {ChainID: 84532, ValidatorPrivateKey: testKey},
	}
	proof, err := signer.NewLegacy(networks, log.NewTestLogger()).
		SignPayment(svc.Network, svc.PricePerRequest, svc.TokenAddress, svc.PayTo)
	if err != nil {
		t.Fatalf("sign payment: %v", err)
	}
	header, err := proof.PaymentHeader()
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	return header
}

func TestChallengeWithoutPayment(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data", "", nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}

	// The discovery field names are part of the protocol contract.
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal 402 body: %v", err)
	}
	for _, key := range []string{"x402Version", "accepts", "error"} {
		if _, ok := body[key]; !ok {
			t.Errorf("402 body missing %q", key)
		}
	}

	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("unmarshal challenge: %v", err)
	}
	if challenge.X402Version != 2 {
		t.Errorf("x402Version = %d, want 2", challenge.X402Version)
	}
	if len(challenge.Accepts) != 1 {
		t.Fatalf("accepts length = %d, want 1", len(challenge.Accepts))
	}

	accept := challenge.Accepts[0]
	if accept.Scheme != "exact" {
		t.Errorf("scheme = %q, want exact", accept.Scheme)
	}
	if accept.Network != "base-sepolia" {
		t.Errorf("network = %q", accept.Network)
	}
	if accept.MaxAmountRequired != "1000" {
		t.Errorf("maxAmountRequired = %q", accept.MaxAmountRequired)
	}
	if accept.PayTo != testOwner {
		t.Errorf("payTo = %q", accept.PayTo)
	}
	if accept.Asset != testToken {
		t.Errorf("asset = %q", accept.Asset)
	}
	if accept.Extra.ServiceID != "svc-1" {
		t.Errorf("extra.serviceId = %q", accept.Extra.ServiceID)
	}
	if accept.Extra.Endpoint != "/data" {
		t.Errorf("extra.endpoint = %q", accept.Extra.Endpoint)
	}
}

func TestChallengeBrowserPaymentPage(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data", "", map[string]string{
		"Accept": "text/html,application/xhtml+xml",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Weather API") {
		t.Errorf("payment page does not name the service: %s", body)
	}
}

func TestMalformedPaymentHeader(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data", "!!!garbage!!!", nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}

	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("unmarshal challenge: %v", err)
	}
	if challenge.Error != "Invalid payment header format" {
		t.Errorf("error = %q", challenge.Error)
	}
}

func TestPaidRequestForwarded(t *testing.T) {
	var upstreamReq *http.Request
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamReq = r.Clone(r.Context())
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"temp":21}`))
	})

	header := signedHeader(t, f.service)
	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data?city=berlin", header, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"temp":21}` {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream response header not relayed")
	}
	if rec.Header().Get("X-Payment-Verified") != "true" {
		t.Error("X-Payment-Verified missing on response")
	}

	if upstreamReq == nil {
		t.Fatal("upstream never called")
	}
	if upstreamReq.URL.Path != "/data" {
		t.Errorf("upstream path = %q", upstreamReq.URL.Path)
	}
	if upstreamReq.URL.RawQuery != "city=berlin" {
		t.Errorf("upstream query = %q", upstreamReq.URL.RawQuery)
	}
	if upstreamReq.Header.Get("X-Payment") != "" {
		t.Error("X-Payment leaked to upstream")
	}
	if upstreamReq.Header.Get("X-Payment-Verified") != "true" {
		t.Error("X-Payment-Verified missing upstream")
	}
	if upstreamReq.Header.Get("X-Provider") != testOwner {
		t.Errorf("X-Provider = %q", upstreamReq.Header.Get("X-Provider"))
	}

	// Replay of the same header must be challenged again.
	rec = f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data", header, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("replay status = %d, want 402", rec.Code)
	}
	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("unmarshal challenge: %v", err)
	}
	if challenge.Error != "Payment verification failed" {
		t.Errorf("replay error = %q", challenge.Error)
	}

	// Drain the tracker, then check the forwarded call was recorded.
	f.gateway.Stop()
	records, err := f.database.ListUsageRecord(nil)
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if records[0].StatusCode != http.StatusOK || records[0].Endpoint != "/data" {
		t.Errorf("unexpected usage record: %+v", records[0])
	}
}

func TestUnknownService(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/missing/data", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInactiveService(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	inactive := &model.Service{
		ServiceID:       "svc-down",
		Owner:           testOwner,
		Name:            "Down API",
		UpstreamURL:     f.upstream.URL,
		PayTo:           testOwner,
		PricePerRequest: "1000",
		Network:         "base-sepolia",
		TokenAddress:    testToken,
		Status:          model.ServiceStatusMaintenance,
	}
	if err := f.database.CreateService(inactive); err != nil {
		t.Fatalf("create service: %v", err)
	}

	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-down/data", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "maintenance") {
		t.Errorf("503 body does not name the status: %s", body)
	}
}

func TestUpstreamFailureRecorded(t *testing.T) {
	f := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	// Point the registered service at a closed port.
	f.upstream.Close()

	header := signedHeader(t, f.service)
	rec := f.request(t, http.MethodGet, "/api/gateway/"+testOwner+"/svc-1/data", header, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	f.gateway.Stop()
	records, err := f.database.ListUsageRecord(nil)
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if records[0].StatusCode != http.StatusBadGateway || records[0].Error == "" {
		t.Errorf("unexpected usage record: %+v", records[0])
	}
}


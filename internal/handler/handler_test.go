package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
	"github.com/PatrickKish1/x402-manager-backend/internal/abuse"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/ratelimit"
	"github.com/PatrickKish1/x402-manager-backend/internal/signer"
	"github.com/PatrickKish1/x402-manager-backend/internal/validation"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

func setupHandler(t *testing.T) (*gin.Engine, *db.DB) {
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

	guard := abuse.New(database, true, log.NewTestLogger())
	limiter := ratelimit.New(ratelimit.Config{RatePerSecond: 1000, BurstSize: 100, MinSleep: time.Millisecond})
	s := signer.New(config.Networks{}, log.NewTestLogger())
	engine := validation.New(database, s, guard, limiter, 2, log.NewTestLogger())

	router := gin.New()
	New(database, engine, log.NewTestLogger()).Register(router)
	return router, database
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func serviceBody() map[string]interface{} {
	return map[string]interface{}{
		"serviceId":       "svc-1",
		"owner":           "0x1111111111111111111111111111111111111111",
		"name":            "Weather API",
		"upstreamUrl":     "http://upstream.example",
		"payTo":           "0x1111111111111111111111111111111111111111",
		"pricePerRequest": "1000",
		"network":         "base-sepolia",
		"tokenAddress":    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}
}

func TestHealth(t *testing.T) {
	router, _ := setupHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCreateAndListService(t *testing.T) {
	router, _ := setupHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/service", serviceBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	var created model.Service
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.Status != model.ServiceStatusActive {
		t.Errorf("default status = %q, want active", created.Status)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/service?owner=0x1111111111111111111111111111111111111111", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list model.ServiceList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Metadata.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateServiceRejectsNonPositivePrice(t *testing.T) {
	router, _ := setupHandler(t)

	for _, price := range []string{"0", "-5", "abc"} {
		body := serviceBody()
		body["pricePerRequest"] = price
		rec := doJSON(t, router, http.MethodPost, "/v1/service", body)
		if rec.Code != http.StatusInternalServerError && rec.Code != http.StatusBadRequest {
			t.Errorf("price %q: status = %d, want rejection", price, rec.Code)
		}
		if rec.Code == http.StatusCreated {
			t.Errorf("price %q accepted", price)
		}
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	router, _ := setupHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/validate", map[string]interface{}{
		"serviceId": "svc-1",
		"requester": "0xaaa",
		"mode":      "sponsored",
	})
	if rec.Code == http.StatusOK {
		t.Errorf("unknown mode accepted: %s", rec.Body.String())
	}
}

func TestGetValidatedServiceNotFound(t *testing.T) {
	router, _ := setupHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/validated/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVoteTally(t *testing.T) {
	router, database := setupHandler(t)

	if err := database.UpsertValidatedService(&model.ValidatedService{
		ServiceID:  "svc-1",
		Status:     model.ValidatedStatusVerified,
		Score:      90,
		ValidVotes: 1,
	}); err != nil {
		t.Fatalf("seed verdict: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/validated/svc-1/vote", map[string]interface{}{
		"voter": "0xbbb",
		"valid": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d: %s", rec.Code, rec.Body.String())
	}

	var vs model.ValidatedService
	if err := json.Unmarshal(rec.Body.Bytes(), &vs); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	if vs.ValidVotes != 2 || vs.InvalidVotes != 0 {
		t.Errorf("tally = %d/%d, want 2/0", vs.ValidVotes, vs.InvalidVotes)
	}
	if vs.Status != model.ValidatedStatusVerified {
		t.Errorf("status = %q, want verified", vs.Status)
	}
	if vs.LastValidator != "0xbbb" {
		t.Errorf("lastValidator = %q", vs.LastValidator)
	}
}

func TestVoteSplitTallyDisputes(t *testing.T) {
	router, database := setupHandler(t)

	if err := database.UpsertValidatedService(&model.ValidatedService{
		ServiceID:    "svc-1",
		Status:       model.ValidatedStatusVerified,
		ValidVotes:   1,
		InvalidVotes: 0,
	}); err != nil {
		t.Fatalf("seed verdict: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/validated/svc-1/vote", map[string]interface{}{
		"voter": "0xccc",
		"valid": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d: %s", rec.Code, rec.Body.String())
	}

	var vs model.ValidatedService
	if err := json.Unmarshal(rec.Body.Bytes(), &vs); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	// 1-1 leaves neither side with a two-thirds majority.
	if vs.Status != model.ValidatedStatusDisputed {
		t.Errorf("status = %q, want disputed", vs.Status)
	}
}

func TestDisputed(t *testing.T) {
	cases := []struct {
		valid, invalid int
		want           bool
	}{
		{0, 0, false},
		{3, 0, false},
		{0, 3, false},
		{1, 1, true},
		{2, 1, false}, // 2 of 3 is exactly two thirds
		{4, 1, false}, // 4 of 5 is a clear majority
		{2, 4, false}, // 4 of 6 is exactly two thirds
		{3, 4, true},
	}
	for _, tc := range cases {
		if got := disputed(tc.valid, tc.invalid); got != tc.want {
			t.Errorf("disputed(%d, %d) = %v, want %v", tc.valid, tc.invalid, got, tc.want)
		}
	}
}

package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rongwang/leasehub-server/internal/api"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/testutil"
	"github.com/rongwang/leasehub-server/internal/webhook"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Secrets the test router verifies provider callbacks with
const (
	SignatureWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	PaymentWebhookSecret   = "whsec_c2VjcmV0LWZvci10aGUtcGF5bWVudC1ob29r"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Harness     *testutil.Harness
	Parties     *testutil.Parties
	TestUserID  string
	LandlordJWT string
	TenantJWT   string
	OutsiderJWT string
}

// SetupTestContext creates a new test context backed by in-memory collaborators
func SetupTestContext(t *testing.T) *TestContext {
	h := testutil.NewHarness(t)
	parties := h.SeedParties(t)

	signatureVerifier, err := webhook.NewVerifier(SignatureWebhookSecret)
	require.NoError(t, err)
	paymentVerifier, err := webhook.NewVerifier(PaymentWebhookSecret)
	require.NoError(t, err)

	// Create API handler
	handler := api.NewHandler(h.Service, signatureVerifier, paymentVerifier, h.Metrics, zap.NewNop())

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Set up routes
	handler.SetupRoutes(router)

	return &TestContext{
		Router:      router,
		Harness:     h,
		Parties:     parties,
		TestUserID:  createTestUser(t, h),
		LandlordJWT: testutil.Token(t, parties.Landlord.ID),
		TenantJWT:   testutil.Token(t, parties.Tenant.ID),
		OutsiderJWT: testutil.Token(t, parties.Outsider.ID),
	}
}

// createTestUser stores a user who can log in with testuser@example.com / testpassword
func createTestUser(t *testing.T, h *testutil.Harness) string {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.DefaultCost)

	user := &models.User{
		ID:       uuid.New().String(),
		Email:    "testuser@example.com",
		FullName: "Test User",
		Role:     models.RoleLandlord,
		Password: string(hashedPassword),
	}

	err := h.Repo.CreateUser(context.Background(), user)
	assert.NoError(t, err, "Failed to create test user")

	return user.ID
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case []byte:
		reqBody = bytes.NewBuffer(b)
	default:
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// WebhookHeaders signs payload with secret the way providers do
func WebhookHeaders(t *testing.T, secret string, payload []byte) map[string]string {
	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)

	msgID := "msg_" + uuid.New().String()
	now := time.Now()
	signature, err := wh.Sign(msgID, now, payload)
	require.NoError(t, err)

	return map[string]string{
		"svix-id":        msgID,
		"svix-timestamp": strconv.FormatInt(now.Unix(), 10),
		"svix-signature": signature,
	}
}

// Decode unmarshals a JSON response body
func Decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

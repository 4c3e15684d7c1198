package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/apperr"
	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/users"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	user := models.User{Username: username, FullName: "Test " + username, Email: username + "@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) (*gin.Engine, *auth.Authenticator) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authn := auth.NewAuthenticator(db, "test-secret", time.Minute)
	handler := NewHandler(db, NewService(db))

	connections := r.Group("/connections")
	connections.Use(authn.Middleware())
	handler.RegisterRoutes(connections)

	return r, authn
}

func getAuthHeader(authn *auth.Authenticator, user models.User) string {
	token, _ := authn.GenerateToken(user.ID, user.Username)
	return "Bearer " + token
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response %q: %v", resp.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("Failed to decode data: %v", err)
		}
	}
	return env
}

func TestSendRequest(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	request, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if request.Status != models.StatusPending {
		t.Errorf("Expected pending status, got %s", request.Status)
	}
	if request.SenderID != alice.ID || request.ReceiverID != bob.ID {
		t.Errorf("Expected %d -> %d, got %d -> %d", alice.ID, bob.ID, request.SenderID, request.ReceiverID)
	}
}

func TestSendRequestRejectsSelfAndUnknown(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	if _, err := svc.SendRequest(ctx, alice.ID, alice.ID); !errors.Is(err, apperr.ErrSelfReference) {
		t.Errorf("Expected self reference error, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, alice.ID, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestOneRequestPerPair(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	// Same direction and reverse direction are both blocked
	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, apperr.ErrDuplicate) {
		t.Errorf("Expected duplicate error, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, bob.ID, alice.ID); !errors.Is(err, apperr.ErrDuplicate) {
		t.Errorf("Expected duplicate error for reverse request, got %v", err)
	}

	var count int64
	db.Model(&models.ConnectionRequest{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 request, got %d", count)
	}
}

func TestRejectedRequestBlocksResend(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	request, _ := svc.SendRequest(ctx, alice.ID, bob.ID)
	if _, err := svc.ReviewRequest(ctx, bob.ID, request.ID, models.StatusRejected); err != nil {
		t.Fatalf("ReviewRequest failed: %v", err)
	}

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, apperr.ErrDuplicate) {
		t.Errorf("Expected duplicate error after rejection, got %v", err)
	}
}

func TestReviewRequest(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	request, _ := svc.SendRequest(ctx, alice.ID, bob.ID)

	// Only the receiver can see the request
	if _, err := svc.ReviewRequest(ctx, carol.ID, request.ID, models.StatusAccepted); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found for non-receiver, got %v", err)
	}
	if _, err := svc.ReviewRequest(ctx, alice.ID, request.ID, models.StatusAccepted); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found for sender, got %v", err)
	}
	if _, err := svc.ReviewRequest(ctx, bob.ID, request.ID, models.StatusPending); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for pending decision, got %v", err)
	}

	reviewed, err := svc.ReviewRequest(ctx, bob.ID, request.ID, models.StatusAccepted)
	if err != nil {
		t.Fatalf("ReviewRequest failed: %v", err)
	}
	if reviewed.Status != models.StatusAccepted {
		t.Errorf("Expected accepted status, got %s", reviewed.Status)
	}

	if _, err := svc.ReviewRequest(ctx, bob.ID, request.ID, models.StatusRejected); !errors.Is(err, apperr.ErrDuplicate) {
		t.Errorf("Expected duplicate error for second review, got %v", err)
	}
}

func TestListConnectionsAndRemove(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	request, _ := svc.SendRequest(ctx, alice.ID, bob.ID)

	// Pending requests are not connections
	peers, _ := svc.ListConnections(ctx, alice.ID)
	if len(peers) != 0 {
		t.Errorf("Expected no connections while pending, got %v", peers)
	}
	if err := svc.RemoveConnection(ctx, alice.ID, bob.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found removing pending request, got %v", err)
	}

	svc.ReviewRequest(ctx, bob.ID, request.ID, models.StatusAccepted)

	peers, _ = svc.ListConnections(ctx, alice.ID)
	if len(peers) != 1 || peers[0] != bob.ID {
		t.Errorf("Expected alice connected to bob, got %v", peers)
	}
	peers, _ = svc.ListConnections(ctx, bob.ID)
	if len(peers) != 1 || peers[0] != alice.ID {
		t.Errorf("Expected bob connected to alice, got %v", peers)
	}

	// Either side can remove the connection
	if err := svc.RemoveConnection(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("RemoveConnection failed: %v", err)
	}
	peers, _ = svc.ListConnections(ctx, alice.ID)
	if len(peers) != 0 {
		t.Errorf("Expected no connections after removal, got %v", peers)
	}

	// The pair is free again
	if _, err := svc.SendRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Errorf("Expected new request after removal, got %v", err)
	}
}

func TestListIncomingRequests(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	svc.SendRequest(ctx, alice.ID, bob.ID)
	rejected, _ := svc.SendRequest(ctx, carol.ID, bob.ID)
	svc.ReviewRequest(ctx, bob.ID, rejected.ID, models.StatusRejected)

	pending, err := svc.ListIncomingRequests(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListIncomingRequests failed: %v", err)
	}
	if len(pending) != 1 || pending[0].SenderID != alice.ID {
		t.Errorf("Expected one pending request from alice, got %+v", pending)
	}

	outgoing, _ := svc.ListIncomingRequests(ctx, alice.ID)
	if len(outgoing) != 0 {
		t.Errorf("Expected no incoming requests for alice, got %d", len(outgoing))
	}
}

func TestExploreCandidates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	dave := createTestUser(t, db, "dave")

	svc.SendRequest(ctx, alice.ID, bob.ID)
	svc.SendRequest(ctx, carol.ID, alice.ID)

	ids, err := svc.ExploreCandidates(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ExploreCandidates failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != dave.ID {
		t.Errorf("Expected only dave, got %v", ids)
	}

	ids, _ = svc.ExploreCandidates(ctx, dave.ID)
	if len(ids) != 3 {
		t.Errorf("Expected 3 candidates for dave, got %v", ids)
	}
}

func TestConnectionRoutes(t *testing.T) {
	db := setupTestDB(t)
	router, authn := setupTestRouter(db)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	jsonBody, _ := json.Marshal(SendRequestRequest{UserID: bob.ID})
	req, _ := http.NewRequest("POST", "/connections/requests", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(authn, alice))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var request models.ConnectionRequest
	env := decode(t, resp, &request)
	if env.Status != "success" {
		t.Errorf("Expected success status, got %s", env.Status)
	}

	// Duplicate send maps to 409
	req, _ = http.NewRequest("POST", "/connections/requests", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(authn, alice))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	req, _ = http.NewRequest("POST", "/connections/requests/1/review/maybe", nil)
	req.Header.Set("Authorization", getAuthHeader(authn, bob))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad decision, got %d", resp.Code)
	}

	req, _ = http.NewRequest("POST", "/connections/requests/1/review/accepted", nil)
	req.Header.Set("Authorization", getAuthHeader(authn, bob))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	req, _ = http.NewRequest("GET", "/connections", nil)
	req.Header.Set("Authorization", getAuthHeader(authn, bob))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var peers []users.Summary
	decode(t, resp, &peers)
	if len(peers) != 1 || peers[0].Username != "alice" {
		t.Errorf("Expected bob connected to alice, got %+v", peers)
	}

	req, _ = http.NewRequest("DELETE", "/connections/1", nil)
	req.Header.Set("Authorization", getAuthHeader(authn, bob))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	req, _ = http.NewRequest("DELETE", "/connections/1", nil)
	req.Header.Set("Authorization", getAuthHeader(authn, bob))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for second removal, got %d", resp.Code)
	}
}

func TestConnectionRoutesRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	req, _ := http.NewRequest("GET", "/connections", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

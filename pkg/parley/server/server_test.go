package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/config"
	"github.com/mikepea/parley/pkg/parley/database"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/presence"
	"github.com/mikepea/parley/pkg/parley/store"
)

type testEnv struct {
	t     *testing.T
	db    *gorm.DB
	srv   *Server
	http  *httptest.Server
	authn *auth.Authenticator
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "parley.db")
	cfg.Media.Dir = filepath.Join(dir, "media")
	cfg.Auth.JWTSecret = "test-secret"

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return startServer(t, db, cfg, nil)
}

// startServer serves a new server over db, sharing presence through rdb if set
func startServer(t *testing.T, db *gorm.DB, cfg config.Config, rdb *redis.Client) *testEnv {
	srv, err := New(db, cfg, rdb)
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return &testEnv{
		t:     t,
		db:    db,
		srv:   srv,
		http:  httpSrv,
		authn: auth.NewAuthenticator(db, cfg.Auth.JWTSecret, time.Minute),
	}
}

func (e *testEnv) createUser(username string) models.User {
	user := models.User{Username: username, FullName: "Test " + username, Email: username + "@example.com"}
	if err := e.db.Create(&user).Error; err != nil {
		e.t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func (e *testEnv) token(user models.User) string {
	token, err := e.authn.GenerateToken(user.ID, user.Username)
	if err != nil {
		e.t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}

// call performs a request and decodes the envelope's data into out
func (e *testEnv) call(user models.User, method, path string, body interface{}, out interface{}) int {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, e.http.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(user))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		e.t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			e.t.Fatalf("%s %s: failed to decode data: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) expect(user models.User, method, path string, body interface{}, out interface{}, want int) {
	e.t.Helper()
	if got := e.call(user, method, path, body, out); got != want {
		e.t.Fatalf("%s %s: expected status %d, got %d", method, path, want, got)
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.http.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/api/users/me", "/api/groups", "/api/connections", "/api/ws"} {
		resp, err := http.Get(env.http.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s: expected status 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestConnectAndChat(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser("alice")
	bob := env.createUser("bob")

	var request models.ConnectionRequest
	env.expect(alice, "POST", "/api/connections/requests", map[string]uint{"user_id": bob.ID}, &request, http.StatusCreated)
	env.expect(bob, "POST", fmt.Sprintf("/api/connections/requests/%d/review/accepted", request.ID), nil, nil, http.StatusOK)

	var peers []map[string]interface{}
	env.expect(alice, "GET", "/api/connections", nil, &peers, http.StatusOK)
	if len(peers) != 1 || peers[0]["username"] != "bob" {
		t.Errorf("Expected alice connected to bob, got %v", peers)
	}

	// Bob is offline: the message is stored unread
	env.expect(alice, "POST", fmt.Sprintf("/api/messages/%d", bob.ID), map[string]string{"text": "hi bob"}, nil, http.StatusCreated)

	var unread struct {
		Count int64 `json:"count"`
	}
	env.expect(bob, "GET", fmt.Sprintf("/api/messages/%d/unread", alice.ID), nil, &unread, http.StatusOK)
	if unread.Count != 1 {
		t.Errorf("Expected 1 unread, got %d", unread.Count)
	}

	var thread []models.DirectMessage
	env.expect(bob, "GET", fmt.Sprintf("/api/messages/%d", alice.ID), nil, &thread, http.StatusOK)
	if len(thread) != 1 || !thread[0].IsRead {
		t.Errorf("Expected one read message, got %+v", thread)
	}

	env.expect(alice, "DELETE", fmt.Sprintf("/api/connections/%d", bob.ID), nil, nil, http.StatusOK)
	env.expect(alice, "DELETE", fmt.Sprintf("/api/connections/%d", bob.ID), nil, nil, http.StatusNotFound)
}

func TestGroupLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser("alice")
	bob := env.createUser("bob")

	var group struct {
		ID uint `json:"id"`
	}
	env.expect(alice, "POST", "/api/groups", map[string]string{"name": "Chat"}, &group, http.StatusCreated)
	base := fmt.Sprintf("/api/groups/%d", group.ID)

	var explore []map[string]interface{}
	env.expect(bob, "GET", "/api/groups/explore", nil, &explore, http.StatusOK)
	if len(explore) != 1 {
		t.Errorf("Expected 1 group to explore, got %d", len(explore))
	}

	env.expect(bob, "POST", base+"/join", nil, nil, http.StatusOK)
	env.expect(bob, "POST", fmt.Sprintf("/api/group-messages/%d", group.ID), map[string]string{"text": "hello"}, nil, http.StatusCreated)

	var thread []models.GroupMessage
	env.expect(alice, "GET", fmt.Sprintf("/api/group-messages/%d", group.ID), nil, &thread, http.StatusOK)
	if len(thread) != 1 || len(thread[0].ReadBy) != 1 || thread[0].ReadBy[0] != alice.ID {
		t.Errorf("Expected one message read by alice, got %+v", thread)
	}

	env.expect(bob, "POST", base+"/exit", nil, nil, http.StatusOK)
	env.expect(bob, "POST", base+"/exit", nil, nil, http.StatusNotFound)
	env.expect(bob, "POST", fmt.Sprintf("/api/group-messages/%d", group.ID), map[string]string{"text": "again"}, nil, http.StatusForbidden)

	var me struct {
		GroupIDs []uint `json:"group_ids"`
	}
	env.expect(alice, "GET", "/api/users/me", nil, &me, http.StatusOK)
	if len(me.GroupIDs) != 1 || me.GroupIDs[0] != group.ID {
		t.Errorf("Expected alice in group %d, got %v", group.ID, me.GroupIDs)
	}

	// A private user cannot be added directly but can accept an invite
	carol := env.createUser("carol")
	env.db.Model(&carol).Update("private", true)
	env.expect(alice, "POST", base+"/members", map[string]uint{"user_id": carol.ID}, nil, http.StatusForbidden)

	var invite models.GroupInvite
	env.expect(alice, "POST", base+"/invites", map[string]uint{"user_id": carol.ID}, &invite, http.StatusCreated)
	var pending []models.GroupInvite
	env.expect(carol, "GET", "/api/invites", nil, &pending, http.StatusOK)
	if len(pending) != 1 || pending[0].ID != invite.ID {
		t.Errorf("Expected carol to see invite %d, got %+v", invite.ID, pending)
	}
	env.expect(carol, "POST", fmt.Sprintf("/api/invites/%d/review/accepted", invite.ID), nil, nil, http.StatusOK)

	var members []map[string]interface{}
	env.expect(carol, "GET", base+"/members", nil, &members, http.StatusOK)
	if len(members) != 2 {
		t.Errorf("Expected alice and carol as members, got %v", members)
	}

	env.expect(alice, "DELETE", base, nil, nil, http.StatusOK)

	drift, err := store.VerifyProjections(context.Background(), env.db)
	if err != nil {
		t.Fatalf("VerifyProjections failed: %v", err)
	}
	if len(drift) != 0 {
		t.Errorf("Expected no drift, got %v", drift)
	}
}

func TestLiveDelivery(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser("alice")
	bob := env.createUser("bob")

	conn := env.dial(bob)
	defer conn.Close()
	waitOnline(t, env.srv.Registry(), bob.ID)

	env.expect(alice, "POST", fmt.Sprintf("/api/messages/%d", bob.ID), map[string]string{"text": "live"}, nil, http.StatusCreated)
	expectDirectMessage(t, conn, alice.ID, "live")
}

func TestLiveDeliveryAcrossServers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	first := setupTestEnv(t)
	cfg := config.Default()
	cfg.Media.Dir = filepath.Join(t.TempDir(), "media")
	cfg.Auth.JWTSecret = "test-secret"

	// Both servers share the database and redis, as two replicas would
	sender := startServer(t, first.db, cfg, rdb)
	receiver := startServer(t, first.db, cfg, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sender.srv.Hub().Relay(ctx, rdb)
	go receiver.srv.Hub().Relay(ctx, rdb)

	deadline := time.Now().Add(2 * time.Second)
	for rdb.PubSubNumPat(ctx).Val() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Relays never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	alice := sender.createUser("alice")
	bob := sender.createUser("bob")

	conn := receiver.dial(bob)
	defer conn.Close()

	// The sending server learns of bob's channel only through redis
	waitOnline(t, sender.srv.Registry(), bob.ID)
	if sender.srv.Hub().Connections() != 0 {
		t.Fatalf("Expected no sockets on the sending server, got %d", sender.srv.Hub().Connections())
	}

	sender.expect(alice, "POST", fmt.Sprintf("/api/messages/%d", bob.ID), map[string]string{"text": "across"}, nil, http.StatusCreated)
	expectDirectMessage(t, conn, alice.ID, "across")

	var online []uint
	sender.expect(alice, "GET", "/api/users/online", nil, &online, http.StatusOK)
	if len(online) != 1 || online[0] != bob.ID {
		t.Errorf("Expected bob online, got %v", online)
	}
}

// dial opens a live channel for user
func (e *testEnv) dial(user models.User) *websocket.Conn {
	e.t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/ws?token=" + e.token(user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		e.t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitOnline(t *testing.T, registry *presence.Registry, userID uint) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := registry.Lookup(userID); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("User %d never came online", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func expectDirectMessage(t *testing.T, conn *websocket.Conn, senderID uint, text string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var event presence.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Type != presence.EventNewDirectMessage {
		t.Errorf("Expected %s, got %s", presence.EventNewDirectMessage, event.Type)
	}
	var msg models.DirectMessage
	json.Unmarshal(event.Data, &msg)
	if msg.Text != text || msg.SenderID != senderID {
		t.Errorf("Unexpected message %+v", msg)
	}
}

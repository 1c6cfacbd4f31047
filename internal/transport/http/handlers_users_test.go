package httptransport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"idstore/internal/identity/audit"
	"idstore/internal/identity/service"
	"idstore/internal/identity/store/user"
	jwttoken "idstore/internal/jwt_token"
	"idstore/internal/platform/middleware"
)

var testJWT = jwttoken.NewJWTService("test-signing-key", "test-issuer", "test-audience")

func newTestRouter(t *testing.T) (http.Handler, *audit.InMemoryStore) {
	t.Helper()
	store := user.NewInMemory()
	auditStore := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.New(store,
		service.WithLogger(logger),
		service.WithAuditPublisher(audit.NewPublisher(auditStore)))

	router := NewRouter(RouterDeps{
		Users: NewUserHandler(svc, logger),
		Audit: NewAuditHandler(auditStore),
		Auth:  middleware.RequireAuth(testJWT, logger),
	})
	return router, auditStore
}

func adminRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	token, err := testJWT.GenerateAccessToken("admin-7", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func createUserPayload() map[string]any {
	return map[string]any{
		"userName": "alice",
		"email":    "alice@example.com",
		"fullName": map[string]string{"firstName": "Alice", "lastName": "Liddell"},
	}
}

func doJSON(t *testing.T, router http.Handler, req *http.Request, wantStatus int, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestBearerTokenRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestCreateAndFetchUser(t *testing.T) {
	router, _ := newTestRouter(t)

	var created UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, &created)
	if created.ID == "" || created.ConcurrencyStamp == "" {
		t.Fatalf("expected server-assigned id and stamp, got %+v", created)
	}
	if created.NormalizedUserName != "ALICE" {
		t.Fatalf("expected normalized username ALICE, got %q", created.NormalizedUserName)
	}
	if created.CreatedByUserID != "admin-7" {
		t.Fatalf("expected creator admin-7 from token, got %q", created.CreatedByUserID)
	}

	var fetched UserResponse
	doJSON(t, router, adminRequest(t, http.MethodGet, "/users/"+created.ID, nil), http.StatusOK, &fetched)
	if fetched.ID != created.ID {
		t.Fatalf("expected fetched user %s, got %s", created.ID, fetched.ID)
	}

	var byName UserResponse
	doJSON(t, router, adminRequest(t, http.MethodGet, "/users/by-name/ALICE", nil), http.StatusOK, &byName)
	if byName.ID != created.ID {
		t.Fatalf("by-name lookup returned wrong user")
	}

	var byEmail []UserResponse
	doJSON(t, router, adminRequest(t, http.MethodGet, "/users/by-email/ALICE@EXAMPLE.COM", nil), http.StatusOK, &byEmail)
	if len(byEmail) != 1 || byEmail[0].ID != created.ID {
		t.Fatalf("by-email lookup returned %d users", len(byEmail))
	}
}

func TestCreateUserValidationAndConflict(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := createUserPayload()
	payload["userName"] = ""
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/users", payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty username, got %d", rec.Code)
	}

	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, nil)

	dup := createUserPayload()
	dup["userName"] = "ALICE"
	dup["email"] = "other@example.com"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/users", dup))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}

	var envelope map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope["error"] != "conflict" {
		t.Fatalf("expected error code conflict, got %q", envelope["error"])
	}
}

func TestUpdateUserStampFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	var created UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, &created)

	update := map[string]any{
		"phoneNumber":      "555-0100",
		"concurrencyStamp": created.ConcurrencyStamp,
	}
	var updated UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPatch, "/users/"+created.ID, update), http.StatusOK, &updated)
	if updated.ConcurrencyStamp == created.ConcurrencyStamp {
		t.Fatalf("expected a fresh stamp after update")
	}
	if updated.ModifiedByUserID != "admin-7" {
		t.Fatalf("expected modifier admin-7 from token, got %q", updated.ModifiedByUserID)
	}

	// Replaying the old stamp must fail with 412.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPatch, "/users/"+created.ID, update))
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 for stale stamp, got %d", rec.Code)
	}

	// Missing stamp is a client error.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPatch, "/users/"+created.ID, map[string]any{"phoneNumber": "555-0101"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without stamp, got %d", rec.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	router, _ := newTestRouter(t)

	var created UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, &created)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodDelete, "/users/"+created.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting user, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodGet, "/users/"+created.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodDelete, "/users/"+created.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestInvalidUserIDRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodGet, "/users/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestChildRecordEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	var created UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, &created)
	base := "/users/" + created.ID

	claim := map[string]string{"name": "department", "value": "engineering"}
	var createdClaim ClaimPayload
	doJSON(t, router, adminRequest(t, http.MethodPost, base+"/claims", claim), http.StatusCreated, &createdClaim)
	if createdClaim.ID == 0 {
		t.Fatalf("expected server-assigned claim id")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPost, base+"/claims", claim))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate claim, got %d", rec.Code)
	}

	var claims []ClaimPayload
	doJSON(t, router, adminRequest(t, http.MethodGet, base+"/claims", nil), http.StatusOK, &claims)
	if len(claims) != 1 || claims[0].Name != "department" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	login := map[string]string{"provider": "github", "providerKey": "gh-7", "displayName": "GitHub"}
	doJSON(t, router, adminRequest(t, http.MethodPost, base+"/logins", login), http.StatusCreated, nil)

	token := map[string]string{"provider": "github", "name": "refresh", "value": "v1"}
	doJSON(t, router, adminRequest(t, http.MethodPut, base+"/tokens", token), http.StatusOK, nil)
	token["value"] = "v2"
	doJSON(t, router, adminRequest(t, http.MethodPut, base+"/tokens", token), http.StatusOK, nil)

	var tokens []TokenPayload
	doJSON(t, router, adminRequest(t, http.MethodGet, base+"/tokens", nil), http.StatusOK, &tokens)
	if len(tokens) != 1 || tokens[0].Value != "v2" {
		t.Fatalf("expected upserted token v2, got %+v", tokens)
	}

	roleID := "550e8400-e29b-41d4-a716-446655440000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodPut, base+"/roles/"+roleID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 assigning role, got %d", rec.Code)
	}

	var roles []string
	doJSON(t, router, adminRequest(t, http.MethodGet, base+"/roles", nil), http.StatusOK, &roles)
	if len(roles) != 1 || roles[0] != roleID {
		t.Fatalf("unexpected roles %+v", roles)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodDelete, base+"/claims/"+strconv.FormatInt(createdClaim.ID, 10), nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 removing claim, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(t, http.MethodDelete, base+"/logins/github/gh-7", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 removing login, got %d", rec.Code)
	}
}

func TestAuditEndpointsRecordLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	var created UserResponse
	doJSON(t, router, adminRequest(t, http.MethodPost, "/users", createUserPayload()), http.StatusCreated, &created)

	update := map[string]any{
		"phoneNumber":      "555-0100",
		"concurrencyStamp": created.ConcurrencyStamp,
	}
	doJSON(t, router, adminRequest(t, http.MethodPatch, "/users/"+created.ID, update), http.StatusOK, nil)

	var events []audit.Event
	doJSON(t, router, adminRequest(t, http.MethodGet, "/users/"+created.ID+"/audit", nil), http.StatusOK, &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Action != audit.ActionUserCreated || events[1].Action != audit.ActionUserUpdated {
		t.Fatalf("unexpected audit actions %q, %q", events[0].Action, events[1].Action)
	}
	if events[0].ActorID != "admin-7" {
		t.Fatalf("expected actor admin-7, got %q", events[0].ActorID)
	}

	var recent []audit.Event
	doJSON(t, router, adminRequest(t, http.MethodGet, "/audit/recent?limit=1", nil), http.StatusOK, &recent)
	if len(recent) != 1 || recent[0].Action != audit.ActionUserUpdated {
		t.Fatalf("expected most recent event to be the update, got %+v", recent)
	}
}

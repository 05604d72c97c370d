package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docvault/internal/audit"
	"docvault/internal/category"
	"docvault/internal/document"
	"docvault/internal/identity"
	"docvault/internal/ratelimit"
	"docvault/internal/usertoken"
	"docvault/pkg/domain"
	"docvault/pkg/storage"
	"docvault/pkg/store"
)

type testEnv struct {
	server   *httptest.Server
	store    *store.MemoryStore
	recorder *audit.Recorder
}

func newEnv(t *testing.T, sensitive, general Limiter) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	tokens, err := usertoken.New(usertoken.Options{Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("usertoken.New() error = %v", err)
	}
	recorder := audit.NewRecorder(st, audit.Options{})
	t.Cleanup(recorder.Close)

	srv := New(Config{
		Store:      st,
		Identity:   identity.NewService(st),
		Categories: category.NewService(st),
		Documents:  document.NewService(st, blobs),
		Audit:      recorder,
		Tokens:     tokens,
		Sensitive:  sensitive,
		General:    general,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: st, recorder: recorder}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (e *testEnv) register(t *testing.T, email, password string) (domain.User, string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": password})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}](t, resp)
	return body.User, body.Token
}

func (e *testEnv) promote(t *testing.T, id string, role domain.UserRole) {
	t.Helper()
	u, ok, _ := e.store.GetUserByID(id)
	if !ok {
		t.Fatalf("user %s missing", id)
	}
	u.Role = role
	if err := e.store.SaveUser(u); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newEnv(t, nil, nil)
	user, _ := env.register(t, "alice@example.com", "password1")
	if user.Role != domain.RoleUser {
		t.Fatalf("role = %s", user.Role)
	}

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp)

	resp = env.do(t, http.MethodGet, "/auth/me", body.Token, nil)
	me := decodeBody[domain.User](t, resp)
	if me.Email != "alice@example.com" {
		t.Fatalf("me = %+v", me)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	env := newEnv(t, nil, nil)
	resp := env.do(t, http.MethodGet, "/documents", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDeactivatedUserTokenRejected(t *testing.T) {
	env := newEnv(t, nil, nil)
	user, token := env.register(t, "gone@example.com", "password1")

	u, _, _ := env.store.GetUserByID(user.ID)
	u.Active = false
	env.store.SaveUser(u)

	resp := env.do(t, http.MethodGet, "/auth/me", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for deactivated account", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	sensitive, err := ratelimit.NewSlidingWindowLimiter(mr.Addr(), "", "test:rl", 5, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewSlidingWindowLimiter() error = %v", err)
	}
	env := newEnv(t, sensitive, nil)
	env.register(t, "alice@example.com", "password1")

	// Registration consumed one attempt from the same address.
	for i := 0; i < 4; i++ {
		resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i, resp.StatusCode)
		}
	}
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after limit", resp.StatusCode)
	}
}

func TestFailedLoginIsAuditedWithoutActor(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.register(t, "alice@example.com", "password1")

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	resp.Body.Close()
	env.recorder.Close()

	entries, err := env.store.ListAuditByActor("", store.AuditFilter{Action: domain.ActionLogin})
	if err != nil {
		t.Fatalf("ListAuditByActor() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d actor-less login entries, want 1", len(entries))
	}
	if entries[0].Outcome != domain.OutcomeFailure || entries[0].ErrorMessage == "" {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func uploadRequest(t *testing.T, url, token, categoryID, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("categoryId", categoryID); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadApproveDownloadFlow(t *testing.T) {
	env := newEnv(t, nil, nil)
	_, userToken := env.register(t, "alice@example.com", "password1")
	manager, _ := env.register(t, "boss@example.com", "password1")
	env.promote(t, manager.ID, domain.RoleManager)
	// Re-login so the token carries the manager role.
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "boss@example.com", "password": "password1"})
	managerToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", managerToken, map[string]any{
		"name":             "Financial Reports",
		"allowedFileTypes": []string{"pdf", "txt"},
		"requiresApproval": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category status = %d", resp.StatusCode)
	}
	cat := decodeBody[domain.Category](t, resp)

	req := uploadRequest(t, env.server.URL+"/documents", userToken, cat.ID, "q3.txt", "quarterly numbers")
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if uploadResp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(uploadResp.Body)
		t.Fatalf("upload status = %d: %s", uploadResp.StatusCode, body)
	}
	doc := decodeBody[domain.Document](t, uploadResp)
	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", doc.Status)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/documents/%s/approve", doc.ID), userToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("approve by uploader status = %d, want 403", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/documents/%s/approve", doc.ID), managerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	approved := decodeBody[domain.Document](t, resp)
	if approved.Status != domain.StatusApproved {
		t.Fatalf("status = %s", approved.Status)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/documents/%s/approve", doc.ID), managerToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double approve status = %d, want 409", resp.StatusCode)
	}
	errBody := decodeBody[struct {
		Error string `json:"error"`
	}](t, resp)
	if !strings.Contains(errBody.Error, "approved") {
		t.Fatalf("conflict message should name the status: %q", errBody.Error)
	}

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/documents/%s/download", doc.ID), userToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "quarterly numbers" {
		t.Fatalf("downloaded %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "q3.txt") {
		t.Fatalf("content disposition = %q", cd)
	}
}

func TestUploadGateErrorsOverHTTP(t *testing.T) {
	env := newEnv(t, nil, nil)
	user, _ := env.register(t, "alice@example.com", "password1")
	env.promote(t, user.ID, domain.RoleAdmin)
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password1"})
	adminToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", adminToken, map[string]any{
		"name":             "Contracts",
		"allowedFileTypes": []string{"pdf"},
	})
	cat := decodeBody[domain.Category](t, resp)

	req := uploadRequest(t, env.server.URL+"/documents", adminToken, cat.ID, "malware.exe", "bytes")
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", uploadResp.StatusCode)
	}
	body, _ := io.ReadAll(uploadResp.Body)
	if !strings.Contains(string(body), "pdf") {
		t.Fatalf("error should list allowed types: %s", body)
	}
}

func TestListVisibilityOverHTTP(t *testing.T) {
	env := newEnv(t, nil, nil)
	_, ownerToken := env.register(t, "owner@example.com", "password1")
	_, strangerToken := env.register(t, "stranger@example.com", "password1")
	admin, _ := env.register(t, "admin@example.com", "password1")
	env.promote(t, admin.ID, domain.RoleAdmin)
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "password1"})
	adminToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", adminToken, map[string]any{
		"name":             "Gated",
		"requiresApproval": true,
	})
	cat := decodeBody[domain.Category](t, resp)

	req := uploadRequest(t, env.server.URL+"/documents", ownerToken, cat.ID, "private.txt", "private")
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	uploadResp.Body.Close()

	type listResponse struct {
		Items []domain.Document `json:"items"`
		Count int               `json:"count"`
	}
	owner := decodeBody[listResponse](t, env.do(t, http.MethodGet, "/documents", ownerToken, nil))
	if owner.Count != 1 {
		t.Fatalf("owner sees %d, want 1", owner.Count)
	}
	stranger := decodeBody[listResponse](t, env.do(t, http.MethodGet, "/documents", strangerToken, nil))
	if stranger.Count != 0 {
		t.Fatalf("stranger sees %d, want 0", stranger.Count)
	}
	adminList := decodeBody[listResponse](t, env.do(t, http.MethodGet, "/documents", adminToken, nil))
	if adminList.Count != 1 {
		t.Fatalf("admin sees %d, want 1", adminList.Count)
	}
}

func TestUserActivityAuthz(t *testing.T) {
	env := newEnv(t, nil, nil)
	alice, aliceToken := env.register(t, "alice@example.com", "password1")
	_, bobToken := env.register(t, "bob@example.com", "password1")

	resp := env.do(t, http.MethodGet, "/audit/users/"+alice.ID, bobToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for another user's activity", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/audit/users/"+alice.ID, aliceToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for own activity", resp.StatusCode)
	}
}

func TestCategoryDeleteRequiresAdmin(t *testing.T) {
	env := newEnv(t, nil, nil)
	manager, _ := env.register(t, "boss@example.com", "password1")
	env.promote(t, manager.ID, domain.RoleManager)
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "boss@example.com", "password": "password1"})
	managerToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", managerToken, map[string]any{"name": "Temp"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category status = %d", resp.StatusCode)
	}
	cat := decodeBody[domain.Category](t, resp)

	resp = env.do(t, http.MethodDelete, "/categories/"+cat.ID, managerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("delete by manager status = %d, want 403", resp.StatusCode)
	}
}

func TestDocumentUpdateRejectsMalformedExpiry(t *testing.T) {
	env := newEnv(t, nil, nil)
	admin, _ := env.register(t, "admin@example.com", "password1")
	env.promote(t, admin.ID, domain.RoleAdmin)
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "password1"})
	adminToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", adminToken, map[string]any{"name": "Open"})
	cat := decodeBody[domain.Category](t, resp)

	req := uploadRequest(t, env.server.URL+"/documents", adminToken, cat.ID, "note.txt", "note")
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	doc := decodeBody[domain.Document](t, uploadResp)

	resp = env.do(t, http.MethodPatch, "/documents/"+doc.ID, adminToken, map[string]string{"expiresAt": "next tuesday"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}](t, resp)
	if len(body.Fields) != 1 || body.Fields[0].Field != "expiresAt" {
		t.Fatalf("fields = %+v, want expiresAt problem", body.Fields)
	}
}

func TestCategoryPermissionListsOverHTTP(t *testing.T) {
	env := newEnv(t, nil, nil)
	steward, stewardToken := env.register(t, "steward@example.com", "password1")
	viewer, viewerToken := env.register(t, "viewer@example.com", "password1")
	_, strangerToken := env.register(t, "stranger@example.com", "password1")
	admin, _ := env.register(t, "admin@example.com", "password1")
	env.promote(t, admin.ID, domain.RoleAdmin)
	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "password1"})
	adminToken := decodeBody[struct {
		Token string `json:"token"`
	}](t, resp).Token

	resp = env.do(t, http.MethodPost, "/categories", adminToken, map[string]any{
		"name": "Payroll",
		"permissions": map[string]any{
			"view":   []string{viewer.ID},
			"manage": []string{steward.ID},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category status = %d", resp.StatusCode)
	}
	cat := decodeBody[domain.Category](t, resp)

	// The view list hides the category from unlisted users.
	resp = env.do(t, http.MethodGet, "/categories/"+cat.ID, strangerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("get by stranger status = %d, want 403", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/categories/"+cat.ID, viewerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get by viewer status = %d, want 200", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/categories", strangerToken, nil)
	listed := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if listed.Count != 0 {
		t.Fatalf("stranger listing count = %d, want 0", listed.Count)
	}

	// The manage list grants update rights without an elevated role.
	resp = env.do(t, http.MethodPatch, "/categories/"+cat.ID, stewardToken, map[string]any{"description": "salary records"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch by steward status = %d, want 200", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPatch, "/categories/"+cat.ID, viewerToken, map[string]any{"description": "nope"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("patch by viewer status = %d, want 403", resp.StatusCode)
	}
}

func TestValidationErrorsCarryFieldProblems(t *testing.T) {
	env := newEnv(t, nil, nil)
	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "bad", "password": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[struct {
		Error  string `json:"error"`
		Fields []struct {
			Field   string `json:"field"`
			Problem string `json:"problem"`
		} `json:"fields"`
	}](t, resp)
	if len(body.Fields) != 2 {
		t.Fatalf("fields = %+v, want 2 problems", body.Fields)
	}
}

//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/trackwise/edgeauth"
)

type response struct {
	status int
	body   map[string]any
	raw    string
}

func call(t *testing.T, method, target, token, contentType, body string) response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := response{status: resp.StatusCode, raw: string(raw)}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func errorCode(r response) string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func register(t *testing.T, s *stack, username string) {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + username + `@example.com","password":"password-` + username + `"}`
	r := call(t, http.MethodPost, s.gateway.URL+"/v1/auth/register", "", "application/json", body)
	if r.status != http.StatusOK {
		t.Fatalf("register %s: %d %s", username, r.status, r.raw)
	}
}

func login(t *testing.T, s *stack, username string) string {
	t.Helper()
	form := url.Values{"username": {username}, "password": {"password-" + username}}
	r := call(t, http.MethodPost, s.gateway.URL+"/auth/token", "", "application/x-www-form-urlencoded", form.Encode())
	if r.status != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, r.status, r.raw)
	}
	tok, _ := r.body["access_token"].(string)
	if tok == "" || r.body["token_type"] != "bearer" {
		t.Fatalf("unexpected token response %s", r.raw)
	}
	return tok
}

func TestStackLoginAndResourceAccess(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			s := newStack(t, mode.setup(t))
			register(t, s, "alice")
			tok := login(t, s, "alice")

			r := call(t, http.MethodGet, s.gateway.URL+"/v1/defects/42", tok, "", "")
			if r.status != http.StatusOK || r.body["username"] != "alice" || r.body["role"] != "observer" {
				t.Fatalf("defects via gateway: %d %s", r.status, r.raw)
			}

			r = call(t, http.MethodGet, s.gateway.URL+"/auth/users/me", tok, "", "")
			if r.status != http.StatusOK || r.body["username"] != "alice" {
				t.Fatalf("me via gateway: %d %s", r.status, r.raw)
			}

			r = call(t, http.MethodGet, s.gateway.URL+"/projects/7", "", "", "")
			if r.status != http.StatusUnauthorized || errorCode(r) != "AUTH_HEADER_MISSING" {
				t.Fatalf("anonymous projects: %d %s", r.status, r.raw)
			}
		})
	}
}

// After logout the gateway still accepts the signed token, but every service
// that asks the authority refuses it.
func TestLogoutDivergesStatelessAndAuthority(t *testing.T) {
	s := newStack(t, redisModes(t)[0].setup(t))
	register(t, s, "alice")
	tok := login(t, s, "alice")

	r := call(t, http.MethodPost, s.gateway.URL+"/auth/logout", tok, "", "")
	if r.status != http.StatusOK || r.body["message"] != "Successfully logged out" {
		t.Fatalf("logout: %d %s", r.status, r.raw)
	}

	r = call(t, http.MethodGet, s.gateway.URL+"/projects/7", tok, "", "")
	if r.status != http.StatusOK || r.body["path"] != "/projects/7" {
		t.Fatalf("stateless route after logout: %d %s", r.status, r.raw)
	}

	r = call(t, http.MethodGet, s.gateway.URL+"/defects/1", tok, "", "")
	if r.status != http.StatusUnauthorized {
		t.Fatalf("authority route after logout: %d %s", r.status, r.raw)
	}

	r = call(t, http.MethodGet, s.authority.URL+"/auth/users/me", tok, "", "")
	if r.status != http.StatusUnauthorized || errorCode(r) != "TOKEN_REVOKED" {
		t.Fatalf("me after logout: %d %s", r.status, r.raw)
	}
}

func TestSecondLoginRevokesFirstEverywhere(t *testing.T) {
	s := newStack(t, redisModes(t)[0].setup(t))
	register(t, s, "alice")
	first := login(t, s, "alice")
	second := login(t, s, "alice")

	if first == second {
		t.Fatal("expected distinct tokens")
	}
	if r := call(t, http.MethodGet, s.defects.URL+"/defects", first, "", ""); r.status != http.StatusUnauthorized {
		t.Fatalf("superseded token at defects: %d %s", r.status, r.raw)
	}
	if r := call(t, http.MethodGet, s.defects.URL+"/defects", second, "", ""); r.status != http.StatusOK {
		t.Fatalf("current token at defects: %d %s", r.status, r.raw)
	}

	r := call(t, http.MethodPost, s.gateway.URL+"/auth/logout", second, "", "")
	if r.status != http.StatusOK {
		t.Fatalf("logout: %d %s", r.status, r.raw)
	}
	if r := call(t, http.MethodGet, s.defects.URL+"/defects", second, "", ""); r.status != http.StatusUnauthorized {
		t.Fatalf("logged out token at defects: %d %s", r.status, r.raw)
	}

	snap := s.engine.MetricsSnapshot()
	if snap.Counters[edgeauth.MetricSessionSuperseded] != 1 || snap.Counters[edgeauth.MetricLogout] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestRoleChangeRequiresNewLogin(t *testing.T) {
	s := newStack(t, redisModes(t)[0].setup(t))
	register(t, s, "root")
	register(t, s, "alice")

	root, err := s.users.GetPrincipalByUsername(t.Context(), "root")
	if err != nil {
		t.Fatalf("lookup root: %v", err)
	}
	if _, err := s.users.UpdateRole(t.Context(), root.ID, edgeauth.RoleAdmin); err != nil {
		t.Fatalf("promote root: %v", err)
	}
	alice, err := s.users.GetPrincipalByUsername(t.Context(), "alice")
	if err != nil {
		t.Fatalf("lookup alice: %v", err)
	}

	rootTok := login(t, s, "root")
	aliceTok := login(t, s, "alice")

	r := call(t, http.MethodPut, s.gateway.URL+"/auth/users/"+alice.ID+"/role?new_role=manager", rootTok, "", "")
	if r.status != http.StatusOK || r.body["role"] != "manager" {
		t.Fatalf("update role: %d %s", r.status, r.raw)
	}

	if r := call(t, http.MethodGet, s.gateway.URL+"/defects/1", aliceTok, "", ""); r.status != http.StatusUnauthorized {
		t.Fatalf("stale role token: %d %s", r.status, r.raw)
	}
	aliceTok = login(t, s, "alice")
	r = call(t, http.MethodGet, s.gateway.URL+"/defects/1", aliceTok, "", "")
	if r.status != http.StatusOK || r.body["role"] != "manager" {
		t.Fatalf("fresh token: %d %s", r.status, r.raw)
	}
}

func TestUnreachableUpstreamIs503(t *testing.T) {
	s := newStack(t, redisModes(t)[0].setup(t))
	register(t, s, "alice")
	tok := login(t, s, "alice")

	r := call(t, http.MethodGet, s.gateway.URL+"/v1/reports/export.csv", tok, "", "")
	if r.status != http.StatusServiceUnavailable || errorCode(r) != "SERVICE_UNAVAILABLE" {
		t.Fatalf("unreachable reports: %d %s", r.status, r.raw)
	}
}

func TestFailedLoginThroughGateway(t *testing.T) {
	s := newStack(t, redisModes(t)[0].setup(t))
	register(t, s, "alice")

	form := url.Values{"username": {"alice"}, "password": {"not-the-password"}}
	r := call(t, http.MethodPost, s.gateway.URL+"/auth/token", "", "application/x-www-form-urlencoded", form.Encode())
	if r.status != http.StatusUnauthorized || errorCode(r) != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login: %d %s", r.status, r.raw)
	}
}

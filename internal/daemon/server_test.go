package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"tipflow/internal/approval"
	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/daemon"
	"tipflow/internal/logging"
	"tipflow/internal/notifications"
	"tipflow/internal/publish"
	"tipflow/internal/testsupport"
	"tipflow/internal/workflow"
)

type gitScript struct {
	pushErr error
	pushes  int
}

func (g *gitScript) run(_ context.Context, _ string, _ []string, _ string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "push" {
		g.pushes++
		return nil, g.pushErr
	}
	return nil, nil
}

type env struct {
	cfg    *config.Config
	store  approval.Store
	runner *workflow.Runner
	git    *gitScript
	srv    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.FixedClock()
	gen, err := content.NewGenerator(cfg, nil, logging.NewNop(), content.WithClock(clock))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	store, err := approval.Open(cfg, approval.WithClock(clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	script := &gitScript{}
	publisher := publish.New(cfg, logging.NewNop())
	publisher.WithCommandRunner(script.run)
	notifier := notifications.NewService(cfg, logging.NewNop())

	approver := workflow.NewApprover(store, gen, publisher, notifier, logging.NewNop())
	server := daemon.NewServer(approver, cfg.Generator.Topic, logging.NewNop())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &env{
		cfg:    cfg,
		store:  store,
		runner: workflow.NewRunner(gen, store, notifier, cfg.Server.PublicURL, logging.NewNop()),
		git:    script,
		srv:    srv,
	}
}

func (e *env) runOnce(t *testing.T) *workflow.RunResult {
	t.Helper()
	res, err := e.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return res
}

func (e *env) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	code, body := e.get(t, "/health")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "healthy" || payload["service"] != "tipflow-approval-server" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestApproveEndToEnd(t *testing.T) {
	e := newEnv(t)
	res := e.runOnce(t)
	if res.Notified {
		t.Fatal("no notifier is configured; run should require manual approval")
	}

	code, body := e.get(t, "/approve/"+res.Token)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	if !strings.Contains(body, "Approved") {
		t.Fatalf("missing approval message: %s", body)
	}
	wantURL := "https://github.com/acme/tips/blob/master/tips/Python_tip_using_enumerate_for_index_and_value.ipynb"
	if !strings.Contains(body, wantURL) {
		t.Fatalf("missing remote link %q: %s", wantURL, body)
	}
	rec, err := e.store.Get(context.Background(), res.Token)
	if err != nil || rec.Status != approval.StatusApproved {
		t.Fatalf("expected approved record, got %+v, %v", rec, err)
	}

	code, body = e.get(t, "/approve/"+res.Token)
	if code != http.StatusOK || !strings.Contains(body, "already processed, currently approved") {
		t.Fatalf("repeat approval: %d %s", code, body)
	}
	if e.git.pushes != 1 {
		t.Fatalf("expected exactly one push, got %d", e.git.pushes)
	}
}

func TestApprovePushFailureLeavesPending(t *testing.T) {
	e := newEnv(t)
	res := e.runOnce(t)
	e.git.pushErr = errors.New("remote rejected")

	code, body := e.get(t, "/approve/"+res.Token)
	if code != http.StatusInternalServerError || !strings.Contains(body, "Push Failed") {
		t.Fatalf("expected 500 Push Failed, got %d: %s", code, body)
	}
	if !strings.Contains(body, "remote rejected") {
		t.Fatalf("error message missing: %s", body)
	}
	rec, _ := e.store.Get(context.Background(), res.Token)
	if rec.Status != approval.StatusPending {
		t.Fatalf("expected pending after failure, got %s", rec.Status)
	}

	e.git.pushErr = nil
	if code, _ := e.get(t, "/approve/"+res.Token); code != http.StatusOK {
		t.Fatalf("retry expected 200, got %d", code)
	}
}

func TestRejectEndpoint(t *testing.T) {
	e := newEnv(t)
	res := e.runOnce(t)

	code, body := e.get(t, "/reject/"+res.Token)
	if code != http.StatusOK || !strings.Contains(body, "Tip Rejected") {
		t.Fatalf("expected rejection page, got %d: %s", code, body)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file deleted, got %v", err)
	}

	code, body = e.get(t, "/reject/"+res.Token)
	if code != http.StatusOK || !strings.Contains(body, "already processed, currently rejected") {
		t.Fatalf("repeat rejection: %d %s", code, body)
	}
	code, body = e.get(t, "/approve/"+res.Token)
	if code != http.StatusOK || !strings.Contains(body, "currently rejected") {
		t.Fatalf("approve after reject: %d %s", code, body)
	}
	if e.git.pushes != 0 {
		t.Fatalf("rejected item must not be pushed")
	}
}

func TestUnknownTokens(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/approve/missing", "/reject/missing"} {
		code, body := e.get(t, path)
		if code != http.StatusNotFound || !strings.Contains(body, "Invalid or Expired Token") {
			t.Fatalf("%s: expected 404, got %d: %s", path, code, body)
		}
	}
}

func TestIndexAndPendingAPI(t *testing.T) {
	e := newEnv(t)
	first := e.runOnce(t)
	e.runOnce(t)
	if code, _ := e.get(t, "/reject/"+first.Token); code != http.StatusOK {
		t.Fatalf("reject failed: %d", code)
	}

	code, body := e.get(t, "/")
	if code != http.StatusOK {
		t.Fatalf("index: %d", code)
	}
	if !strings.Contains(body, "Python Tip Approval System") {
		t.Fatalf("unexpected index: %s", body)
	}
	if !strings.Contains(body, `<div class="stat-number">1</div><div class="stat-label">Pending Approvals</div>`) ||
		!strings.Contains(body, `<div class="stat-number">2</div><div class="stat-label">Total Requests</div>`) {
		t.Fatalf("unexpected counts: %s", body)
	}

	code, body = e.get(t, "/api/pending")
	if code != http.StatusOK {
		t.Fatalf("pending api: %d", code)
	}
	if strings.Contains(body, first.Token) {
		t.Fatal("pending api must not expose tokens")
	}
	var payload struct {
		Pending []struct {
			Headline string `json:"headline"`
			Filename string `json:"filename"`
		} `json:"pending"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Pending) != 1 || payload.Pending[0].Headline != "Dictionary get method with default value" {
		t.Fatalf("unexpected pending payload %+v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Post(e.srv.URL+"/approve/abc", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

type stubDecider struct{}

func (stubDecider) Approve(context.Context, string) (workflow.Outcome, error) {
	return workflow.Outcome{}, approval.ErrNotFound
}

func (stubDecider) Reject(context.Context, string) (workflow.Outcome, error) {
	return workflow.Outcome{}, approval.ErrNotFound
}

func (stubDecider) Pending(context.Context) ([]*approval.Record, error) { return nil, nil }

func (stubDecider) Stats(context.Context) (approval.Stats, error) { return approval.Stats{}, nil }

package workflow_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"tipflow/internal/approval"
	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/notifications"
	"tipflow/internal/publish"
	"tipflow/internal/testsupport"
	"tipflow/internal/workflow"
)

type recordingNotifier struct {
	mu        sync.Mutex
	requests  []notifications.ApprovalRequest
	published []string
	errors    []string
	fail      error
}

func (n *recordingNotifier) NotifyApprovalRequested(_ context.Context, req notifications.ApprovalRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return n.fail
}

func (n *recordingNotifier) NotifyPublished(_ context.Context, _ content.Item, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, url)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, _ error, label string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, label)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type fakePublisher struct {
	mu    sync.Mutex
	paths []string
	fail  error
}

func (p *fakePublisher) Publish(_ context.Context, filePath string, _ content.Item, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.paths = append(p.paths, filePath)
	return nil
}

func (p *fakePublisher) ViewURL(item content.Item) string {
	return publish.RemoteViewURL("https://github.com/acme/tips", "master", "tips", item.Filename)
}

type harness struct {
	cfg       *config.Config
	gen       *content.Generator
	store     approval.Store
	notifier  *recordingNotifier
	publisher *fakePublisher
	runner    *workflow.Runner
	approver  *workflow.Approver
}

func newHarness(t *testing.T, genOpts ...content.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.FixedClock()
	gen, err := content.NewGenerator(cfg, nil, logging.NewNop(), append([]content.Option{content.WithClock(clock)}, genOpts...)...)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	store, err := approval.Open(cfg, approval.WithClock(clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		cfg:       cfg,
		gen:       gen,
		store:     store,
		notifier:  &recordingNotifier{},
		publisher: &fakePublisher{},
	}
	h.runner = workflow.NewRunner(gen, store, h.notifier, cfg.Server.PublicURL, logging.NewNop(),
		workflow.WithIDGenerator(&testsupport.StubIDGenerator{}))
	h.approver = workflow.NewApprover(store, gen, h.publisher, h.notifier, logging.NewNop())
	return h
}

func (h *harness) run(t *testing.T) *workflow.RunResult {
	t.Helper()
	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return res
}

func TestRunOnceCreatesPendingRequestAndNotifies(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)

	if res.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", res.RunID)
	}
	if res.Item.Shortname != "using_enumerate_for_index_and_value" {
		t.Fatalf("unexpected item %q", res.Item.Shortname)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("item file missing: %v", err)
	}
	rec, err := h.store.Get(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != approval.StatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}
	if !res.Notified || res.NotifyErr != nil {
		t.Fatalf("expected notified result, got %+v", res)
	}
	if len(h.notifier.requests) != 1 {
		t.Fatalf("expected one approval request, got %d", len(h.notifier.requests))
	}
	req := h.notifier.requests[0]
	if req.ApproveURL != "http://tips.test/approve/"+res.Token || req.RejectURL != "http://tips.test/reject/"+res.Token {
		t.Fatalf("unexpected links %q %q", req.ApproveURL, req.RejectURL)
	}
	history, err := h.gen.History()
	if err != nil || !history.Contains(res.Item.Shortname) {
		t.Fatalf("history not updated: %v", err)
	}
}

func TestRunOnceNotificationFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.notifier.fail = errors.New("smtp down")

	res := h.run(t)
	if res.Notified || res.NotifyErr == nil {
		t.Fatalf("expected unnotified result, got %+v", res)
	}
	stats, err := h.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 {
		t.Fatalf("expected pending record, got %+v", stats)
	}
	instructions := workflow.ManualInstructions(res)
	if !strings.Contains(instructions, "tipflow approve "+res.Token) || !strings.Contains(instructions, "delete the file") {
		t.Fatalf("unexpected instructions %q", instructions)
	}
}

func TestRunOnceWithoutNotifierFallsBackToManual(t *testing.T) {
	h := newHarness(t)
	runner := workflow.NewRunner(h.gen, h.store, notifications.NewService(h.cfg, logging.NewNop()), h.cfg.Server.PublicURL, logging.NewNop())
	res, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !errors.Is(res.NotifyErr, notifications.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", res.NotifyErr)
	}
}

func TestRunOnceStopsWhenPoolExhausted(t *testing.T) {
	h := newHarness(t, content.WithPool(content.DefaultPool()[:1]))
	h.run(t)

	_, err := h.runner.RunOnce(context.Background())
	if !errors.Is(err, content.ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	stats, _ := h.store.Stats(context.Background())
	if stats.Total != 1 {
		t.Fatalf("exhausted run must not create a record: %+v", stats)
	}
}

func TestApprovePublishesOnce(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)
	ctx := context.Background()

	out, err := h.approver.Approve(ctx, res.Token)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if out.Record.Status != approval.StatusApproved || out.Record.DecidedAt == nil {
		t.Fatalf("unexpected record %+v", out.Record)
	}
	if !strings.HasSuffix(out.RemoteURL, "/blob/master/tips/Python_tip_using_enumerate_for_index_and_value.ipynb") {
		t.Fatalf("unexpected remote url %q", out.RemoteURL)
	}
	if len(h.publisher.paths) != 1 || h.publisher.paths[0] != res.Path {
		t.Fatalf("unexpected publishes %v", h.publisher.paths)
	}
	if len(h.notifier.published) != 1 {
		t.Fatalf("expected publish notice, got %v", h.notifier.published)
	}

	out, err = h.approver.Approve(ctx, res.Token)
	var decided *approval.AlreadyDecidedError
	if !errors.As(err, &decided) || decided.Status != approval.StatusApproved {
		t.Fatalf("expected AlreadyDecidedError, got %v", err)
	}
	if out.Record == nil || out.Record.Status != approval.StatusApproved {
		t.Fatalf("expected current record on repeat, got %+v", out.Record)
	}
	if len(h.publisher.paths) != 1 {
		t.Fatalf("publish must not repeat, got %v", h.publisher.paths)
	}

	if _, err := h.approver.Reject(ctx, res.Token); !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Fatalf("expected reject of approved token to be refused, got %v", err)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("approved file must survive a late rejection: %v", err)
	}
}

func TestApprovePublishFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)
	ctx := context.Background()

	h.publisher.fail = &publish.PublishError{Op: "push", Err: errors.New("rejected")}
	_, err := h.approver.Approve(ctx, res.Token)
	var pubErr *publish.PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	rec, _ := h.store.Get(ctx, res.Token)
	if rec.Status != approval.StatusPending {
		t.Fatalf("failed publish must leave pending, got %s", rec.Status)
	}
	if len(h.notifier.errors) != 1 || h.notifier.errors[0] != "publish" {
		t.Fatalf("expected error notice, got %v", h.notifier.errors)
	}

	h.publisher.fail = nil
	if _, err := h.approver.Approve(ctx, res.Token); err != nil {
		t.Fatalf("retry Approve: %v", err)
	}
}

func TestRejectDeletesFileAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)
	ctx := context.Background()

	out, err := h.approver.Reject(ctx, res.Token)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !out.FileRemoved || out.Record.Status != approval.StatusRejected {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed, got %v", err)
	}
	first, _ := h.store.Get(ctx, res.Token)

	out, err = h.approver.Reject(ctx, res.Token)
	if !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if out.Record.Status != approval.StatusRejected {
		t.Fatalf("unexpected status %s", out.Record.Status)
	}
	second, _ := h.store.Get(ctx, res.Token)
	if !first.DecidedAt.Equal(*second.DecidedAt) {
		t.Fatal("repeat rejection must not rewrite the record")
	}
	if _, err := h.approver.Approve(ctx, res.Token); !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Fatalf("approve after reject should be refused, got %v", err)
	}
	if len(h.publisher.paths) != 0 {
		t.Fatal("rejected item must never publish")
	}
}

func TestRejectWithMissingFileStillRejects(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)
	if err := os.Remove(res.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, err := h.approver.Reject(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if out.Record.Status != approval.StatusRejected {
		t.Fatalf("unexpected status %s", out.Record.Status)
	}
}

func TestDecisionsOnUnknownToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.approver.Approve(ctx, "nope"); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("Approve: expected ErrNotFound, got %v", err)
	}
	if _, err := h.approver.Reject(ctx, "nope"); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("Reject: expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentApprovalsPublishOnce(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.approver.Approve(context.Background(), res.Token)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, approval.ErrAlreadyDecided):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || len(h.publisher.paths) != 1 {
		t.Fatalf("expected exactly one publish, got %d successes and %v", succeeded, h.publisher.paths)
	}
}

func TestPendingAndStats(t *testing.T) {
	h := newHarness(t)
	first := h.run(t)
	h.run(t)
	ctx := context.Background()
	if _, err := h.approver.Reject(ctx, first.Token); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	pending, err := h.approver.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	stats, err := h.approver.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.Rejected != 1 || stats.Total != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

package approval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tipflow/internal/approval"
	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/testsupport"
)

type backend struct {
	name string
	open func(t *testing.T, clock *testsupport.StubClock) approval.Store
}

var backends = []backend{
	{"json", func(t *testing.T, clock *testsupport.StubClock) approval.Store {
		s, err := approval.OpenJSON(filepath.Join(t.TempDir(), "pending_approvals.json"), approval.WithClock(clock))
		if err != nil {
			t.Fatalf("OpenJSON: %v", err)
		}
		return s
	}},
	{"sqlite", func(t *testing.T, clock *testsupport.StubClock) approval.Store {
		s, err := approval.OpenSQLite(filepath.Join(t.TempDir(), "approvals.db"), approval.WithClock(clock))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		return s
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store approval.Store, clock *testsupport.StubClock)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := testsupport.FixedClock()
			store := b.open(t, clock)
			t.Cleanup(func() { _ = store.Close() })
			fn(t, store, clock)
		})
	}
}

func sampleItem(shortname string) content.Item {
	return content.Item{
		Headline:  "Headline " + shortname,
		Shortname: shortname,
		Body:      `{"cells":[]}`,
		Filename:  "Python_tip_" + shortname + ".ipynb",
		CreatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		Code:      "print(1)",
	}
}

func TestCreatePendingAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, clock *testsupport.StubClock) {
		ctx := context.Background()
		token, err := store.CreatePending(ctx, sampleItem("a"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}
		if len(token) != 43 || strings.ContainsAny(token, "+/=") {
			t.Fatalf("unexpected token format %q", token)
		}

		rec, err := store.Get(ctx, token)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Status != approval.StatusPending || rec.DecidedAt != nil {
			t.Fatalf("unexpected record %+v", rec)
		}
		if !rec.CreatedAt.Equal(clock.Now()) {
			t.Fatalf("unexpected created_at %v", rec.CreatedAt)
		}
		if rec.Item.Filename != "Python_tip_a.ipynb" || !rec.Item.CreatedAt.Equal(sampleItem("a").CreatedAt) {
			t.Fatalf("item did not round trip: %+v", rec.Item)
		}

		if _, err := store.Get(ctx, "nope"); !errors.Is(err, approval.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCreatePendingRejectsInvalidItem(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, _ *testsupport.StubClock) {
		if _, err := store.CreatePending(context.Background(), content.Item{Headline: "x"}); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestTokensAreUnique(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, _ *testsupport.StubClock) {
		seen := map[string]struct{}{}
		for i := 0; i < 20; i++ {
			token, err := store.CreatePending(context.Background(), sampleItem("same"))
			if err != nil {
				t.Fatalf("CreatePending: %v", err)
			}
			if _, dup := seen[token]; dup {
				t.Fatalf("duplicate token %q", token)
			}
			seen[token] = struct{}{}
		}
	})
}

func TestDecideRecordsOnlyOnSuccess(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, clock *testsupport.StubClock) {
		ctx := context.Background()
		token, err := store.CreatePending(ctx, sampleItem("b"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}

		pushErr := errors.New("push rejected")
		rec, err := store.Decide(ctx, token, approval.StatusApproved, func(approval.Record) error { return pushErr })
		if !errors.Is(err, pushErr) {
			t.Fatalf("expected action error, got %v", err)
		}
		if rec == nil || rec.Status != approval.StatusPending {
			t.Fatalf("expected pending record on failure, got %+v", rec)
		}
		stored, err := store.Get(ctx, token)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if stored.Status != approval.StatusPending {
			t.Fatalf("failed action must leave record pending, got %s", stored.Status)
		}

		clock.Advance(time.Hour)
		var seen approval.Record
		rec, err = store.Decide(ctx, token, approval.StatusApproved, func(r approval.Record) error {
			seen = r
			return nil
		})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if seen.Token != token || seen.Status != approval.StatusPending {
			t.Fatalf("action saw unexpected record %+v", seen)
		}
		if rec.Status != approval.StatusApproved || rec.DecidedAt == nil || !rec.DecidedAt.Equal(clock.Now()) {
			t.Fatalf("unexpected decided record %+v", rec)
		}

		calls := 0
		rec, err = store.Decide(ctx, token, approval.StatusRejected, func(approval.Record) error {
			calls++
			return nil
		})
		var already *approval.AlreadyDecidedError
		if !errors.As(err, &already) || already.Status != approval.StatusApproved {
			t.Fatalf("expected AlreadyDecidedError(approved), got %v", err)
		}
		if !errors.Is(err, approval.ErrAlreadyDecided) {
			t.Fatal("expected error to match ErrAlreadyDecided")
		}
		if calls != 0 {
			t.Fatal("action must not run for a decided record")
		}
		if rec == nil || rec.Status != approval.StatusApproved {
			t.Fatalf("expected current record with error, got %+v", rec)
		}
	})
}

func TestDecideUnknownTokenAndInvalidTarget(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, _ *testsupport.StubClock) {
		ctx := context.Background()
		if _, err := store.Transition(ctx, "missing", approval.StatusRejected); !errors.Is(err, approval.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		token, err := store.CreatePending(ctx, sampleItem("c"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}
		if _, err := store.Transition(ctx, token, approval.StatusPending); !errors.Is(err, approval.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestConcurrentDecisionsRunActionOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, _ *testsupport.StubClock) {
		ctx := context.Background()
		token, err := store.CreatePending(ctx, sampleItem("d"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}

		var (
			actions   atomic.Int32
			successes atomic.Int32
			wg        sync.WaitGroup
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Decide(ctx, token, approval.StatusApproved, func(approval.Record) error {
					actions.Add(1)
					time.Sleep(5 * time.Millisecond)
					return nil
				})
				if err == nil {
					successes.Add(1)
				} else if !errors.Is(err, approval.ErrAlreadyDecided) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if actions.Load() != 1 || successes.Load() != 1 {
			t.Fatalf("expected exactly one action and success, got actions=%d successes=%d", actions.Load(), successes.Load())
		}
	})
}

func TestDecideSerializesOtherDecisions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, _ *testsupport.StubClock) {
		ctx := context.Background()
		slow, err := store.CreatePending(ctx, sampleItem("slow"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}
		other, err := store.CreatePending(ctx, sampleItem("other"))
		if err != nil {
			t.Fatalf("CreatePending: %v", err)
		}

		started := make(chan struct{})
		release := make(chan struct{})
		slowDone := make(chan error, 1)
		go func() {
			_, err := store.Decide(ctx, slow, approval.StatusApproved, func(approval.Record) error {
				close(started)
				<-release
				return nil
			})
			slowDone <- err
		}()
		<-started

		otherDone := make(chan error, 1)
		go func() {
			_, err := store.Transition(ctx, other, approval.StatusRejected)
			otherDone <- err
		}()
		select {
		case err := <-otherDone:
			t.Fatalf("decision on another token finished while an action held the lock: %v", err)
		case <-time.After(100 * time.Millisecond):
		}

		close(release)
		if err := <-slowDone; err != nil {
			t.Fatalf("slow Decide: %v", err)
		}
		if err := <-otherDone; err != nil {
			t.Fatalf("other Transition: %v", err)
		}
	})
}

func TestListAndStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store approval.Store, clock *testsupport.StubClock) {
		ctx := context.Background()
		var tokens []string
		for _, name := range []string{"one", "two", "three"} {
			token, err := store.CreatePending(ctx, sampleItem(name))
			if err != nil {
				t.Fatalf("CreatePending: %v", err)
			}
			tokens = append(tokens, token)
			clock.Advance(time.Minute)
		}
		if _, err := store.Transition(ctx, tokens[0], approval.StatusApproved); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if _, err := store.Transition(ctx, tokens[1], approval.StatusRejected); err != nil {
			t.Fatalf("Transition: %v", err)
		}

		all, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 || all[0].Item.Shortname != "one" || all[2].Item.Shortname != "three" {
			t.Fatalf("expected oldest first, got %v", shortnames(all))
		}
		pending, err := store.List(ctx, approval.StatusPending)
		if err != nil {
			t.Fatalf("List pending: %v", err)
		}
		if len(pending) != 1 || pending[0].Token != tokens[2] {
			t.Fatalf("unexpected pending list %v", shortnames(pending))
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		want := approval.Stats{Pending: 1, Approved: 1, Rejected: 1, Total: 3}
		if stats != want {
			t.Fatalf("stats = %+v, want %+v", stats, want)
		}
	})
}

func shortnames(records []*approval.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Item.Shortname)
	}
	return out
}

func TestJSONStorePersistsFormatAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_approvals.json")
	store, err := approval.OpenJSON(path)
	if err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	ctx := context.Background()
	token, err := store.CreatePending(ctx, sampleItem("persist"))
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := store.Transition(ctx, token, approval.StatusRejected); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	for _, key := range []string{`"tip_data"`, `"created_at"`, `"status": "rejected"`, `"rejected_at"`, token} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in store file:\n%s", key, data)
		}
	}
	if strings.Contains(string(data), `"approved_at"`) {
		t.Fatalf("rejected record must not carry approved_at:\n%s", data)
	}

	reopened, err := approval.OpenJSON(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, err := reopened.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if rec.Status != approval.StatusRejected || rec.DecidedAt == nil {
		t.Fatalf("unexpected reloaded record %+v", rec)
	}
}

func TestJSONStoreRejectsCorruptFile(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"abc": `,
		"unknown status": `{"tok": {"tip_data": {"headline":"h","shortname":"s","content":"c","filename":"f","date":"2024-01-15T09:00:00Z"}, "created_at": "2024-01-15T09:00:00Z", "status": "maybe"}}`,
		"no tip data":    `{"tok": {"created_at": "2024-01-15T09:00:00Z", "status": "pending"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pending_approvals.json")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := approval.OpenJSON(path); !errors.Is(err, approval.ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestSharedJSONFileAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_approvals.json")
	first, err := approval.OpenJSON(path)
	if err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	second, err := approval.OpenJSON(path)
	if err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	ctx := context.Background()
	token, err := first.CreatePending(ctx, sampleItem("shared"))
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := second.Transition(ctx, token, approval.StatusApproved); err != nil {
		t.Fatalf("Transition via second handle: %v", err)
	}
	if _, err := first.Transition(ctx, token, approval.StatusRejected); !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Fatalf("expected first handle to observe decision, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(config.StoreBackendSQLite))
	store, err := approval.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*approval.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}

	jsonCfg := testsupport.NewConfig(t)
	jsonStore, err := approval.Open(jsonCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := jsonStore.(*approval.JSONStore); !ok {
		t.Fatalf("expected json store, got %T", jsonStore)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := approval.ParseStatus(" Approved "); err != nil || s != approval.StatusApproved {
		t.Fatalf("ParseStatus = %q, %v", s, err)
	}
	if _, err := approval.ParseStatus("expired"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if approval.StatusPending.Terminal() || !approval.StatusRejected.Terminal() {
		t.Fatal("terminal classification mismatch")
	}
}

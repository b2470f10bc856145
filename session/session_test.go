package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/backend/wesljs"
	"github.com/hazyhaar/weslplay/backend/weslrs"
	"github.com/hazyhaar/weslplay/compile"
	"github.com/hazyhaar/weslplay/dbopen"
	"github.com/hazyhaar/weslplay/localstore"
	"github.com/hazyhaar/weslplay/observability"
	"github.com/hazyhaar/weslplay/project"
	"github.com/hazyhaar/weslplay/schema"
	"github.com/hazyhaar/weslplay/sharestore"
)

// fakeRs answers like wesl-rs: the root module source, an error document
// when the source mentions "broken", a plain error for "crash".
func fakeRs(_ context.Context, payload []byte) ([]byte, error) {
	var req weslrs.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	src := req.Files[backend.ModulePath(req.Root)]
	switch {
	case strings.Contains(src, "crash"):
		return nil, errors.New("wasm trap: unreachable")
	case strings.Contains(src, "broken"):
		doc, _ := json.Marshal(weslrs.ErrorDoc{
			Message: "unresolved array<f32>",
			Diagnostics: []backend.Diagnostic{
				{File: backend.ModulePath(req.Root), Span: backend.Span{Start: 0, End: 6}, Title: "here"},
			},
		})
		return nil, &backend.Fault{Body: doc}
	}
	return json.Marshal(src)
}

type env struct {
	kv      localstore.KV
	deps    Deps
	metrics *observability.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbopen.OpenMemory(t)
	kv, err := localstore.NewSQLite(db)
	if err != nil {
		t.Fatal(err)
	}
	shares, err := sharestore.New(sharestore.Config{DB: db})
	if err != nil {
		t.Fatal(err)
	}
	router := backend.NewRouter()
	router.RegisterLocal(weslrs.Service, fakeRs)
	m := observability.NewMetrics()
	return &env{
		kv:      kv,
		metrics: m,
		deps: Deps{
			Router: router,
			Adapters: map[schema.Backend]backend.Adapter{
				schema.BackendRs: weslrs.New(),
				schema.BackendJs: wesljs.New(),
			},
			Share:        shares,
			PublicURL:    "https://play.example",
			StoreVersion: "3",
			Compile:      compile.Options{Debounce: 20 * time.Millisecond},
			Metrics:      m,
		},
	}
}

func (e *env) open(t *testing.T, id string, params url.Values) *Session {
	t.Helper()
	s, err := Open(context.Background(), id, e.kv, params, e.deps)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func nextResult(t *testing.T, ch <-chan Event) backend.Result {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == EventResult {
				return *ev.Result
			}
		case <-timeout:
			t.Fatal("timed out waiting for a result event")
		}
	}
}

func TestOpen_DefaultView(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	v := s.View()
	if diff := cmp.Diff(project.DefaultFiles(), v.Files); diff != "" {
		t.Fatal(diff)
	}
	if v.Message != DefaultMessage || v.Backend != schema.BackendRs || !v.Autorun {
		t.Fatalf("view = %+v", v)
	}
	if diff := cmp.Diff([]schema.Mangler{"escape", "hash", "none"}, v.Manglers); diff != "" {
		t.Fatal(diff)
	}
}

func TestEdit_Compiles(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	events, cancel := s.Subscribe()
	defer cancel()

	s.SetFileSource(0, "fn main() -> u32 { return 1u; }")
	s.SetFileSource(0, "fn main() -> u32 { return 2u; }")
	var res backend.Result
	for res.Output != "fn main() -> u32 { return 2u; }" {
		res = nextResult(t, events)
	}
	if !res.OK {
		t.Fatalf("res = %+v", res)
	}
	if v := s.View(); v.Output != res.Output || v.Message != "" {
		t.Fatalf("view = %+v", v)
	}
}

func TestCompile_Failures(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	events, cancel := s.Subscribe()
	defer cancel()

	s.SetFileSource(0, "crash")
	res := nextResult(t, events)
	if res.OK || res.Message == "" || len(res.Diagnostics) != 0 {
		t.Fatalf("plain error: %+v", res)
	}

	s.SetFileSource(0, "broken")
	res = nextResult(t, events)
	if res.OK || len(res.Diagnostics) != 1 {
		t.Fatalf("structured error: %+v", res)
	}
	if d := s.Diagnostics("main"); len(d) != 1 || d[0].Title != "here" {
		t.Fatalf("diagnostics for main = %+v", d)
	}
	if msg := s.View().Message; !strings.Contains(msg, "array&lt;f32&gt;") {
		t.Fatalf("message not escaped: %q", msg)
	}
}

func TestSetAutorun_Unchanged(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	events, cancel := s.Subscribe()
	defer cancel()

	s.SetAutorun(true)
	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventResult {
				t.Fatalf("re-enabling autorun compiled: %+v", ev.Result)
			}
		case <-timeout:
			return
		}
	}
}

func TestRun_Manual(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	s.SetAutorun(false)
	events, cancel := s.Subscribe()
	defer cancel()

	s.SetFileSource(0, "fn a() {}")
	s.Run()
	if res := nextResult(t, events); res.Output != "fn a() {}" {
		t.Fatalf("res = %+v", res)
	}
}

func TestBackend_NotConfigured(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	events, cancel := s.Subscribe()
	defer cancel()
	if err := s.SetBackend(schema.BackendJs); err != nil {
		t.Fatal(err)
	}
	if res := nextResult(t, events); res.OK || !strings.Contains(res.Message, "not available") {
		t.Fatalf("res = %+v", res)
	}
}

func TestShareAndLoad(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, "a", nil)
	a.SetFileSource(1, "fn my_fn() -> u32 { return 7; }")
	a.PatchOptions(schema.Patch{"strip": true})

	handle, link, err := a.Share(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if link != "https://play.example/s/"+handle {
		t.Fatalf("link = %q", link)
	}
	if v := a.View(); v.Shared != handle || !strings.Contains(v.Message, link) {
		t.Fatalf("view after share = %+v", v)
	}

	b := e.open(t, "b", nil)
	if err := b.Navigate(context.Background(), "/s/"+handle, nil, false); err != nil {
		t.Fatal(err)
	}
	va, vb := a.View(), b.View()
	if diff := cmp.Diff(va.Files, vb.Files); diff != "" {
		t.Fatal(diff)
	}
	if !vb.Options.Strip || vb.Shared != handle {
		t.Fatalf("loaded view = %+v", vb)
	}

	b.SetTab(1)
	if b.View().Shared == "" {
		t.Fatal("tab change cleared shared marker")
	}
	b.SetFileSource(0, "edited")
	if b.View().Shared != "" {
		t.Fatal("edit kept shared marker")
	}
	if ok, err := b.Back(context.Background()); !ok || err != nil {
		t.Fatalf("back: %v %v", ok, err)
	}
	if b.View().Shared != handle {
		t.Fatal("back did not restore the shared entry")
	}
}

func TestLoad_Missing(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	if err := s.Load(context.Background(), "abcdef"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReset(t *testing.T) {
	s := newEnv(t).open(t, "s1", nil)
	s.NewFile()
	s.Reset()
	v := s.View()
	if len(v.Files) != 2 || v.Tab != 0 || v.Message != DefaultMessage {
		t.Fatalf("view = %+v", v)
	}
}

func TestManager_Reopen(t *testing.T) {
	e := newEnv(t)
	m := NewManager(context.Background(), e.kv, e.deps)
	defer m.CloseAll()

	s, err := m.Create(url.Values{"generics": {"true"}})
	if err != nil {
		t.Fatal(err)
	}
	id := s.ID()
	s.SetFileSource(0, "persisted")
	m.Close(id)
	if m.Len() != 0 {
		t.Fatal("session still open")
	}

	again, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	v := again.View()
	if v.Files[0].Source != "persisted" || !v.Options.Generics {
		t.Fatalf("reopened view = %+v", v)
	}
	if _, err := m.Get("../etc"); err == nil {
		t.Fatal("bad id accepted")
	}
}

func TestManager_UnknownID(t *testing.T) {
	e := newEnv(t)
	m := NewManager(context.Background(), e.kv, e.deps)
	defer m.CloseAll()

	for i := range 5 {
		if _, err := m.Get(fmt.Sprintf("made-up-%d", i)); !errors.Is(err, ErrUnknownSession) {
			t.Fatalf("err = %v", err)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("open sessions = %d", m.Len())
	}
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	e := newEnv(t)
	n := 0
	m := NewManager(context.Background(), e.kv, e.deps,
		WithMaxOpen(2),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }))
	defer m.CloseAll()

	s1, _ := m.Create(nil)
	m.Create(nil)
	s1.SetFileSource(0, "kept in store")
	if _, err := m.Get("s1"); err != nil { // s2 is now the least recently used
		t.Fatal(err)
	}
	if _, err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("open sessions = %d, want 2", m.Len())
	}

	again, err := m.Get("s1")
	if err != nil || again != s1 {
		t.Fatal("recently used session was evicted")
	}
	reopened, err := m.Get("s2")
	if err != nil {
		t.Fatalf("evicted session not reopened: %v", err)
	}
	if reopened.View().ID != "s2" || m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
	if s1.View().Files[0].Source != "kept in store" {
		t.Fatal("state lost")
	}
}

func TestTextMessage(t *testing.T) {
	if got := textMessage("a<b>\n"); got != "<pre>a&lt;b&gt;</pre>" {
		t.Fatalf("got %q", got)
	}
	if got := sanitize(`<a href="javascript:alert(1)">x</a><script>1</script>`); strings.Contains(got, "javascript") || strings.Contains(got, "script") {
		t.Fatalf("got %q", got)
	}
}

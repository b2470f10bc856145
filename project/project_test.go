package project

import (
	"context"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/dbopen"
	"github.com/hazyhaar/weslplay/localstore"
	"github.com/hazyhaar/weslplay/schema"
)

func newKV(t *testing.T) localstore.KV {
	t.Helper()
	kv, err := localstore.NewSQLite(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return kv
}

func openStore(t *testing.T, kv localstore.KV, version string) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(context.Background(), kv, "session", version)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNew_Defaults(t *testing.T) {
	st := New(nil, WithStore(openStore(t, newKV(t), "3")))
	defer st.Close()

	if diff := cmp.Diff(DefaultFiles(), st.Files()); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultOptions(), st.Options()); diff != "" {
		t.Fatalf("options (-want +got):\n%s", diff)
	}
	if st.Backend() != DefaultBackend || st.Tab() != 0 || !st.Autorun() {
		t.Fatalf("backend=%s tab=%d autorun=%v", st.Backend(), st.Tab(), st.Autorun())
	}
}

func TestNew_URLParamOverridesStored(t *testing.T) {
	kv := newKV(t)
	first := New(nil, WithStore(openStore(t, kv, "3")))
	o := first.Options()
	o.Imports = true
	o.Strip = true
	first.SetOptions(o)
	first.Close()

	params := url.Values{"imports": {"false"}, "generics": {"not json"}}
	st := New(params, WithStore(openStore(t, kv, "3")))
	defer st.Close()

	got := st.Options()
	if got.Imports {
		t.Fatal("url parameter imports=false did not override stored value")
	}
	if !got.Strip {
		t.Fatal("stored strip=true lost")
	}
	if got.Generics {
		t.Fatal("invalid url parameter applied")
	}
}

func TestNew_BackendParam(t *testing.T) {
	st := New(url.Values{"linker": {"wesl-js"}, "mangler": {`"hash"`}})
	if st.Backend() != schema.BackendJs {
		t.Fatalf("backend = %s", st.Backend())
	}
	if m := st.Options().Mangler; !backend.ValidMangler(schema.BackendJs, m) {
		t.Fatalf("mangler %s invalid for wesl-js", m)
	}

	st = New(url.Values{"backend": {"gcc"}})
	if st.Backend() != DefaultBackend {
		t.Fatalf("invalid backend param accepted: %s", st.Backend())
	}
}

func TestNew_StorageMigration(t *testing.T) {
	kv := newKV(t)
	old := New(nil, WithStore(openStore(t, kv, "2")))
	old.SetFiles(schema.Files{{Name: "kept", Source: "x"}})
	old.SetBackend(schema.BackendJs)
	old.Close()

	st := New(nil, WithStore(openStore(t, kv, "3")))
	if diff := cmp.Diff(DefaultFiles(), st.Files()); diff != "" {
		t.Fatalf("stale files survived version bump:\n%s", diff)
	}
	if st.Backend() != DefaultBackend {
		t.Fatal("stale backend survived version bump")
	}
}

func TestAutosave(t *testing.T) {
	kv := newKV(t)
	st := New(nil, WithStore(openStore(t, kv, "3")))
	st.SetSource("edited")
	st.SetBackend(schema.BackendJs)
	st.Close()

	again := New(nil, WithStore(openStore(t, kv, "3")))
	if again.Files()[0].Source != "edited" || again.Backend() != schema.BackendJs {
		t.Fatalf("autosave lost: %+v %s", again.Files(), again.Backend())
	}
}

func TestSelfHeal(t *testing.T) {
	kv := newKV(t)
	st := New(nil, WithStore(openStore(t, kv, "3")))

	var seen []int
	st.Observe(func() { seen = append(seen, len(st.Files())) }, FieldFiles)

	for range len(st.Files()) {
		if err := st.DeleteFile(0); err != nil {
			t.Fatal(err)
		}
	}
	files := st.Files()
	if len(files) != 1 || files[0] != HealFile() {
		t.Fatalf("files = %+v", files)
	}
	for _, n := range seen {
		if n == 0 {
			t.Fatal("observer saw an empty project")
		}
	}
	st.SetFiles(nil)
	if len(st.Files()) != 1 {
		t.Fatal("SetFiles(nil) left project empty")
	}
	st.Close()

	again := New(nil, WithStore(openStore(t, kv, "3")))
	if len(again.Files()) != 1 {
		t.Fatalf("persisted files = %+v", again.Files())
	}
}

func TestSetFiles_DuplicateNames(t *testing.T) {
	st := New(nil, WithStore(openStore(t, newKV(t), "3")))
	defer st.Close()

	st.SetFiles(schema.Files{
		{Name: "a", Source: "1"},
		{Name: "a", Source: "2"},
		{Name: "b", Source: "3"},
		{Name: "a", Source: "4"},
	})
	want := []string{"a", "a2", "b", "a3"}
	if diff := cmp.Diff(want, st.Files().Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestSetBackend_Mangler(t *testing.T) {
	st := New(nil)
	o := st.Options()
	o.Mangler = schema.ManglerHash
	st.SetOptions(o)

	for _, b := range []schema.Backend{schema.BackendJs, schema.BackendRs, schema.BackendJs} {
		if err := st.SetBackend(b); err != nil {
			t.Fatal(err)
		}
		if m := st.Options().Mangler; !backend.ValidMangler(b, m) {
			t.Fatalf("mangler %s invalid for %s", m, b)
		}
	}
	if err := st.SetBackend("tcc"); err == nil {
		t.Fatal("unknown backend accepted")
	}

	o = st.Options()
	o.Mangler = schema.ManglerHash
	st.SetOptions(o)
	if st.Options().Mangler != schema.ManglerEscape {
		t.Fatal("SetOptions accepted hash for wesl-js")
	}
}

func TestSetBackend_ObserversSeeValidMangler(t *testing.T) {
	st := New(nil)
	o := st.Options()
	o.Mangler = schema.ManglerHash
	st.SetOptions(o)

	calls := 0
	st.Observe(func() {
		calls++
		if b, m := st.Backend(), st.Options().Mangler; !backend.ValidMangler(b, m) {
			t.Errorf("observer saw mangler %s with backend %s", m, b)
		}
	}, FieldBackend, FieldOptions)

	if err := st.SetBackend(schema.BackendJs); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("observer calls = %d, want 2", calls)
	}
}

func TestTabOps(t *testing.T) {
	st := New(nil)
	i := st.NewFile()
	if i != 2 || st.Tab() != 2 || st.Files()[2].Name != "tab3" {
		t.Fatalf("NewFile: i=%d tab=%d files=%v", i, st.Tab(), st.Files().Names())
	}
	st.SetSource("fn x() {}")
	if st.Source() != "fn x() {}" {
		t.Fatal("SetSource")
	}

	name, err := st.RenameFile(2, "util")
	if err != nil {
		t.Fatal(err)
	}
	if name != "util2" {
		t.Fatalf("rename clash = %q", name)
	}
	if _, err := st.RenameFile(0, ""); err == nil {
		t.Fatal("empty name accepted")
	}

	if err := st.DeleteFile(2); err != nil {
		t.Fatal(err)
	}
	if st.Tab() != 1 {
		t.Fatalf("tab not clamped: %d", st.Tab())
	}
	if err := st.SetTab(5); err == nil {
		t.Fatal("out of range tab accepted")
	}
	if err := st.DeleteFile(9); err == nil {
		t.Fatal("out of range delete accepted")
	}
}

func TestReset(t *testing.T) {
	st := New(nil)
	st.NewFile()
	o := st.Options()
	o.Strip = true
	st.SetOptions(o)
	st.Reset()
	if diff := cmp.Diff(DefaultFiles(), st.Files()); diff != "" {
		t.Fatal(diff)
	}
	if st.Options().Strip || st.Tab() != 0 {
		t.Fatal("reset incomplete")
	}
}

func TestSnapshotLoad(t *testing.T) {
	st := New(nil)
	snap := schema.Snapshot{
		Files:   schema.Files{{Name: "only", Source: "s"}},
		Backend: schema.BackendJs,
		Options: DefaultOptions(),
	}
	snap.Options.Root = "only"
	st.Load(snap)
	if diff := cmp.Diff(snap, st.Snapshot()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestOnceChanged(t *testing.T) {
	st := New(nil)
	n := 0
	st.OnceChanged(func() { n++ }, Tracked...)
	st.SetTab(1)
	if n != 0 {
		t.Fatal("tab change counted as tracked")
	}
	st.SetSource("a")
	st.SetBackend(schema.BackendJs)
	if n != 1 {
		t.Fatalf("calls = %d", n)
	}
}

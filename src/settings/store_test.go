package settings

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	dir, err := ioutil.TempDir("", "samcore")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := NewStore(filepath.Join(dir, DefaultFileName), true)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return store
}

func TestNewStoreMissingFile(t *testing.T) {
	store := testStore(t)

	doc, ok := store.Get()
	if !ok {
		t.Fatalf("Get() with no path should always succeed")
	}
	if len(doc.(map[string]interface{})) != 0 {
		t.Fatalf("fresh store should be empty, got %v", doc)
	}
}

func TestNewStoreCorruptFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "samcore")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, DefaultFileName)
	if err := ioutil.WriteFile(path, []byte("{not json"), 0755); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := NewStore(path, true); err == nil {
		t.Fatalf("NewStore should refuse a corrupt settings file")
	}
}

func TestSetGet(t *testing.T) {
	store := testStore(t)

	if err := store.Set("dark", "packages.alice.settings.theme"); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Dotted and segmented paths address the same value.
	v, ok := store.Get("packages.alice.settings.theme")
	if !ok || v != "dark" {
		t.Fatalf("dotted path should return dark, got %v (%v)", v, ok)
	}

	v, ok = store.Get("packages", "alice", "settings", "theme")
	if !ok || v != "dark" {
		t.Fatalf("segmented path should return dark, got %v (%v)", v, ok)
	}

	if _, ok := store.Get("packages.alice.missing"); ok {
		t.Fatalf("absent path should report not-ok")
	}

	if _, ok := store.Get("packages.alice.settings.theme.deeper"); ok {
		t.Fatalf("path through a leaf should report not-ok")
	}
}

func TestAutosave(t *testing.T) {
	store := testStore(t)

	if err := store.Set("sam", "username"); err != nil {
		t.Fatalf("err: %v", err)
	}

	// A second store opened on the same file sees the committed write.
	reopened, err := NewStore(store.Path(), true)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	v, ok := reopened.Get("username")
	if !ok || v != "sam" {
		t.Fatalf("reopened store should contain username=sam, got %v (%v)", v, ok)
	}
}

func TestSaveFormat(t *testing.T) {
	store := testStore(t)

	if err := store.Set(DefaultPackage(), "packages.samcore"); err != nil {
		t.Fatalf("err: %v", err)
	}

	buf, err := ioutil.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// 2-space indent, human editable.
	expected, _ := json.MarshalIndent(store.ToObject(), "", "  ")
	if string(buf) != string(expected) {
		t.Fatalf("settings file should be indented JSON:\n%s", buf)
	}
}

func TestUnset(t *testing.T) {
	store := testStore(t)

	if err := store.Set(true, "packages.alice.enabled"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Unset("packages.alice.enabled"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, ok := store.Get("packages.alice.enabled"); ok {
		t.Fatalf("Unset should remove the value")
	}

	// Unsetting an absent path is a no-op.
	if err := store.Unset("no.such.path"); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestAppendPop(t *testing.T) {
	store := testStore(t)

	if err := store.Append("x", "history"); err == nil {
		t.Fatalf("Append to an absent path should generate an error")
	}

	if err := store.Set([]interface{}{}, "history"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Append("a", "history"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Append("b", "history"); err != nil {
		t.Fatalf("err: %v", err)
	}

	v, ok := store.Get("history")
	if !ok || !reflect.DeepEqual(v, []interface{}{"a", "b"}) {
		t.Fatalf("history should be [a b], got %v", v)
	}

	popped, err := store.Pop("history")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if popped != "b" {
		t.Fatalf("Pop should return b, not %v", popped)
	}

	if err := store.Set("scalar", "username"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Append("x", "username"); err == nil {
		t.Fatalf("Append to a non-sequence should generate an error")
	}
	if _, err := store.Pop("username"); err == nil {
		t.Fatalf("Pop from a non-sequence should generate an error")
	}
}

func TestEmpty(t *testing.T) {
	store := testStore(t)

	if err := store.Set("v", "a.b"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Empty(); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, ok := store.Get("a"); ok {
		t.Fatalf("Empty should discard the document")
	}
}

func TestToObjectIsACopy(t *testing.T) {
	store := testStore(t)

	if err := store.Set("dark", "packages.alice.settings.theme"); err != nil {
		t.Fatalf("err: %v", err)
	}

	obj := store.ToObject()
	obj["packages"].(map[string]interface{})["alice"] = "clobbered"

	v, ok := store.Get("packages.alice.settings.theme")
	if !ok || v != "dark" {
		t.Fatalf("mutating ToObject result should not affect the store")
	}
}

func TestDefaultPackage(t *testing.T) {
	pkg := DefaultPackage()

	expected := map[string]interface{}{
		"version":     "1.0.0",
		"development": false,
		"installed":   false,
		"enabled":     true,
		"persistent":  false,
		"mandatory":   false,
		"link":        "",
		"settings":    map[string]interface{}{},
	}

	if !reflect.DeepEqual(pkg, expected) {
		t.Fatalf("DefaultPackage should be %v, not %v", expected, pkg)
	}
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"internwatch/internal/domain"
)

var sample = []domain.Listing{
	{Company: "Acme Corp", Role: "SWE Intern", Link: "https://acme.example/jobs/1"},
	{Company: "Acme Corp", Role: "Data Intern", Link: "https://acme.example/jobs/2"},
	{Company: "Beta", Role: "", Link: "https://beta.example"},
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	f, err := Open(DriverFile, dir, "files")
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	s, err := Open(DriverSQLite, dir, "")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = f.Close()
		_ = s.Close()
	})
	return map[string]Store{"file": f, "sqlite": s}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range backends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load on empty store: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("empty store Load = %#v, want empty non-nil slice", got)
			}

			if err := st.Save(ctx, sample); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, sample) {
				t.Fatalf("Load = %+v, want %+v", got, sample)
			}

			// Save replaces, it does not append.
			if err := st.Save(ctx, sample[:1]); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, _ = st.Load(ctx)
			if !reflect.DeepEqual(got, sample[:1]) {
				t.Fatalf("after replace Load = %+v", got)
			}

			if err := st.Save(ctx, nil); err != nil {
				t.Fatalf("Save(nil): %v", err)
			}
			got, _ = st.Load(ctx)
			if len(got) != 0 {
				t.Fatalf("after Save(nil) Load = %+v", got)
			}
		})
	}
}

func TestStoreETag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range backends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			etag, err := st.LoadETag(ctx)
			if err != nil || etag != "" {
				t.Fatalf("LoadETag on empty store = %q, %v", etag, err)
			}
			for _, want := range []string{`W/"abc"`, `"def"`} {
				if err := st.SaveETag(ctx, want); err != nil {
					t.Fatalf("SaveETag: %v", err)
				}
				if got, _ := st.LoadETag(ctx); got != want {
					t.Fatalf("LoadETag = %q, want %q", got, want)
				}
			}
		})
	}
}

func TestFileFormat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Save(ctx, sample[:1]); err != nil {
		t.Fatal(err)
	}
	if err := f.Save(ctx, sample); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(dir, SnapshotFileName))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"company"`, `"role"`, `"link"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("snapshot missing %s: %s", key, b)
		}
	}

	bak, err := os.ReadFile(filepath.Join(dir, SnapshotFileName+".bak"))
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	if strings.Contains(string(bak), "Data Intern") {
		t.Fatal("backup should hold the previous snapshot")
	}
}

// Not parallel: swaps renameFile.
func TestFileSaveFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Save(ctx, sample); err != nil {
		t.Fatal(err)
	}

	renameFile = func(string, string) error { return errors.New("disk full") }
	defer func() { renameFile = os.Rename }()

	if err := f.Save(ctx, sample[:1]); err == nil {
		t.Fatal("expected Save to fail")
	}

	got, err := f.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, sample) {
		t.Fatalf("snapshot after failed save = %+v, want the previous one", got)
	}
	if _, err := os.Stat(filepath.Join(dir, SnapshotFileName+".tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileLoadHandwritten(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// field order and whitespace are not significant
	raw := `[{"link":"https://a.example","role":"Intern","company":"A"}]`
	if err := os.WriteFile(filepath.Join(dir, SnapshotFileName), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewFile(dir)
	got, err := f.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Listing{{Company: "A", Role: "Intern", Link: "https://a.example"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestFileLoadCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, SnapshotFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewFile(dir)
	if _, err := f.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open("postgres", t.TempDir(), ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

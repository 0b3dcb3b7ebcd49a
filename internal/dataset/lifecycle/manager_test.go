package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sitekit/search-assistant/internal/content"
	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/pkg/config"
	apperrors "github.com/sitekit/search-assistant/pkg/errors"
	"github.com/sitekit/search-assistant/pkg/kvstore"
)

type fakeExtractor struct {
	docs []content.RawDocument
	err  error
}

func (f *fakeExtractor) Extract(context.Context, config.ExclusionConfig) ([]content.RawDocument, error) {
	return f.docs, f.err
}

type fakeSigner struct {
	sig string
	err error
}

func (f *fakeSigner) Compute(context.Context, config.ExclusionConfig) (string, error) {
	return f.sig, f.err
}

type captureEvents struct {
	events []Event
}

func (c *captureEvents) LifecycleChanged(_ context.Context, ev Event) {
	c.events = append(c.events, ev)
}

func sampleRaw() []content.RawDocument {
	return []content.RawDocument{
		{ID: 1, Title: "First", URL: "/first", Date: time.Now().UTC(), Type: snapshot.TypePost, Body: "<p>first body</p>"},
		{ID: 2, Title: "Second", URL: "/second", Date: time.Now().UTC(), Type: snapshot.TypePage, Body: "second body"},
	}
}

type fixture struct {
	manager   *Manager
	store     kvstore.Store
	extractor *fakeExtractor
	signer    *fakeSigner
	events    *captureEvents
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     kvstore.NewMemoryStore(),
		extractor: &fakeExtractor{docs: sampleRaw()},
		signer:    &fakeSigner{sig: "sig-1"},
		events:    &captureEvents{},
		dir:       t.TempDir(),
	}
	f.manager = New(
		config.DatasetConfig{Dir: f.dir, ExcerptMaxLen: 100},
		Deps{Store: f.store, Extractor: f.extractor, Signer: f.signer, Publisher: f.events},
	)
	return f
}

// datasetFiles returns the dataset file names in the snapshot directory.
func (f *fixture) datasetFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, "dataset-*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names
}

func (f *fixture) storedFile(t *testing.T) string {
	t.Helper()
	name, err := f.store.Get(context.Background(), "dataset.file")
	if err != nil {
		t.Fatalf("reading stored filename: %v", err)
	}
	return name
}

func TestTickFirstRunRebuilds(t *testing.T) {
	f := newFixture(t)

	res, err := f.manager.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Action != ActionRebuilt {
		t.Errorf("action = %q, want %q", res.Action, ActionRebuilt)
	}
	if res.Docs != 2 {
		t.Errorf("docs = %d, want 2", res.Docs)
	}

	files := f.datasetFiles(t)
	if len(files) != 1 {
		t.Fatalf("dataset files = %v, want exactly one", files)
	}
	if !strings.HasPrefix(files[0], "dataset-") || len(files[0]) != len("dataset-")+32+len(".json") {
		t.Errorf("unexpected filename %q", files[0])
	}
	if got := f.storedFile(t); got != files[0] {
		t.Errorf("stored filename %q does not match on-disk %q", got, files[0])
	}

	if _, err := os.Stat(filepath.Join(f.dir, "index.html")); err != nil {
		t.Errorf("sentinel file missing: %v", err)
	}

	st, err := os.Stat(filepath.Join(f.dir, files[0]))
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("snapshot mode = %v, want 0600", st.Mode().Perm())
	}

	snap, err := snapshot.Load(filepath.Join(f.dir, files[0]))
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	if snap.Count != 2 {
		t.Errorf("snapshot count = %d, want 2", snap.Count)
	}
	if snap.Docs[0].Text != "first body" {
		t.Errorf("markup not stripped: %q", snap.Docs[0].Text)
	}
}

func TestTickUnchangedSignatureRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	first := f.storedFile(t)
	before, err := os.ReadFile(filepath.Join(f.dir, first))
	if err != nil {
		t.Fatalf("reading first snapshot: %v", err)
	}

	res, err := f.manager.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if res.Action != ActionRotated {
		t.Errorf("action = %q, want %q", res.Action, ActionRotated)
	}

	second := f.storedFile(t)
	if second == first {
		t.Error("filename did not rotate")
	}
	files := f.datasetFiles(t)
	if len(files) != 1 || files[0] != second {
		t.Errorf("dataset files = %v, want only %q", files, second)
	}

	after, err := os.ReadFile(filepath.Join(f.dir, second))
	if err != nil {
		t.Fatalf("reading rotated snapshot: %v", err)
	}
	if string(after) != string(before) {
		t.Error("rotation changed snapshot bytes")
	}
}

func TestTickChangedSignatureRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	first := f.storedFile(t)

	f.signer.sig = "sig-2"
	f.extractor.docs = sampleRaw()[:1]

	res, err := f.manager.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if res.Action != ActionRebuilt {
		t.Errorf("action = %q, want %q", res.Action, ActionRebuilt)
	}
	if res.Docs != 1 {
		t.Errorf("docs = %d, want 1", res.Docs)
	}
	if f.storedFile(t) == first {
		t.Error("filename did not change on rebuild")
	}
	if files := f.datasetFiles(t); len(files) != 1 {
		t.Errorf("dataset files = %v, want exactly one", files)
	}
}

func TestTickMissingFileRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if err := os.Remove(filepath.Join(f.dir, f.storedFile(t))); err != nil {
		t.Fatalf("removing snapshot: %v", err)
	}

	// Signature unchanged, but the rotation source is gone: the tick must
	// degrade to a full rebuild instead of failing.
	res, err := f.manager.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick after file loss: %v", err)
	}
	if res.Action != ActionRebuilt {
		t.Errorf("action = %q, want %q", res.Action, ActionRebuilt)
	}
	if files := f.datasetFiles(t); len(files) != 1 {
		t.Errorf("dataset files = %v, want exactly one", files)
	}
}

func TestTickExtractFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	file := f.storedFile(t)

	f.signer.sig = "sig-2"
	f.extractor.err = errors.New("database gone")

	if _, err := f.manager.Tick(ctx); err == nil {
		t.Fatal("Tick succeeded despite extract failure")
	}
	if got := f.storedFile(t); got != file {
		t.Errorf("stored filename changed to %q after failed tick", got)
	}
	if _, err := os.Stat(filepath.Join(f.dir, file)); err != nil {
		t.Errorf("previous snapshot no longer readable: %v", err)
	}
}

func TestTickSignerFailure(t *testing.T) {
	f := newFixture(t)
	f.signer.err = errors.New("stats query failed")

	if _, err := f.manager.Tick(context.Background()); err == nil {
		t.Fatal("Tick succeeded despite signer failure")
	}
	if files := f.datasetFiles(t); len(files) != 0 {
		t.Errorf("dataset files created despite failure: %v", files)
	}
}

func TestRebuildKeepsFilename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	file := f.storedFile(t)

	f.extractor.docs = sampleRaw()[:1]
	f.signer.sig = "sig-2"

	info, err := f.manager.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if info.File != file {
		t.Errorf("manual rebuild rotated filename: %q → %q", file, info.File)
	}
	if info.Count != 1 {
		t.Errorf("info count = %d, want 1", info.Count)
	}

	// The refreshed signature must suppress a rebuild on the next tick.
	res, err := f.manager.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick after Rebuild: %v", err)
	}
	if res.Action != ActionRotated {
		t.Errorf("action after manual rebuild = %q, want %q", res.Action, ActionRotated)
	}
}

func TestRebuildWithoutPriorSnapshot(t *testing.T) {
	f := newFixture(t)

	info, err := f.manager.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if info.File == "" || info.Count != 2 {
		t.Errorf("info = %+v, want generated filename and 2 docs", info)
	}
}

func TestPurgeKeepsSentinelAndForeignFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	stale := filepath.Join(f.dir, "dataset-00000000000000000000000000000000.json")
	if err := os.WriteFile(stale, []byte("{}"), 0o600); err != nil {
		t.Fatalf("writing stale file: %v", err)
	}
	foreign := filepath.Join(f.dir, "README.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o600); err != nil {
		t.Fatalf("writing foreign file: %v", err)
	}

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if files := f.datasetFiles(t); len(files) != 1 {
		t.Errorf("stale dataset file survived purge: %v", files)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "index.html")); err != nil {
		t.Errorf("sentinel removed by purge: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("non-dataset file removed by purge: %v", err)
	}
}

func TestCurrentPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.manager.CurrentPath(ctx)
	if err != nil {
		t.Fatalf("CurrentPath: %v", err)
	}
	if path != "" {
		t.Errorf("CurrentPath before build = %q, want empty", path)
	}

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	path, err = f.manager.CurrentPath(ctx)
	if err != nil {
		t.Fatalf("CurrentPath: %v", err)
	}
	if filepath.Dir(path) != f.dir || filepath.Base(path) != f.storedFile(t) {
		t.Errorf("CurrentPath = %q, want stored file in %q", path, f.dir)
	}
}

func TestInfoBeforeBuild(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Info(context.Background()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Info error = %v, want ErrNotFound", err)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if _, err := f.manager.Tick(ctx); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	if len(f.events.events) != 2 {
		t.Fatalf("published %d events, want 2", len(f.events.events))
	}
	if f.events.events[0].Action != ActionRebuilt || f.events.events[1].Action != ActionRotated {
		t.Errorf("event actions = %q, %q; want rebuilt, rotated",
			f.events.events[0].Action, f.events.events[1].Action)
	}
	if f.events.events[0].Docs != 2 {
		t.Errorf("rebuild event docs = %d, want 2", f.events.events[0].Docs)
	}
}

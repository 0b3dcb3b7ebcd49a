// Package lifecycle manages the searchable snapshot on disk: it decides once
// per scheduler tick whether the snapshot must be rebuilt from source content
// or merely rotated to a fresh filename, purges superseded files, and exposes
// the current snapshot path to the serving layer.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sitekit/search-assistant/internal/content"
	"github.com/sitekit/search-assistant/internal/dataset/clean"
	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/pkg/config"
	apperrors "github.com/sitekit/search-assistant/pkg/errors"
	"github.com/sitekit/search-assistant/pkg/kvstore"
	"github.com/sitekit/search-assistant/pkg/metrics"
)

// Settings keys for the persisted lifecycle state.
const (
	keyFile      = "dataset.file"
	keySignature = "dataset.signature"
)

// Lifecycle transition actions.
const (
	ActionRebuilt = "rebuilt"
	ActionRotated = "rotated"
)

const (
	filePrefix   = "dataset-"
	fileSuffix   = ".json"
	sentinelFile = "index.html"
)

// Extractor supplies the raw documents for a rebuild.
type Extractor interface {
	Extract(ctx context.Context, excl config.ExclusionConfig) ([]content.RawDocument, error)
}

// Signer computes the content-change fingerprint.
type Signer interface {
	Compute(ctx context.Context, excl config.ExclusionConfig) (string, error)
}

// Publisher receives lifecycle events. Publishing is best-effort and never
// fails a transition.
type Publisher interface {
	LifecycleChanged(ctx context.Context, ev Event)
}

// Event describes a completed lifecycle transition.
type Event struct {
	Action    string        `json:"action"`
	Docs      int           `json:"docs"`
	Bytes     int64         `json:"bytes"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// Result reports what a tick transition did.
type Result struct {
	Action string
	Docs   int
	Bytes  int64
}

// Info describes the current snapshot for the admin API.
type Info struct {
	File    string    `json:"file"`
	Count   int       `json:"count"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Deps bundles the manager's collaborators. Publisher and Metrics may be nil.
type Deps struct {
	Store     kvstore.Store
	Extractor Extractor
	Signer    Signer
	Publisher Publisher
	Metrics   *metrics.Metrics
}

// Manager is the single writer over the snapshot directory and the persisted
// filename/signature state. All transitions serialise on an internal mutex:
// at most one rebuild or rotation is in flight, and the purge step never runs
// concurrently with a write.
type Manager struct {
	mu     sync.Mutex
	cfg    config.DatasetConfig
	deps   Deps
	logger *slog.Logger
}

// New creates a Manager. The snapshot directory is created lazily on the
// first transition.
func New(cfg config.DatasetConfig, deps Deps) *Manager {
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "dataset-lifecycle"),
	}
}

// Tick runs the scheduled transition: recompute the signature and either
// rebuild under a fresh filename (content changed or no snapshot yet) or
// rotate the existing bytes to a fresh filename. Superseded files are purged
// in both cases. On failure the previously committed state stays valid and
// the next tick retries.
func (m *Manager) Tick(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	sig, err := m.deps.Signer.Compute(ctx, m.cfg.Exclusions)
	if err != nil {
		m.countBuild("failed")
		return nil, fmt.Errorf("computing content signature: %w", err)
	}

	storedSig, err := m.deps.Store.Get(ctx, keySignature)
	if err != nil {
		m.countBuild("failed")
		return nil, fmt.Errorf("%w: reading stored signature: %v", apperrors.ErrStorage, err)
	}
	currentFile, err := m.deps.Store.Get(ctx, keyFile)
	if err != nil {
		m.countBuild("failed")
		return nil, fmt.Errorf("%w: reading stored filename: %v", apperrors.ErrStorage, err)
	}

	var res *Result
	if sig != storedSig || currentFile == "" {
		res, err = m.rebuildRotate(ctx, sig)
	} else {
		res, err = m.rotateOnly(ctx, currentFile, sig)
	}
	if err != nil {
		m.countBuild("failed")
		return nil, err
	}

	elapsed := time.Since(start)
	m.logger.Info("lifecycle tick completed",
		"action", res.Action,
		"docs", res.Docs,
		"bytes", res.Bytes,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	m.observe(res, elapsed)
	m.publish(ctx, res, elapsed)
	return res, nil
}

// Rebuild is the operator-triggered transition: always a full rebuild, kept
// under the existing filename so already-open client sessions stay valid,
// followed by a signature refresh.
func (m *Manager) Rebuild(ctx context.Context) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	name, err := m.deps.Store.Get(ctx, keyFile)
	if err != nil {
		m.countBuild("failed")
		return nil, fmt.Errorf("%w: reading stored filename: %v", apperrors.ErrStorage, err)
	}
	if name == "" {
		name, err = newFilename()
		if err != nil {
			m.countBuild("failed")
			return nil, err
		}
		if err := m.deps.Store.Set(ctx, keyFile, name); err != nil {
			m.countBuild("failed")
			return nil, fmt.Errorf("%w: storing filename: %v", apperrors.ErrStorage, err)
		}
	}

	res, err := m.writeFreshSnapshot(ctx, name)
	if err != nil {
		m.countBuild("failed")
		return nil, err
	}
	m.purge(name)

	sig, err := m.deps.Signer.Compute(ctx, m.cfg.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("computing content signature after rebuild: %w", err)
	}
	if err := m.deps.Store.Set(ctx, keySignature, sig); err != nil {
		return nil, fmt.Errorf("%w: storing signature: %v", apperrors.ErrStorage, err)
	}

	elapsed := time.Since(start)
	m.logger.Info("manual rebuild completed",
		"docs", res.Docs,
		"bytes", res.Bytes,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	m.observe(res, elapsed)
	m.publish(ctx, res, elapsed)
	return m.infoLocked(ctx)
}

// CurrentPath returns the absolute path of the current snapshot file, or ""
// when no snapshot has been built yet.
func (m *Manager) CurrentPath(ctx context.Context) (string, error) {
	name, err := m.deps.Store.Get(ctx, keyFile)
	if err != nil {
		return "", fmt.Errorf("%w: reading stored filename: %v", apperrors.ErrStorage, err)
	}
	if name == "" {
		return "", nil
	}
	return filepath.Join(m.cfg.Dir, name), nil
}

// Info returns count/size/mtime of the current snapshot.
func (m *Manager) Info(ctx context.Context) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked(ctx)
}

func (m *Manager) infoLocked(ctx context.Context) (*Info, error) {
	name, err := m.deps.Store.Get(ctx, keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stored filename: %v", apperrors.ErrStorage, err)
	}
	if name == "" {
		return nil, apperrors.ErrNotFound
	}
	path := filepath.Join(m.cfg.Dir, name)
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: stat %s: %v", apperrors.ErrStorage, name, err)
	}
	snap, err := snapshot.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot: %v", apperrors.ErrStorage, err)
	}
	return &Info{
		File:    name,
		Count:   snap.Count,
		Size:    st.Size(),
		ModTime: st.ModTime().UTC(),
	}, nil
}

// rebuildRotate extracts fresh content, writes it under a new random
// filename, commits filename then signature, and purges everything else.
func (m *Manager) rebuildRotate(ctx context.Context, sig string) (*Result, error) {
	name, err := newFilename()
	if err != nil {
		return nil, err
	}
	res, err := m.writeFreshSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Store.Set(ctx, keyFile, name); err != nil {
		return nil, fmt.Errorf("%w: storing filename: %v", apperrors.ErrStorage, err)
	}
	if err := m.deps.Store.Set(ctx, keySignature, sig); err != nil {
		return nil, fmt.Errorf("%w: storing signature: %v", apperrors.ErrStorage, err)
	}
	m.purge(name)
	return res, nil
}

// rotateOnly copies the current snapshot's bytes under a new random filename
// and purges the old one. Content is unchanged; only the external identifier
// rotates, which bounds the useful lifetime of a leaked or cached URL. A
// missing current file degrades to a full rebuild.
func (m *Manager) rotateOnly(ctx context.Context, currentFile, sig string) (*Result, error) {
	oldPath := filepath.Join(m.cfg.Dir, currentFile)
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		m.logger.Warn("current snapshot missing, rebuilding", "file", currentFile)
		return m.rebuildRotate(ctx, sig)
	}

	name, err := newFilename()
	if err != nil {
		return nil, err
	}
	size, err := m.copySnapshot(oldPath, name)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Store.Set(ctx, keyFile, name); err != nil {
		return nil, fmt.Errorf("%w: storing filename: %v", apperrors.ErrStorage, err)
	}
	m.purge(name)
	return &Result{Action: ActionRotated, Bytes: size}, nil
}

// writeFreshSnapshot runs the full build pipeline: extract, strip markup,
// truncate excerpts, serialise, and atomically write under name.
func (m *Manager) writeFreshSnapshot(ctx context.Context, name string) (*Result, error) {
	raw, err := m.deps.Extractor.Extract(ctx, m.cfg.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("%w: extracting documents: %v", apperrors.ErrUpstream, err)
	}

	docs := make([]snapshot.Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, snapshot.Document{
			ID:    r.ID,
			Title: r.Title,
			URL:   r.URL,
			Date:  r.Date,
			Type:  r.Type,
			Text:  clean.Excerpt(clean.StripMarkup(r.Body), m.cfg.ExcerptMaxLen),
		})
	}

	snap := snapshot.New(docs)
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}
	data, err := snap.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
	}

	if err := m.writeFile(name, data); err != nil {
		return nil, err
	}
	return &Result{Action: ActionRebuilt, Docs: len(docs), Bytes: int64(len(data))}, nil
}

// writeFile writes data under name in the snapshot directory via a temp file
// and rename, so a crashed write never leaves a half-written current file.
func (m *Manager) writeFile(name string, data []byte) error {
	if err := m.ensureDir(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.cfg.Dir, ".tmp-dataset-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", apperrors.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing snapshot: %v", apperrors.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing snapshot: %v", apperrors.ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: setting snapshot mode: %v", apperrors.ErrStorage, err)
	}
	if err := os.Rename(tmpName, filepath.Join(m.cfg.Dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: committing snapshot: %v", apperrors.ErrStorage, err)
	}
	return nil
}

// copySnapshot byte-copies src into the directory under name and returns the
// copied size.
func (m *Manager) copySnapshot(src, name string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: opening snapshot: %v", apperrors.ErrStorage, err)
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return 0, fmt.Errorf("%w: reading snapshot: %v", apperrors.ErrStorage, err)
	}
	if err := m.writeFile(name, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// purge removes every dataset file except keep. Sentinel and non-dataset
// files stay. Removal failures are logged and retried implicitly on the next
// transition's purge.
func (m *Manager) purge(keep string) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		m.logger.Warn("purge: reading snapshot dir", "error", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep || name == sentinelFile {
			continue
		}
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.Dir, name)); err != nil {
			m.logger.Warn("purge: removing stale snapshot", "file", name, "error", err)
		}
	}
}

// ensureDir creates the snapshot directory and its sentinel file.
func (m *Manager) ensureDir() error {
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot dir: %v", apperrors.ErrStorage, err)
	}
	sentinel := filepath.Join(m.cfg.Dir, sentinelFile)
	if _, err := os.Stat(sentinel); os.IsNotExist(err) {
		if err := os.WriteFile(sentinel, nil, 0o644); err != nil {
			return fmt.Errorf("%w: writing sentinel: %v", apperrors.ErrStorage, err)
		}
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, res *Result, elapsed time.Duration) {
	if m.deps.Publisher == nil {
		return
	}
	m.deps.Publisher.LifecycleChanged(ctx, Event{
		Action:    res.Action,
		Docs:      res.Docs,
		Bytes:     res.Bytes,
		Elapsed:   elapsed,
		Timestamp: time.Now().UTC(),
	})
}

func (m *Manager) observe(res *Result, elapsed time.Duration) {
	if m.deps.Metrics == nil {
		return
	}
	m.deps.Metrics.DatasetBuildsTotal.WithLabelValues(res.Action).Inc()
	m.deps.Metrics.SnapshotBytes.Set(float64(res.Bytes))
	if res.Action == ActionRebuilt {
		m.deps.Metrics.DatasetBuildDuration.Observe(elapsed.Seconds())
		m.deps.Metrics.SnapshotDocs.Set(float64(res.Docs))
	}
}

func (m *Manager) countBuild(action string) {
	if m.deps.Metrics == nil {
		return
	}
	m.deps.Metrics.DatasetBuildsTotal.WithLabelValues(action).Inc()
}

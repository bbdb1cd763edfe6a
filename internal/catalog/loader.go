package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
	"github.com/kode4food/cadence/pkg/util"
)

type (
	// Loader discovers target catalogs, loads their sequences and handler
	// modules, and mounts them on an executor. Concurrent LoadCatalogs
	// calls sharing a registry mount each sequence id once
	Loader struct {
		source   Source
		resolver ModuleResolver
		mounts   *mounts.Registry
		config   config.CatalogConfig
		force    util.Set[api.TargetID]
	}

	// Result summarizes one LoadCatalogs run
	Result struct {
		Discovered []api.TargetID
		Mounted    []api.SequenceID
		Skipped    []api.SequenceID
		Failed     []Failure
	}

	// Failure records a catalog entry that could not be mounted
	Failure struct {
		Target api.TargetID
		File   string
		Err    error
	}

	entry struct {
		ref      api.CatalogEntryRef
		seq      *api.Sequence
		handlers api.Handlers
		err      error
	}
)

var (
	ErrUnresolvedHandlers = errors.New("sequence references missing handlers")
	ErrMountPanicked      = errors.New("mount panicked")
	ErrSequenceDecode     = errors.New("sequence decode failed")
	ErrIndexDecode        = errors.New("catalog index decode failed")
	ErrManifestDecode     = errors.New("plugin manifest decode failed")
)

// NewLoader creates a Loader reading catalogs from source, resolving handler
// modules with resolver and tracking mounts in reg
func NewLoader(
	source Source, resolver ModuleResolver, reg *mounts.Registry,
	cfg config.CatalogConfig,
) *Loader {
	if cfg.ManifestFile == "" {
		cfg.ManifestFile = config.DefaultManifestFile
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = config.DefaultIndexFile
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = config.DefaultConcurrency
	}
	return &Loader{
		source:   source,
		resolver: resolver,
		mounts:   reg,
		config:   cfg,
		force:    util.SetOf(cfg.ForceRemount...),
	}
}

// Mounts returns the registry the loader records mounts in
func (l *Loader) Mounts() *mounts.Registry {
	return l.mounts
}

// Manifest reads the plugin manifest. A missing manifest is empty
func (l *Loader) Manifest(ctx context.Context) (*api.PluginManifest, error) {
	data, err := l.source.Read(ctx, l.config.ManifestFile)
	if errors.Is(err, ErrNotFound) {
		return &api.PluginManifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	var res api.PluginManifest
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %s: %w",
			ErrManifestDecode, l.config.ManifestFile, err)
	}
	return &res, nil
}

// Discover returns the targets to load: the explicit ids when given,
// otherwise the plugin manifest's ids, otherwise the catalog directories
// the source can list
func (l *Loader) Discover(
	ctx context.Context, ids ...api.TargetID,
) []api.TargetID {
	if len(ids) > 0 {
		return ids
	}
	manifest, err := l.Manifest(ctx)
	if err != nil {
		slog.Warn("Plugin manifest unavailable", log.Error(err))
	} else if res := manifest.IDs(); len(res) > 0 {
		return res
	}

	dirs, err := l.source.Dirs(ctx)
	if err != nil {
		slog.Debug("Catalog directories not listable",
			slog.String("source", l.source.Name()),
			log.Error(err))
		return nil
	}
	res := make([]api.TargetID, len(dirs))
	for i, d := range dirs {
		res[i] = api.TargetID(d)
	}
	return res
}

// LoadCatalogs mounts the sequences of every discovered target. Entry
// failures are logged and recorded in the Result without stopping the run
func (l *Loader) LoadCatalogs(
	ctx context.Context, exec api.Executor, ids ...api.TargetID,
) (*Result, error) {
	if exec == nil {
		return nil, api.ErrNoExecutor
	}

	targets := l.Discover(ctx, ids...)
	l.mounts.SetDiscovered(targets)
	if rec, ok := exec.(api.DiscoveryRecorder); ok {
		rec.RecordDiscovery(l.mounts.Discovered())
	}

	res := &Result{Discovered: targets}
	seen := util.Set[api.SequenceID]{}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		l.loadTarget(ctx, exec, target, seen, res)
	}

	slog.Info("Catalogs loaded",
		slog.Int("targets", len(targets)),
		slog.Int("mounted", len(res.Mounted)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}

// MountSequence loads and mounts a single catalog entry for target,
// regardless of whether its sequence is already mounted
func (l *Loader) MountSequence(
	ctx context.Context, exec api.Executor, target api.TargetID,
	ref api.CatalogEntryRef,
) (api.SequenceID, error) {
	if exec == nil {
		return "", api.ErrNoExecutor
	}
	e := l.loadEntry(ctx, l.dir(target), ref)
	if e.err != nil {
		return "", e.err
	}
	if err := l.mount(ctx, exec, target, e); err != nil {
		return e.seq.ID, err
	}
	return e.seq.ID, nil
}

func (l *Loader) loadTarget(
	ctx context.Context, exec api.Executor, target api.TargetID,
	seen util.Set[api.SequenceID], res *Result,
) {
	dir := l.dir(target)
	index, err := l.readIndex(ctx, dir)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("No catalog for target",
			log.TargetID(target),
			slog.String("dir", dir))
		return
	}
	if err != nil {
		res.fail(target, path.Join(dir, l.config.IndexFile), err)
		return
	}

	for _, e := range l.loadEntries(ctx, dir, index.Sequences) {
		if e.err != nil {
			res.fail(target, e.ref.File, e.err)
			continue
		}
		id := e.seq.ID
		if seen.Contains(id) {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		seen.Add(id)
		reserved := l.mounts.Reserve(id)
		remount := l.force.Contains(target) && l.mounts.IsMounted(id)
		if !reserved && !remount {
			slog.Debug("Sequence already mounted",
				log.SequenceID(id),
				log.TargetID(target))
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err := l.mount(ctx, exec, target, e); err != nil {
			if reserved {
				l.mounts.Release(id)
			}
			res.fail(target, e.ref.File, err)
			continue
		}
		res.Mounted = append(res.Mounted, id)
	}
}

func (l *Loader) loadEntries(
	ctx context.Context, dir string, refs []api.CatalogEntryRef,
) []*entry {
	res := make([]*entry, len(refs))
	var g errgroup.Group
	g.SetLimit(l.config.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			res[i] = l.loadEntry(ctx, dir, ref)
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (l *Loader) loadEntry(
	ctx context.Context, dir string, ref api.CatalogEntryRef,
) *entry {
	e := &entry{ref: ref}
	data, err := l.source.Read(ctx, path.Join(dir, ref.File))
	if err != nil {
		e.err = err
		return e
	}

	var seq api.Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		e.err = fmt.Errorf("%w: %s: %w", ErrSequenceDecode, ref.File, err)
		return e
	}
	if err := seq.Validate(); err != nil {
		e.err = err
		return e
	}

	mod, err := l.resolver.Resolve(ctx, handlerRef(dir, ref.Handlers))
	if err != nil {
		e.err = err
		return e
	}
	if missing := seq.MissingHandlers(mod.Handlers); len(missing) > 0 {
		e.err = fmt.Errorf("%w: %s needs %s from %s",
			ErrUnresolvedHandlers, seq.ID,
			strings.Join(missing, ", "), mod.Ref)
		return e
	}
	e.seq = &seq
	e.handlers = mod.Handlers
	return e
}

func (l *Loader) mount(
	ctx context.Context, exec api.Executor, target api.TargetID, e *entry,
) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrMountPanicked, rec)
		}
	}()

	if e.seq.PluginID == "" {
		e.seq.PluginID = target
	}
	if err := exec.Mount(ctx, e.seq, e.handlers, target); err != nil {
		return err
	}
	if !l.mounts.MarkMounted(e.seq.ID, target) {
		slog.Info("Sequence remounted",
			log.SequenceID(e.seq.ID),
			log.TargetID(target))
		return nil
	}
	slog.Debug("Sequence mounted",
		log.SequenceID(e.seq.ID),
		log.TargetID(target))
	return nil
}

func (l *Loader) readIndex(
	ctx context.Context, dir string,
) (*api.CatalogIndex, error) {
	file := path.Join(dir, l.config.IndexFile)
	data, err := l.source.Read(ctx, file)
	if err != nil {
		return nil, err
	}
	var res api.CatalogIndex
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexDecode, file, err)
	}
	return &res, nil
}

func (l *Loader) dir(target api.TargetID) string {
	if dir, ok := l.config.Aliases[target]; ok && dir != "" {
		return dir
	}
	return string(target)
}

// handlerRef anchors "./" and "../" refs at the catalog directory; any
// other ref is resolved as given
func handlerRef(dir, ref string) string {
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		return path.Join(dir, ref)
	}
	return ref
}

func (r *Result) fail(target api.TargetID, file string, err error) {
	slog.Warn("Catalog entry failed",
		log.TargetID(target),
		slog.String("file", file),
		log.Error(err))
	r.Failed = append(r.Failed, Failure{Target: target, File: file, Err: err})
}

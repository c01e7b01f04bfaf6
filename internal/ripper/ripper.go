// Package ripper mirrors a website to a local directory tree. Starting
// from a seed URI it downloads each resource, asks its parser for
// references, maps every followed reference to a local file and rewrites
// the reference to a relative path, fanning out concurrently per resource.
package ripper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cerrors "cloudeng.io/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/masahif/webripper/internal/downloader"
	"github.com/masahif/webripper/internal/parser"
)

// Options configures a Ripper.
type Options struct {
	SeedURI        string
	RootPath       string
	Languages      []string      // preferred languages, most preferred first
	Timeout        time.Duration // per request header exchange
	IsBase         bool          // restrict hyperlinks to the seed's directory
	MaxDepth       int           // hyperlink depth limit, <= 0 for unbounded
	IncludePattern string        // hyperlinks matching this are followed, case-insensitive
	Concurrency    int           // bound on in-flight requests and transfers, 0 for unbounded
	MaxPath        int           // local path ceiling in bytes, 0 for DefaultMaxPath

	// Progress is called from many goroutines.
	Progress func(ProgressEvent)
	Journal  Journal
	Logger   *slog.Logger
}

// Ripper runs one mirror of one seed. It is single use.
type Ripper struct {
	opts   Options
	env    *Env
	seed   *url.URL
	root   string
	paths  PathMapper
	scope  *Scope
	logger *slog.Logger
	sem    *semaphore.Weighted
	group  singleflight.Group

	mu        sync.Mutex
	byURI     map[string]*Resource
	byPath    map[string]*Resource
	firstSeen map[*Resource]string
	order     []*Resource

	stateMu   sync.Mutex
	started   bool
	cancel    context.CancelFunc
	runID     string
	overwrite bool
	// runCtx bounds requests and their bodies, which may be read by a
	// different branch than the one that created the resource.
	runCtx context.Context

	downloaded atomic.Int64
	failures   cerrors.M
}

type edge struct {
	res   *Resource
	depth int
}

// New validates opts without starting any I/O.
func New(opts Options, env *Env) (*Ripper, error) {
	if env == nil {
		return nil, errors.New("ripper environment is required")
	}
	seed, err := url.Parse(strings.TrimSpace(opts.SeedURI))
	if err != nil {
		return nil, fmt.Errorf("invalid seed URI %q: %w", opts.SeedURI, err)
	}
	if !seed.IsAbs() {
		return nil, fmt.Errorf("seed URI %q is not absolute", opts.SeedURI)
	}
	if !env.Downloaders.Supports(seed.Scheme) {
		return nil, fmt.Errorf("%w: %q", downloader.ErrUnsupportedScheme, seed.Scheme)
	}
	root, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid root path %q: %w", opts.RootPath, err)
	}
	scope, err := NewScope(seed, opts.IsBase, opts.MaxDepth, opts.IncludePattern)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Ripper{
		opts:      opts,
		env:       env,
		seed:      seed,
		root:      root,
		paths:     PathMapper{Root: root, MaxPath: opts.MaxPath, Extensions: env.Extensions},
		scope:     scope,
		logger:    logger,
		byURI:     make(map[string]*Resource),
		byPath:    make(map[string]*Resource),
		firstSeen: make(map[*Resource]string),
	}
	if opts.Concurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return r, nil
}

// RipAsync checks the mode precondition and starts the rip. The result
// is delivered on the returned channel, which is then closed.
func (r *Ripper) RipAsync(ctx context.Context, mode Mode) (<-chan *Result, error) {
	r.stateMu.Lock()
	if r.started {
		r.stateMu.Unlock()
		return nil, ErrAlreadyStarted
	}
	r.started = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.runCtx = runCtx
	r.stateMu.Unlock()

	if err := prepareRoot(r.root, mode); err != nil {
		cancel()
		return nil, err
	}
	r.overwrite = mode.overwrites()
	r.runID = uuid.NewString()

	results := make(chan *Result, 1)
	go func() {
		defer close(results)
		defer cancel()
		results <- r.run(runCtx, mode)
	}()
	return results, nil
}

// Rip runs to completion. The error is the precondition failure or the
// result's terminal error.
func (r *Ripper) Rip(ctx context.Context, mode Mode) (*Result, error) {
	results, err := r.RipAsync(ctx, mode)
	if err != nil {
		return nil, err
	}
	res := <-results
	return res, res.Err
}

// Cancel stops a running rip. In-progress transfers are abandoned and
// their partial files removed.
func (r *Ripper) Cancel() error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	r.cancel()
	return nil
}

// Resources returns the distinct resources discovered so far.
func (r *Ripper) Resources() []*Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Resource(nil), r.order...)
}

// Lookup finds the resource cached for a URI.
func (r *Ripper) Lookup(uri string) (*Resource, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, false
	}
	res := r.lookup(cacheKey(u))
	return res, res != nil
}

// FirstSeen returns the URI through which res was first discovered.
func (r *Ripper) FirstSeen(res *Resource) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstSeen[res]
}

func (r *Ripper) run(ctx context.Context, mode Mode) *Result {
	result := &Result{RunID: r.runID, StartedAt: time.Now()}
	if r.opts.Journal != nil {
		run := RunRecord{ID: r.runID, SeedURI: r.seed.String(), RootPath: r.root, Mode: mode, StartedAt: result.StartedAt.UTC()}
		if err := r.opts.Journal.StartRun(run); err != nil {
			r.logger.Warn("Failed to record run start", "error", err)
		}
	}
	r.logger.Info("Starting rip", "url", r.seed.String(), "root", r.root, "mode", mode.String())

	root, err := r.resolve(ctx, r.seed, "", 0)
	if err == nil && root.failure != nil {
		err = &UnavailableError{Resource: root, Err: root.failure}
	}
	if err == nil {
		result.Root = root.path
		err = root.rip(ctx, 0)
	}

	switch {
	case ctx.Err() != nil:
		result.Status = StatusCanceled
		result.Err = ErrCanceled
	case err != nil:
		result.Status = StatusFailed
		result.Err = err
	default:
		result.Status = StatusCompleted
	}
	result.Failures = r.failures.Err()
	result.Resources = len(r.Resources())
	result.Downloaded = int(r.downloaded.Load())
	result.Duration = time.Since(result.StartedAt)

	r.logger.Info("Rip finished", "status", result.Status, "resources", result.Resources,
		"downloaded", result.Downloaded, "duration", result.Duration)
	if r.opts.Journal != nil {
		summary := RunSummary{
			Status:     result.Status,
			Resources:  result.Resources,
			Downloaded: result.Downloaded,
			FinishedAt: time.Now().UTC(),
		}
		if result.Failures != nil {
			summary.Failures = len(r.failures.Unwrap())
		}
		if result.Err != nil {
			summary.Error = result.Err.Error()
		}
		if err := r.opts.Journal.FinishRun(r.runID, summary); err != nil {
			r.logger.Warn("Failed to record run end", "error", err)
		}
	}
	return result
}

// resolve returns the one Resource for u, creating it on first sight.
// Unavailable resources are returned without error.
func (r *Ripper) resolve(ctx context.Context, u *url.URL, mimeHint string, depth int) (*Resource, error) {
	key := cacheKey(u)
	if res := r.lookup(key); res != nil {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		if res := r.lookup(key); res != nil {
			return res, nil
		}
		res, err := newResource(r.runCtx, r, u, mimeHint)
		var unavailable *UnavailableError
		switch {
		case errors.As(err, &unavailable):
			if err := r.runCtx.Err(); err != nil {
				return nil, err
			}
			res = unavailable.Resource
			canonical := r.register(key, u, res)
			if canonical == res {
				r.logger.Warn("Resource unavailable", "url", u.String(), "path", res.path, "error", unavailable.Err)
				r.failures.Append(unavailable)
				r.record(res, depth, unavailable.Err)
			}
			return canonical, nil
		case err != nil:
			return nil, err
		}
		return r.register(key, u, res), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resource), nil
}

func (r *Ripper) lookup(key string) *Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byURI[key]
}

// register inserts res unless a resource with the same final URI or the
// same local path exists, in which case res is discarded for that one.
func (r *Ripper) register(key string, u *url.URL, res *Resource) *Resource {
	finalKey := cacheKey(res.final)

	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.byURI[key]
	if existing == nil {
		existing = r.byURI[finalKey]
	}
	if existing == nil {
		existing = r.byPath[res.path]
	}
	if existing != nil {
		r.byURI[key] = existing
		if r.byURI[finalKey] == nil {
			r.byURI[finalKey] = existing
		}
		res.closeDownloader()
		return existing
	}

	r.byURI[key] = res
	r.byURI[finalKey] = res
	r.byPath[res.path] = res
	r.firstSeen[res] = u.String()
	r.order = append(r.order, res)
	return res
}

// expand rewrites the references of a transferred resource and rips the
// resources they lead to.
func (r *Ripper) expand(ctx context.Context, res *Resource, depth int) error {
	p := res.parser
	if err := p.Load(res.path); err != nil {
		r.logger.Warn("Failed to load resource", "url", res.final.String(), "path", res.path, "error", err)
		return nil
	}
	refs, err := p.References()
	if err != nil {
		r.logger.Warn("Failed to read references", "url", res.final.String(), "error", err)
		return nil
	}

	var children []edge
	seen := make(map[*Resource]bool)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		value := strings.TrimSpace(ref.Value())
		if ref.Kind() == parser.Skip || value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		target, ok := r.referenceTarget(res, ref, value)
		if !ok {
			r.logger.Debug("Skipping unresolvable reference", "url", res.final.String(), "value", value)
			continue
		}

		childDepth := depth
		if ref.Kind() == parser.Hyperlink {
			childDepth++
		}
		if !r.env.Downloaders.Supports(target.Scheme) || !r.scope.Allows(ref.Kind(), target, childDepth) {
			r.logger.Debug("Skipping out of scope reference", "url", res.final.String(), "target", target.String())
			keepAbsolute(ref, target)
			continue
		}

		child, err := r.resolve(ctx, target, ref.MimeHint(), childDepth)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("Failed to resolve reference", "url", res.final.String(), "target", target.String(), "error", err)
			r.failures.Append(err)
			keepAbsolute(ref, target)
			continue
		}
		ref.SetValue(relativeRef(res.path, child.path, target.EscapedFragment()))
		if child != res && !seen[child] {
			seen[child] = true
			children = append(children, edge{res: child, depth: childDepth})
		}
	}

	if p.Dirty() {
		if err := p.Save(res.path); err != nil {
			r.logger.Warn("Failed to save rewritten resource", "path", res.path, "error", err)
		}
	}
	return r.fanOut(ctx, children)
}

// referenceTarget resolves a reference of res. References of an up to
// date local copy were rewritten by an earlier run and lead to local files.
func (r *Ripper) referenceTarget(res *Resource, ref *parser.Reference, value string) (*url.URL, bool) {
	if res.Outcome() == OutcomeUpToDate && !ref.FollowsDocumentBase() {
		if target, ok := r.localTarget(res, value); ok {
			return target, true
		}
	}
	return ref.AbsoluteURI(res.final)
}

// localTarget maps a relative value naming an existing local file back to
// the URI of that file.
func (r *Ripper) localTarget(res *Resource, value string) (*url.URL, bool) {
	ref, err := url.Parse(value)
	if err != nil || ref.Scheme != "" || ref.Host != "" || ref.RawQuery != "" ||
		ref.Path == "" || strings.HasPrefix(ref.Path, "/") {
		return nil, false
	}
	local := filepath.Join(filepath.Dir(res.path), filepath.FromSlash(ref.Path))
	if info, err := os.Stat(local); err != nil || info.IsDir() {
		return nil, false
	}

	r.mu.Lock()
	known := r.byPath[local]
	r.mu.Unlock()
	var target *url.URL
	if known != nil {
		u := *known.URI()
		target = &u
	} else {
		u, ok := r.paths.Unmap(local, res.final, parser.IsIndexFileName)
		if !ok {
			return nil, false
		}
		target = u
	}
	target.Fragment, target.RawFragment = ref.Fragment, ref.RawFragment
	return target, true
}

// keepAbsolute pins a reference that is not followed when the document
// base it relies on may be dropped on save.
func keepAbsolute(ref *parser.Reference, target *url.URL) {
	if ref.FollowsDocumentBase() {
		ref.SetValue(target.String())
	}
}

// fanOut rips children concurrently. Only cancellation ends the group
// early; other failures are collected.
func (r *Ripper) fanOut(ctx context.Context, children []edge) error {
	if len(children) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range children {
		g.Go(func() error {
			err := c.res.rip(gctx, c.depth)
			if err == nil {
				return nil
			}
			if gctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			r.failures.Append(fmt.Errorf("%s: %w", c.res.final, err))
			return nil
		})
	}
	return g.Wait()
}

func (r *Ripper) acquire(ctx context.Context) error {
	if r.sem == nil {
		return ctx.Err()
	}
	return r.sem.Acquire(ctx, 1)
}

func (r *Ripper) release() {
	if r.sem != nil {
		r.sem.Release(1)
	}
}

func (r *Ripper) progress(e ProgressEvent) {
	if r.opts.Progress != nil {
		r.opts.Progress(e)
	}
}

func (r *Ripper) record(res *Resource, depth int, err error) {
	if r.opts.Journal == nil {
		return
	}
	rec := res.record(depth, err)
	if first := r.FirstSeen(res); first != "" {
		rec.URI = first
	}
	if jerr := r.opts.Journal.RecordResource(r.runID, rec); jerr != nil {
		r.logger.Warn("Failed to record resource", "url", rec.URI, "error", jerr)
	}
}

// cacheKey normalizes a URI for deduplication: no fragment, lower case
// scheme and host, and "/" for an empty path.
func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment, k.RawFragment = "", ""
	k.Scheme = strings.ToLower(k.Scheme)
	k.Host = strings.ToLower(k.Host)
	if k.Path == "" && k.Opaque == "" && k.Host != "" {
		k.Path, k.RawPath = "/", ""
	}
	return k.String()
}

package runway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"runway-bot/attribution"
)

const (
	defaultPageTemplate   = "RuPaul's Drag Race (Season {season})"
	defaultResolveWorkers = 8
)

// Record is a new image to persist.
type Record struct {
	Season   int
	URL      string
	Queen    string
	Category string
	PostedAt time.Time
}

// Source lists a page's files and resolves them to direct URLs.
type Source interface {
	PageImages(ctx context.Context, pageTitle string) ([]string, error)
	ResolveAll(ctx context.Context, titles []string, limit int) ([]string, error)
}

// Store provides the persisted cache and known-name lists.
type Store interface {
	CachedURLs(ctx context.Context, season int) (map[string]struct{}, error)
	KnownNames(ctx context.Context, season int) ([]string, error)
	InsertImages(ctx context.Context, records []Record) error
}

// Runner orchestrates one check for new runway images.
type Runner struct {
	source         Source
	store          Store
	poster         *Poster
	locker         Locker
	pageTemplate   string
	resolveWorkers int
	runTimeout     time.Duration
	now            func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithPageTemplate sets the wiki page title; "{season}" is replaced by the
// season number.
func WithPageTemplate(tmpl string) Option {
	return func(r *Runner) {
		r.pageTemplate = tmpl
	}
}

// WithResolveWorkers bounds the number of concurrent URL lookups.
func WithResolveWorkers(n int) Option {
	return func(r *Runner) {
		r.resolveWorkers = n
	}
}

// WithLocker sets the per-season lock held for the duration of a run.
func WithLocker(l Locker) Option {
	return func(r *Runner) {
		r.locker = l
	}
}

// WithRunTimeout bounds a whole run, lock included. Set it no longer than the
// lease TTL so a lease cannot expire while its run is still posting.
func WithRunTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.runTimeout = d
	}
}

// NewRunner creates a new runner.
func NewRunner(source Source, store Store, chat ThreadPoster, opts ...Option) *Runner {
	r := &Runner{
		source:         source,
		store:          store,
		poster:         NewPoster(chat),
		locker:         NewMutexLocker(),
		pageTemplate:   defaultPageTemplate,
		resolveWorkers: defaultResolveWorkers,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PageTitle returns the wiki page listing a season's images.
func (r *Runner) PageTitle(season int) string {
	return strings.ReplaceAll(r.pageTemplate, "{season}", strconv.Itoa(season))
}

// Run checks the season's wiki page for new images and posts them. It never
// returns an error; failures are reported through Result.
func (r *Runner) Run(ctx context.Context, season int) Result {
	log := slog.With("season", season)

	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	unlock, err := r.locker.Lock(ctx, season)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			log.Info("run already in progress")
			return Result{Status: StatusBusy, Season: season, Err: err}
		}
		return r.fail(log, season, fmt.Errorf("lock season: %w", err))
	}
	defer unlock()

	log.Info("starting runway check", "page", r.PageTitle(season))

	fresh, err := r.findNew(ctx, season)
	if err != nil {
		return r.fail(log, season, err)
	}

	if len(fresh) == 0 {
		log.Info("no new images")
		return Result{Status: StatusNothingNew, Season: season}
	}

	now := r.now()
	records := make([]Record, len(fresh))
	for i, it := range fresh {
		records[i] = Record{
			Season:   season,
			URL:      it.URL,
			Queen:    it.Queen,
			Category: it.Category,
			PostedAt: now,
		}
	}
	if err := r.store.InsertImages(ctx, records); err != nil {
		return r.fail(log, season, fmt.Errorf("record new images: %w", err))
	}

	report := r.poster.Post(ctx, season, GroupByCategory(fresh))

	res := Result{
		Season:  season,
		New:     len(fresh),
		Posted:  report.Posted(),
		Failed:  report.Failed(),
		Threads: report.Threads,
	}
	switch {
	case res.Failed == 0:
		res.Status = StatusPosted
	case res.Posted > 0:
		res.Status = StatusPartial
		res.Err = firstThreadErr(report)
	default:
		res.Status = StatusUndelivered
		res.Err = firstThreadErr(report)
	}

	log.Info("runway check complete",
		"status", res.Status.String(),
		"new", res.New,
		"posted", res.Posted,
		"failed", res.Failed,
		"threads", len(res.Threads),
	)
	return res
}

func (r *Runner) findNew(ctx context.Context, season int) ([]Item, error) {
	cached, err := r.store.CachedURLs(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("read cached urls: %w", err)
	}

	names, err := r.store.KnownNames(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("read known names: %w", err)
	}

	titles, err := r.source.PageImages(ctx, r.PageTitle(season))
	if err != nil {
		return nil, fmt.Errorf("list page images: %w", err)
	}
	slog.Info("listed page images", "season", season, "count", len(titles))

	urls, err := r.source.ResolveAll(ctx, titles, r.resolveWorkers)
	if err != nil {
		return nil, fmt.Errorf("resolve image urls: %w", err)
	}

	items := make([]Item, 0, len(titles))
	for i, title := range titles {
		if urls[i] == "" {
			// The page links a file the wiki does not have.
			slog.Warn("skipping unresolved image", "season", season, "title", title)
			continue
		}
		a := attribution.Parse(title, names)
		items = append(items, Item{
			Title:    title,
			URL:      urls[i],
			Queen:    a.Name,
			Category: a.Category,
		})
	}

	unique := Unique(items)
	if dropped := len(items) - len(unique); dropped > 0 {
		slog.Warn("dropped duplicate image urls", "season", season, "count", dropped)
	}

	fresh := Diff(cached, unique)
	slog.Info("diffed against cache", "season", season, "cached", len(cached), "new", len(fresh))
	return fresh, nil
}

func (r *Runner) fail(log *slog.Logger, season int, err error) Result {
	log.Error("runway check failed", "error", err)
	return Result{Status: StatusFailed, Season: season, Err: err}
}

func firstThreadErr(report PostReport) error {
	for _, t := range report.Threads {
		if t.Err != nil {
			return t.Err
		}
	}
	return nil
}

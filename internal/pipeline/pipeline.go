// Package pipeline runs a feed through load, mapping and export.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"feedmap/internal/export"
	"feedmap/internal/feed"
	"feedmap/internal/metrics"
	"feedmap/internal/source"
)

// Step names used for metrics.
const (
	StepLoad   = "load"
	StepApply  = "apply"
	StepExport = "export"
)

// Job is one feed to transform.
type Job struct {
	Input source.Input
	Rules []feed.Rule
	// OutputName defaults to feed.DefaultExportName.
	OutputName string
}

// Result describes a finished Job.
type Result struct {
	Source string
	Items  int
	Schema []feed.SchemaEntry
	Export export.Info
}

// Skipped is a directory entry that could not be read or parsed.
type Skipped struct {
	File string
	Err  error
}

// DirResult lists exported feeds and skipped files, both in name order.
type DirResult struct {
	Results []Result
	Skipped []Skipped
}

// Runner wires a source loader to an export target.
type Runner struct {
	loader      *source.Loader
	target      export.Target
	layout      feed.Layout
	concurrency int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLayout sets the serializer layout.
func WithLayout(l feed.Layout) Option {
	return func(r *Runner) { r.layout = l }
}

// WithConcurrency bounds the number of files RunDir handles at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New returns a Runner. target may be nil when only Transform is used.
func New(loader *source.Loader, target export.Target, opts ...Option) *Runner {
	if loader == nil {
		loader = source.NewLoader(nil, source.Options{})
	}
	r := &Runner{loader: loader, target: target, layout: feed.RSSLayout, concurrency: 4}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Transform loads the job input and applies its rules. The returned Manager
// holds the transformed feed for serialization.
func (r *Runner) Transform(ctx context.Context, job Job) (*feed.Manager, feed.LoadResult, error) {
	log := zerolog.Ctx(ctx)
	m := feed.NewManager(feed.WithLogger(*log), feed.WithLayout(r.layout))

	start := time.Now()
	text, err := r.loader.Load(ctx, job.Input)
	var res feed.LoadResult
	if err == nil {
		res, err = m.Load(text)
	}
	metrics.RecordStep(StepLoad, err, time.Since(start))
	if err != nil {
		return nil, feed.LoadResult{}, errors.Errorf("load %s: %w", job.Input.Name(), err)
	}
	metrics.RecordRecords("parsed", res.Items)

	start = time.Now()
	_, err = m.Apply(job.Rules)
	metrics.RecordStep(StepApply, err, time.Since(start))
	if err != nil {
		return nil, feed.LoadResult{}, errors.Errorf("apply rules to %s: %w", job.Input.Name(), err)
	}

	log.Debug().Str("source", job.Input.Name()).Int("items", res.Items).Int("rules", len(job.Rules)).Msg("feed transformed")
	return m, res, nil
}

// Run transforms the job and exports the result to the Runner's target.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	if r.target == nil {
		return Result{}, errors.New("pipeline: no export target")
	}
	m, res, err := r.Transform(ctx, job)
	if err != nil {
		return Result{}, err
	}

	saver := &export.Saver{Target: r.target}
	start := time.Now()
	err = m.Export(ctx, job.OutputName, saver)
	metrics.RecordStep(StepExport, err, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	metrics.RecordRecords("exported", res.Items)

	zerolog.Ctx(ctx).Info().
		Str("source", job.Input.Name()).
		Str("location", saver.Last.Location).
		Int("items", res.Items).
		Msg("feed exported")

	return Result{Source: job.Input.Name(), Items: res.Items, Schema: res.Schema, Export: saver.Last}, nil
}

// RunDir transforms every *.xml file in dir with the same rules and exports
// each one under its own file name.
//
// Files are handled concurrently but reported in name order. Files that
// cannot be read or parsed are skipped and listed in the result. Export
// failures stop the run.
func (r *Runner) RunDir(ctx context.Context, dir string, rules []feed.Rule) (DirResult, error) {
	if r.target == nil {
		return DirResult{}, errors.New("pipeline: no export target")
	}
	for _, rule := range rules {
		if err := feed.ValidateRule(rule); err != nil {
			return DirResult{}, err
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DirResult{}, errors.Errorf("read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	results := make([]Result, len(names))
	skipped := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, name := range names {
		g.Go(func() error {
			job := Job{Input: source.Input{Path: filepath.Join(dir, name)}, Rules: rules, OutputName: name}
			m, res, err := r.Transform(gctx, job)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zerolog.Ctx(gctx).Warn().Err(err).Str("file", name).Msg("skipping feed")
				skipped[i] = err
				return nil
			}

			saver := &export.Saver{Target: r.target}
			start := time.Now()
			err = m.Export(gctx, name, saver)
			metrics.RecordStep(StepExport, err, time.Since(start))
			if err != nil {
				return errors.Errorf("%s: %w", name, err)
			}
			metrics.RecordRecords("exported", res.Items)
			results[i] = Result{Source: job.Input.Name(), Items: res.Items, Schema: res.Schema, Export: saver.Last}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DirResult{}, err
	}

	var out DirResult
	for i, name := range names {
		if skipped[i] != nil {
			out.Skipped = append(out.Skipped, Skipped{File: name, Err: skipped[i]})
			continue
		}
		out.Results = append(out.Results, results[i])
	}
	return out, nil
}

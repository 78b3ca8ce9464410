package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/dependencies"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/gold"
	"github.com/ethpandaops/medallion/pkg/ingest"
	"github.com/ethpandaops/medallion/pkg/lock"
	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/ethpandaops/medallion/pkg/rendering"
	"github.com/ethpandaops/medallion/pkg/standardize"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Runner executes stages against an engine. Every stage run holds the write
// lock of its table and is recorded in the run ledger.
type Runner struct {
	log       logrus.FieldLogger
	eng       *engine.Engine
	cfg       *Config
	templates *rendering.TemplateEngine

	stages   map[string]Stage
	priority map[string]int
	graph    *dependencies.DependencyGraph
}

// NewRunner builds the stage graph. A nil config uses DefaultConfig.
func NewRunner(eng *engine.Engine, cfg *Config) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	stages := DefaultStages()

	graph, err := buildGraph(stages)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage graph: %w", err)
	}

	r := &Runner{
		log:       eng.Log.WithField("component", "pipeline"),
		eng:       eng,
		cfg:       cfg,
		templates: rendering.NewTemplateEngine(),
		stages:    make(map[string]Stage, len(stages)),
		priority:  make(map[string]int, len(stages)),
		graph:     graph,
	}

	for _, s := range stages {
		r.stages[s.ID] = s
		r.priority[s.ID] = s.Priority
	}

	return r, nil
}

// Graph returns the stage dependency graph
func (r *Runner) Graph() *dependencies.DependencyGraph {
	return r.graph
}

// Stages returns every stage in execution order
func (r *Runner) Stages() []Stage {
	order := r.graph.TopologicalOrder(r.priority)
	out := make([]Stage, 0, len(order))

	for _, id := range order {
		out = append(out, r.stages[id])
	}

	return out
}

// Stage looks up a stage by ID
func (r *Runner) Stage(id string) (Stage, error) {
	s, ok := r.stages[id]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}

	return s, nil
}

// DefaultParams returns the run parameters implied by the configuration
func (r *Runner) DefaultParams() Params {
	return r.cfg.Params()
}

// RunStage runs one stage. Missing params are filled from the configuration.
// The returned run is non-nil once the stage has started, also on failure.
func (r *Runner) RunStage(ctx context.Context, id string, params Params) (*admin.Run, error) {
	st, err := r.Stage(id)
	if err != nil {
		return nil, err
	}

	return r.runStage(ctx, "", st, params)
}

// RunPipeline runs the targets and everything they depend on in dependency
// order, or every stage when no target is given. Parameters of every stage
// are validated before the first one starts; execution stops at the first
// failed stage.
func (r *Runner) RunPipeline(ctx context.Context, params Params, targets ...string) ([]admin.Run, error) {
	order := r.graph.TopologicalOrder(r.priority)

	if len(targets) > 0 {
		sub, err := r.graph.Subgraph(targets, r.priority)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnknownStage, err)
		}

		order = sub
	}

	// A pipeline run covers every kind, so table_name only has to be valid
	if params.TableName != "" {
		if _, err := tablekind.Parse(params.TableName); err != nil {
			return nil, err
		}

		params.TableName = ""
	}

	for _, id := range order {
		if _, err := r.plan(r.stages[id], params, r.eng.Now()); err != nil {
			return nil, fmt.Errorf("stage %s: %w", id, err)
		}
	}

	pipelineID := uuid.NewString()
	log := r.log.WithFields(logrus.Fields{
		"pipeline_id": pipelineID,
		"stages":      len(order),
	})

	log.Info("Starting pipeline run")

	start := time.Now()
	runs := make([]admin.Run, 0, len(order))

	for _, id := range order {
		run, err := r.runStage(ctx, pipelineID, r.stages[id], params)
		if run != nil {
			runs = append(runs, *run)
		}

		if err != nil {
			log.WithError(err).WithField("stage", id).Error("Pipeline run failed")

			return runs, fmt.Errorf("stage %s: %w", id, err)
		}
	}

	log.WithField("duration", time.Since(start)).Info("Pipeline run completed")

	return runs, nil
}

type counts struct {
	read, written, rejected, duplicates int
}

// stagePlan is a validated stage invocation
type stagePlan struct {
	table    string
	location string
	mode     store.Mode
	exec     func(ctx context.Context) (counts, error)
}

func (r *Runner) location(layout, layer, base, tableName string, at time.Time) (string, error) {
	loc, err := r.templates.Location(layout, rendering.BuildVariables(layer, base, tableName, at))
	if err != nil {
		return "", fmt.Errorf("failed to render %s location of %s: %w", layer, tableName, err)
	}

	return loc, nil
}

// plan validates params for a stage and resolves every location it touches
func (r *Runner) plan(st Stage, params Params, at time.Time) (*stagePlan, error) {
	p := params.Merge(r.cfg.Params())
	if st.Kind != nil {
		if err := checkTableName(st, p.TableName); err != nil {
			return nil, err
		}

		p.TableName = st.Kind.Name()
	}

	if err := p.Validate(st.Layer); err != nil {
		return nil, err
	}

	layout := r.cfg.Paths.Layout

	switch st.Layer {
	case LayerBronze:
		return r.planIngest(st.Kind, p, at)
	case LayerSilver:
		source, err := r.location(layout, LayerBronze, p.BronzeBasePath, st.Kind.Name(), at)
		if err != nil {
			return nil, err
		}

		target, err := r.location(layout, LayerSilver, p.SilverBasePath, st.Kind.Name(), at)
		if err != nil {
			return nil, err
		}

		req := standardize.Request{Kind: st.Kind, Source: source, Target: target}
		if err := req.Validate(); err != nil {
			return nil, err
		}

		return &stagePlan{
			table:    tablekind.SilverName(st.Kind),
			location: target,
			mode:     store.ModeOverwrite,
			exec: func(ctx context.Context) (counts, error) {
				res, err := standardize.Standardize(ctx, r.eng, req)
				if err != nil {
					return counts{}, err
				}

				return counts{read: res.RowsRead, written: res.RowsWritten, duplicates: res.DuplicatesRemoved}, nil
			},
		}, nil
	default:
		return r.planGold(p, at)
	}
}

// checkTableName rejects a table_name that is unknown or names another kind
// than the stage handles. An empty name defaults to the stage's kind.
func checkTableName(st Stage, name string) error {
	if name == "" {
		return nil
	}

	kind, err := tablekind.Parse(name)
	if err != nil {
		return err
	}

	if kind.Name() != st.Kind.Name() {
		return fmt.Errorf("%w: stage %s handles %s, got %q", ErrTableNameMismatch, st.ID, st.Kind.Name(), name)
	}

	return nil
}

func (r *Runner) planIngest(kind tablekind.Kind, p Params, at time.Time) (*stagePlan, error) {
	mode, err := ParseRunMode(p.RunMode)
	if err != nil {
		return nil, err
	}

	source, err := r.location(r.cfg.Paths.RawLayout, LayerRaw, p.RawBasePath, kind.Name(), at)
	if err != nil {
		return nil, err
	}

	target, err := r.location(r.cfg.Paths.Layout, LayerBronze, p.BronzeBasePath, kind.Name(), at)
	if err != nil {
		return nil, err
	}

	opts := r.cfg.Ingest.Options
	opts.Delimiter = p.Delimiter

	req := ingest.Request{
		Kind:    kind,
		Source:  source,
		Target:  target,
		Mode:    mode.WriteMode(),
		Options: opts,
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &stagePlan{
		table:    tablekind.BronzeName(kind),
		location: target,
		mode:     req.Mode,
		exec: func(ctx context.Context) (counts, error) {
			res, err := ingest.Ingest(ctx, r.eng, req)
			if err != nil {
				return counts{}, err
			}

			return counts{read: res.Stats.Rows + res.Stats.Rejected, written: res.RowsWritten, rejected: res.Stats.Rejected}, nil
		},
	}, nil
}

func (r *Runner) planGold(p Params, at time.Time) (*stagePlan, error) {
	layout := r.cfg.Paths.Layout
	req := gold.Request{
		MinRatings: r.cfg.Gold.MinRatings,
		TopN:       r.cfg.Gold.TopN,
	}

	var err error

	for _, loc := range []struct {
		dst   *string
		layer string
		base  string
		table string
	}{
		{&req.Ratings, LayerSilver, p.SilverBasePath, tablekind.Ratings{}.Name()},
		{&req.Movies, LayerSilver, p.SilverBasePath, tablekind.Movies{}.Name()},
		{&req.GenreTarget, LayerGold, p.GoldBasePath, gold.GenreTable},
		{&req.DecadeTarget, LayerGold, p.GoldBasePath, gold.DecadeTable},
	} {
		if *loc.dst, err = r.location(layout, loc.layer, loc.base, loc.table, at); err != nil {
			return nil, err
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &stagePlan{
		table:    GoldStage,
		location: p.GoldBasePath,
		mode:     store.ModeOverwrite,
		exec: func(ctx context.Context) (counts, error) {
			res, err := gold.Build(ctx, r.eng, req)
			if err != nil {
				return counts{}, err
			}

			return counts{read: res.RatingsRead + res.MoviesRead, written: res.RowsWritten()}, nil
		},
	}, nil
}

func (r *Runner) runStage(ctx context.Context, pipelineID string, st Stage, params Params) (*admin.Run, error) {
	plan, err := r.plan(st, params, r.eng.Now())
	if err != nil {
		return nil, err
	}

	lease, err := r.eng.Locker.Acquire(ctx, plan.table)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			observability.RecordLockConflict(st.ID)
		}

		return nil, err
	}

	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			r.log.WithError(releaseErr).WithField("table", plan.table).Warn("Failed to release table lock")
		}
	}()

	run := &admin.Run{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Stage:      st.ID,
		Table:      plan.table,
		Location:   plan.location,
		Mode:       string(plan.mode),
		StartedAt:  r.eng.Now(),
		Status:     admin.StatusRunning,
	}

	log := r.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"stage":  st.ID,
		"table":  plan.table,
		"mode":   plan.mode,
	})

	r.record(ctx, log, run)
	observability.RecordStageStart(st.ID)

	start := time.Now()
	c, execErr := plan.exec(ctx)

	run.RowsRead = int64(c.read)
	run.RowsWritten = int64(c.written)
	run.RowsRejected = int64(c.rejected)
	run.DuplicatesRemoved = int64(c.duplicates)
	run.Finish(r.eng.Now(), execErr)

	status := observability.StatusSuccess
	if execErr != nil {
		status = observability.StatusFailed
		observability.RecordError("pipeline", "stage_failed")
	}

	observability.RecordStageComplete(st.ID, status, time.Since(start).Seconds())
	observability.RecordRows(st.ID, c.read, c.written, c.rejected, c.duplicates)

	r.record(context.WithoutCancel(ctx), log, run)

	if execErr != nil {
		log.WithError(execErr).Error("Stage failed")

		return run, execErr
	}

	log.WithFields(logrus.Fields{
		"rows":     c.written,
		"duration": run.Duration(),
	}).Info("Stage completed")

	return run, nil
}

func (r *Runner) record(ctx context.Context, log logrus.FieldLogger, run *admin.Run) {
	if err := r.eng.Ledger.Record(ctx, *run); err != nil {
		log.WithError(err).Warn("Failed to record run in ledger")
	}
}

package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
)

var tracer = otel.Tracer("plancost/internal/explore")

// BaselineID identifies the plan PostgreSQL picks without any switch turned off.
const BaselineID = "QEP"

// Executor obtains an EXPLAIN (FORMAT JSON) document for query under cfg. Implementations must
// apply cfg only for the duration of the call.
type Executor interface {
	Explain(ctx context.Context, database, query string, cfg Configuration) ([]byte, error)
}

// PlanExecutionError reports a configuration whose plan could not be obtained or used.
type PlanExecutionError struct {
	Configuration Configuration
	Reason        string
	Err           error
}

func (e *PlanExecutionError) Error() string {
	msg := fmt.Sprintf("explore: %s: %s", e.Configuration, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlanExecutionError) Unwrap() error {
	return e.Err
}

// Sample is one collected plan and its total cost.
type Sample struct {
	// ID is "QEP" for the baseline and "AQP n" for the n-th collected alternative.
	ID            string
	Baseline      bool
	Configuration Configuration
	// TotalCost is the root node's reported total cost.
	TotalCost float64
	Plan      *model.Explain
}

// Dropped is a configuration that did not produce a sample.
type Dropped struct {
	Configuration Configuration
	// Err is set when the plan could not be obtained.
	Err error
	// DuplicateOf names the sample with the same plan when the configuration was a duplicate.
	DuplicateOf string
}

// Request describes one exploration run.
type Request struct {
	Query           string
	Database        string
	Switches        []Switch
	IncludeDefaults bool
}

// Exploration is the result of a run. Samples holds the baseline first, then alternatives in
// configuration order.
type Exploration struct {
	RunID     string
	Query     string
	Database  string
	Attempted int
	Samples   []Sample
	Dropped   []Dropped
}

// Baseline returns the baseline sample.
func (e *Exploration) Baseline() Sample {
	return e.Samples[0]
}

// Alternatives returns the samples other than the baseline.
func (e *Exploration) Alternatives() []Sample {
	return e.Samples[1:]
}

// LargeExploration is the configuration count from which Explore warns about the run's length.
const LargeExploration = 128

// Explorer runs explorations against an Executor.
type Explorer struct {
	Executor Executor
	Logger   *slog.Logger
	Metrics  *Metrics
	// Parallelism above 1 explains that many configurations at once. The executor must then
	// give every call its own session.
	Parallelism int
}

type outcome struct {
	plan *model.Explain
	err  error
	done bool
}

// Explore obtains the baseline plan and one plan per enumerated configuration. A configuration
// that fails is dropped and logged. A failing baseline aborts the run. On cancellation the
// samples collected so far are returned together with the context error.
func (x *Explorer) Explore(ctx context.Context, req Request) (*Exploration, error) {
	if x.Executor == nil {
		return nil, errors.New("explore: no executor")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("explore: empty query")
	}
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}

	run := &Exploration{RunID: uuid.NewString(), Query: req.Query, Database: req.Database}
	logger = logger.With(slog.String("run_id", run.RunID), slog.String("database", req.Database))

	ctx, span := tracer.Start(ctx, "Explore", trace.WithAttributes(
		attribute.String("run_id", run.RunID),
		attribute.String("database", req.Database),
		attribute.Int("switches", len(req.Switches)),
	))
	defer span.End()

	baseline, err := x.explain(ctx, req, Configuration{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "baseline failed")
		return nil, err
	}
	run.Samples = append(run.Samples, Sample{
		ID:        BaselineID,
		Baseline:  true,
		TotalCost: baseline.Plan.TotalCost,
		Plan:      baseline,
	})

	configs := Enumerate(req.Switches, req.IncludeDefaults)
	logger.Debug("exploring configurations", slog.Int("count", len(configs)), slog.Int("parallelism", x.Parallelism))
	if len(configs) >= LargeExploration {
		logger.Warn("exploring many configurations, consider selecting fewer switches",
			slog.Int("count", len(configs)), slog.Int("switches", len(req.Switches)))
	}

	results := x.runAll(ctx, req, configs)
	x.collect(run, configs, results, logger)

	span.SetAttributes(
		attribute.Int("samples", len(run.Samples)),
		attribute.Int("dropped", len(run.Dropped)),
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return run, err
	}
	return run, nil
}

func (x *Explorer) runAll(ctx context.Context, req Request, configs []Configuration) []outcome {
	results := make([]outcome, len(configs))
	runOne := func(i int) {
		plan, err := x.explain(ctx, req, configs[i])
		if ctx.Err() != nil {
			// the in-flight configuration is discarded
			return
		}
		results[i] = outcome{plan: plan, err: err, done: true}
	}

	if x.Parallelism <= 1 {
		for i := range configs {
			if ctx.Err() != nil {
				break
			}
			runOne(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(x.Parallelism)
	for i := range configs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() == nil {
				runOne(i)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (x *Explorer) collect(run *Exploration, configs []Configuration, results []outcome, logger *slog.Logger) {
	seen := map[string]string{signature(run.Samples[0].Plan): BaselineID}

	for i, res := range results {
		cfg := configs[i]
		if !res.done {
			x.Metrics.observeOutcome(OutcomeCancelled)
			continue
		}
		run.Attempted++

		if res.err != nil {
			x.Metrics.observeOutcome(OutcomeFailed)
			logger.Warn("dropping configuration", slog.String("configuration", cfg.String()), slog.Any("error", res.err))
			run.Dropped = append(run.Dropped, Dropped{Configuration: cfg, Err: res.err})
			continue
		}

		sig := signature(res.plan)
		if id, ok := seen[sig]; ok {
			x.Metrics.observeOutcome(OutcomeDuplicate)
			logger.Debug("duplicate plan", slog.String("configuration", cfg.String()), slog.String("duplicate_of", id))
			run.Dropped = append(run.Dropped, Dropped{Configuration: cfg, DuplicateOf: id})
			continue
		}

		id := fmt.Sprintf("AQP %d", len(run.Samples))
		seen[sig] = id
		x.Metrics.observeOutcome(OutcomeCollected)
		run.Samples = append(run.Samples, Sample{
			ID:            id,
			Configuration: cfg,
			TotalCost:     res.plan.Plan.TotalCost,
			Plan:          res.plan,
		})
	}
}

func (x *Explorer) explain(ctx context.Context, req Request, cfg Configuration) (*model.Explain, error) {
	ctx, span := tracer.Start(ctx, "ExplainConfiguration", trace.WithAttributes(
		attribute.String("configuration", cfg.String()),
	))
	defer span.End()

	fail := func(reason string, err error) (*model.Explain, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, &PlanExecutionError{Configuration: cfg, Reason: reason, Err: err}
	}

	start := time.Now()
	payload, err := x.Executor.Explain(ctx, req.Database, req.Query, cfg)
	x.Metrics.observeExplain(time.Since(start))
	if err != nil {
		return fail("explain failed", err)
	}

	plan, err := parser.ParseDocument(payload)
	if err != nil {
		return fail("malformed plan", err)
	}
	if cfg.Forbids(plan.Plan) {
		return fail("planner ignored switch", fmt.Errorf("root %s is turned off", plan.Plan.Label()))
	}
	return plan, nil
}

// signature identifies a physical plan by its total cost and the pre-order sequence of its
// node types as PostgreSQL names them. Aggregates also carry their strategy.
func signature(plan *model.Explain) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(plan.Plan.TotalCost, 'g', -1, 64))
	plan.Plan.Walk(func(node *model.PlanNode) {
		b.WriteByte('|')
		b.WriteString(node.NodeType)
		if node.Strategy != "" {
			b.WriteByte('/')
			b.WriteString(node.Strategy)
		}
	})
	return b.String()
}

package inundation

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// An ErrorPolicy determines what happens when a scenario fails.
type ErrorPolicy int

const (
	// AbortOnError stops at the first failed scenario and returns its error.
	AbortOnError ErrorPolicy = iota
	// SkipOnError logs failed scenarios and omits them from the collection.
	SkipOnError
)

// ParseErrorPolicy parses "abort" or "skip".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "abort", "":
		return AbortOnError, nil
	case "skip":
		return SkipOnError, nil
	default:
		return 0, fmt.Errorf("%w: error policy %q", ErrInvalidArgument, s)
	}
}

func (p ErrorPolicy) String() string {
	switch p {
	case AbortOnError:
		return "abort"
	case SkipOnError:
		return "skip"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// A LabelFunc returns the label of the scenario for a sample.
type LabelFunc func(Sample) string

// DefaultLabel labels a scenario with its water level and time.
func DefaultLabel(sample Sample) string {
	return fmt.Sprintf("%.2f m %s", sample.Level, sample.Time.Format("2006-01-02 15:04"))
}

// A Scenario is the inundation extent for a characteristic water level.
type Scenario struct {
	Label    string
	Sample   Sample
	Polygons *PolygonSet
}

// A ScenarioCollection is an ordered collection of scenarios. The order is the
// presentation order.
type ScenarioCollection struct {
	Scenarios []Scenario
}

// Get returns the first scenario with the given label.
func (c *ScenarioCollection) Get(label string) (Scenario, bool) {
	for _, scenario := range c.Scenarios {
		if scenario.Label == label {
			return scenario, true
		}
	}
	return Scenario{}, false
}

// Labels returns the labels of c in order.
func (c *ScenarioCollection) Labels() []string {
	labels := make([]string, 0, len(c.Scenarios))
	for _, scenario := range c.Scenarios {
		labels = append(labels, scenario.Label)
	}
	return labels
}

// An Orchestrator computes a scenario per characteristic water level.
type Orchestrator struct {
	mapper      *ThresholdMapper
	workers     int
	errorPolicy ErrorPolicy
	labelFunc   LabelFunc
	logger      *zap.Logger
}

// An OrchestratorOption sets an option on an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkers sets the maximum number of scenarios computed concurrently.
func WithWorkers(workers int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.workers = workers
	}
}

// WithErrorPolicy sets the error policy. The default is AbortOnError.
func WithErrorPolicy(errorPolicy ErrorPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.errorPolicy = errorPolicy
	}
}

// WithLabelFunc sets the function used to label scenarios.
func WithLabelFunc(labelFunc LabelFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.labelFunc = labelFunc
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator returns a new Orchestrator that uses mapper.
func NewOrchestrator(mapper *ThresholdMapper, options ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		mapper:    mapper,
		workers:   runtime.GOMAXPROCS(0),
		labelFunc: DefaultLabel,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		option(o)
	}
	o.workers = max(o.workers, 1)
	return o
}

// Run computes a scenario for each sample in levels over raster, clipped to aoi
// if aoi is not empty. raster is shared read-only between workers and each
// worker produces its own polygon set. Results are collected in the order of
// levels once every worker has finished.
func (o *Orchestrator) Run(ctx context.Context, raster *Raster, levels []Sample, aoi *PolygonSet) (*ScenarioCollection, error) {
	results := make([]*PolygonSet, len(levels))
	errs := make([]error, len(levels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, sample := range levels {
		g.Go(func() error {
			polygons, err := o.mapper.Polygons(gctx, raster, sample.Level, aoi)
			if err != nil {
				scenariosTotal.WithLabelValues("error").Inc()
				if o.errorPolicy == AbortOnError {
					return fmt.Errorf("%s: %w", o.labelFunc(sample), err)
				}
				errs[i] = err
				return nil
			}
			scenariosTotal.WithLabelValues("ok").Inc()
			results[i] = polygons
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	collection := &ScenarioCollection{
		Scenarios: make([]Scenario, 0, len(levels)),
	}
	for i, sample := range levels {
		label := o.labelFunc(sample)
		if errs[i] != nil {
			o.logger.Warn("skipping scenario",
				zap.String("label", label),
				zap.Error(errs[i]),
			)
			continue
		}
		o.logger.Info("computed scenario",
			zap.String("label", label),
			zap.Float64("waterLevel", sample.Level),
			zap.Int("polygons", len(results[i].Polygons)),
			zap.Float64("area", results[i].Area()),
		)
		collection.Scenarios = append(collection.Scenarios, Scenario{
			Label:    label,
			Sample:   sample,
			Polygons: results[i],
		})
	}
	return collection, nil
}

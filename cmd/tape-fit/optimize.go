package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-tape/tape"
	"github.com/cwbudde/mayfly"
)

type optimizationConfig struct {
	eval             *evaluator
	baseParams       *tape.Params
	defs             []knobDef
	initCandidate    candidate
	seed             int64
	timeBudget       float64
	maxEvals         int
	reportEvery      int
	checkpointEvery  int
	mayflyVariant    string
	mayflyPop        int
	mayflyRoundEvals int
	workers          int
	outputSession    string
	reportPath       string
	dryPath          string
	referencePath    string
	sessionPath      string
	writeBest        string
}

type optimizationResult struct {
	best        candidate
	bestMetrics fitMetrics
	evals       int
	elapsed     float64
	checkpoints int
}

func (cfg *optimizationConfig) info(elapsed float64, evals int) runInfo {
	return runInfo{
		dryPath:       cfg.dryPath,
		referencePath: cfg.referencePath,
		sessionPath:   cfg.sessionPath,
		outputSession: cfg.outputSession,
		reportPath:    cfg.reportPath,
		sampleRate:    int(cfg.eval.cfg.SampleRate),
		elapsed:       elapsed,
		evals:         evals,
		variant:       strings.ToLower(cfg.mayflyVariant),
	}
}

// optimizer runs Mayfly rounds on several workers against one shared
// evaluation budget and keeps the best candidate seen.
type optimizer struct {
	cfg      *optimizationConfig
	variant  string
	start    time.Time
	deadline time.Time

	evals  atomic.Int64
	rounds atomic.Int64

	mu          sync.Mutex
	best        candidate
	bestMetrics fitMetrics
	improves    int64

	// persistMu guards the files written on improvement.
	persistMu   sync.Mutex
	persisted   int64
	checkpoints int
}

// improvement is a snapshot of a new best taken under the optimizer lock.
type improvement struct {
	num        int64
	best       candidate
	metrics    fitMetrics
	checkpoint bool
}

func runOptimization(cfg *optimizationConfig) (*optimizationResult, error) {
	o, err := newOptimizer(cfg)
	if err != nil {
		return nil, err
	}
	workers := cfg.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	for range max(workers, 1) {
		wg.Go(o.work)
	}
	wg.Wait()
	return o.result(), nil
}

func newOptimizer(cfg *optimizationConfig) (*optimizer, error) {
	start := time.Now()
	o := &optimizer{
		cfg:      cfg,
		variant:  strings.ToLower(cfg.mayflyVariant),
		start:    start,
		deadline: start.Add(time.Duration(cfg.timeBudget * float64(time.Second))),
		best:     cloneCandidate(cfg.initCandidate),
	}
	m, err := o.evaluate(o.best)
	if err != nil {
		return nil, fmt.Errorf("initial evaluation failed: %w", err)
	}
	o.bestMetrics = m
	o.evals.Store(1)
	fmt.Printf("Start score=%.4f response=%.2fdB similarity=%.2f%%\n", m.Score, m.ResponseRMSEDB, m.Similarity*100.0)
	return o, nil
}

func (o *optimizer) evaluate(c candidate) (fitMetrics, error) {
	return o.cfg.eval.evaluate(applyCandidate(o.cfg.baseParams, o.cfg.defs, c))
}

func (o *optimizer) elapsed() float64 { return time.Since(o.start).Seconds() }

func (o *optimizer) exhausted() bool {
	return time.Now().After(o.deadline) || o.evals.Load() >= int64(o.cfg.maxEvals)
}

func (o *optimizer) work() {
	for !o.exhausted() {
		round := int(o.rounds.Add(1))
		if err := o.round(round); err != nil {
			fmt.Fprintf(os.Stderr, "mayfly round %d setup failed: %v\n", round, err)
			return
		}
	}
}

// round runs one seeded Mayfly search sized to the remaining budget.
func (o *optimizer) round(n int) error {
	remaining := o.cfg.maxEvals - int(o.evals.Load())
	if remaining <= 0 {
		return nil
	}
	iters := max(1, min(o.cfg.mayflyRoundEvals, remaining)/(2*o.cfg.mayflyPop))
	mc, err := newMayflyConfig(o.variant, o.cfg.mayflyPop, len(o.cfg.defs), iters)
	if err != nil {
		return err
	}
	mc.Rand = rand.New(rand.NewSource(o.cfg.seed + int64(n)*7919))
	mc.ObjectiveFunc = func(pos []float64) float64 { return o.objective(n, pos) }
	if _, err := runMayfly(mc); err != nil {
		fmt.Fprintf(os.Stderr, "mayfly round %d failed: %v\n", n, err)
	}
	return nil
}

// objective scores one normalized position. Positions past the deadline or
// budget, and failed renders, score worse than the current best.
func (o *optimizer) objective(round int, pos []float64) float64 {
	if time.Now().After(o.deadline) {
		return o.bestScore() + 1.0
	}
	evalNum, ok := reserveEval(&o.evals, o.cfg.maxEvals)
	if !ok {
		return o.bestScore() + 1.0
	}

	cand := fromNormalized(pos, o.cfg.defs)
	m, err := o.evaluate(cand)
	if err != nil {
		return o.bestScore() + 0.8
	}
	if imp, ok := o.offer(cand, m); ok {
		fmt.Printf("Improved #%d eval=%d score=%.4f response=%.2fdB sim=%.2f%%\n",
			imp.num, evalNum, m.Score, m.ResponseRMSEDB, m.Similarity*100.0)
		o.persist(imp)
	}
	if every := int64(o.cfg.reportEvery); every > 0 && evalNum%every == 0 {
		fmt.Printf("Progress round=%d eval=%d elapsed=%.1fs best=%.4f\n", round, evalNum, o.elapsed(), o.bestScore())
	}
	return m.Score
}

// offer installs c as the best when it beats the current best.
func (o *optimizer) offer(c candidate, m fitMetrics) (improvement, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m.Score >= o.bestMetrics.Score {
		return improvement{}, false
	}
	o.best = cloneCandidate(c)
	o.bestMetrics = m
	o.improves++
	every := int64(o.cfg.checkpointEvery)
	return improvement{
		num:        o.improves,
		best:       cloneCandidate(c),
		metrics:    m,
		checkpoint: every > 0 && o.improves%every == 0,
	}, true
}

// persist writes the best render and, when due, a checkpoint. Snapshots
// older than the newest one written are skipped.
func (o *optimizer) persist(imp improvement) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	if imp.num <= o.persisted {
		return
	}
	o.persisted = imp.num

	if o.cfg.writeBest != "" {
		if err := writeBestRender(o.cfg.writeBest, o.cfg.eval, o.cfg.baseParams, o.cfg.defs, imp.best); err != nil {
			fmt.Fprintf(os.Stderr, "failed to update best candidate wav: %v\n", err)
		}
	}
	if !imp.checkpoint {
		return
	}
	info := o.cfg.info(o.elapsed(), int(o.evals.Load()))
	if err := writeOutputs(info, o.cfg.defs, imp.best, imp.metrics, o.cfg.baseParams, o.checkpoints+1); err != nil {
		fmt.Fprintf(os.Stderr, "checkpoint write failed: %v\n", err)
		return
	}
	o.checkpoints++
}

func (o *optimizer) bestScore() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestMetrics.Score
}

func (o *optimizer) result() *optimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	return &optimizationResult{
		best:        cloneCandidate(o.best),
		bestMetrics: o.bestMetrics,
		evals:       int(o.evals.Load()),
		elapsed:     o.elapsed(),
		checkpoints: o.checkpoints,
	}
}

// reserveEval claims the next evaluation number, failing once limit
// evaluations have been claimed.
func reserveEval(evals *atomic.Int64, limit int) (int64, bool) {
	for {
		cur := evals.Load()
		if cur >= int64(limit) {
			return 0, false
		}
		if evals.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	// NC/2 parent pairs must exist in both populations.
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

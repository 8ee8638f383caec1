// Package decision classifies sampled workload factors and selects the best
// scheduling strategy for them. Selection is two-stage: a 5×5 CPU×IPC lookup
// table gives a fast baseline, then a weighted heuristic scores every
// registered strategy and overrides the table only when the table's answer
// falls outside a configurable fraction of the best score.
package decision

import (
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/sched"
)

// CPULevel buckets CPU utilization into five bands.
type CPULevel uint8

const (
	CPUIdle     CPULevel = iota // < 20%
	CPULow                      // < 40%
	CPUMedium                   // < 60%
	CPUHigh                     // < 80%
	CPUCritical                 // >= 80%

	numCPULevels = 5
)

// IPCLevel buckets inter-task message rates into five bands.
type IPCLevel uint8

const (
	IPCNone    IPCLevel = iota // 0 msg/s
	IPCLow                     // < 100
	IPCMedium                  // < 500
	IPCHigh                    // < 1000
	IPCExtreme                 // >= 1000

	numIPCLevels = 5
)

// Workload is a discrete workload category.
type Workload uint8

const (
	WorkloadIdle Workload = iota
	WorkloadPeriodic
	WorkloadRealTime
	WorkloadInteractive
	WorkloadBatch
	WorkloadAdaptive
	WorkloadMixed
)

func (w Workload) String() string {
	switch w {
	case WorkloadIdle:
		return "idle"
	case WorkloadPeriodic:
		return "periodic"
	case WorkloadRealTime:
		return "real_time"
	case WorkloadInteractive:
		return "interactive"
	case WorkloadBatch:
		return "batch"
	case WorkloadAdaptive:
		return "adaptive"
	case WorkloadMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Factors is one read-only sample of the runtime state the engine decides on.
type Factors struct {
	CPUPercent     uint8  // 0..100
	IPCRate        uint32 // messages per second
	DeadlineMisses uint32 // misses in the sampling window
	WorstLatency   uint64 // worst-case scheduling latency, microseconds
	Contention     uint8  // lock contention percentage, 0..100
	LoadVariance   uint32 // variance of per-window CPU samples
	ReadyCount     int
	CtxSwitchRate  uint32 // context switches per second
	PeriodicRatio  uint8  // percentage of ready tasks with a period
}

// ClassifyCPU maps a utilization percentage to its band.
func ClassifyCPU(pct uint8) CPULevel {
	switch {
	case pct < 20:
		return CPUIdle
	case pct < 40:
		return CPULow
	case pct < 60:
		return CPUMedium
	case pct < 80:
		return CPUHigh
	default:
		return CPUCritical
	}
}

// ClassifyIPC maps a message rate to its band.
func ClassifyIPC(rate uint32) IPCLevel {
	switch {
	case rate == 0:
		return IPCNone
	case rate < 100:
		return IPCLow
	case rate < 500:
		return IPCMedium
	case rate < 1000:
		return IPCHigh
	default:
		return IPCExtreme
	}
}

// Classify maps factors to a workload category using ordered precedence.
// Deadline pressure always wins: any miss or a worst-case latency above
// 100µs classifies as real-time no matter what the other factors say.
func Classify(f Factors) Workload {
	switch {
	case f.DeadlineMisses > 0 || f.WorstLatency > 100:
		return WorkloadRealTime
	case f.CPUPercent < 10:
		return WorkloadIdle
	case f.PeriodicRatio > 80:
		return WorkloadPeriodic
	case f.IPCRate > 500 && f.CPUPercent < 60:
		return WorkloadInteractive
	case f.CPUPercent > 70 && f.IPCRate < 100:
		return WorkloadBatch
	case f.LoadVariance > 30:
		return WorkloadAdaptive
	default:
		return WorkloadMixed
	}
}

// Weights blends the per-concern fit scores. The four weights should sum
// to 100.
type Weights struct {
	CPU        uint16
	IPC        uint16
	Deadline   uint16
	Contention uint16
}

// DefaultWeights favors deadline fitness over raw CPU fitness.
func DefaultWeights() Weights {
	return Weights{CPU: 30, IPC: 25, Deadline: 35, Contention: 10}
}

// Matrix is the CPU-level × IPC-level baseline lookup table.
type Matrix [numCPULevels][numIPCLevels]sched.StrategyID

// DefaultMatrix returns the built-in baseline table. Cells may name
// strategies that are not registered; Decide falls back to the best-scoring
// registered strategy for those.
func DefaultMatrix() Matrix {
	rr := sched.StrategyRoundRobin
	pr := sched.StrategyStaticPriority
	ed := sched.StrategyEDF
	cf := sched.StrategyCFS
	pi := sched.StrategyPriorityInheritance
	ad := sched.StrategyAdaptive
	return Matrix{
		//           IPC: none low med high extreme
		CPUIdle:     {rr, rr, pr, pr, pi},
		CPULow:      {rr, pr, pr, cf, ad},
		CPUMedium:   {pr, pr, cf, cf, ad},
		CPUHigh:     {ed, ed, cf, ad, ad},
		CPUCritical: {ed, ed, ad, ad, ad},
	}
}

// Config carries the engine's tunable thresholds.
type Config struct {
	Weights            Weights
	BiasPercent        uint8  // table answer wins within this fraction of best
	DeadlineMissLimit  uint32 // short-circuit to the real-time strategy above this
	WorstLatencyLimit  uint64 // microseconds
	ContentionLimit    uint8
	RealTimeStrategy   sched.StrategyID
	ContentionStrategy sched.StrategyID
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		BiasPercent:        90,
		DeadlineMissLimit:  5,
		WorstLatencyLimit:  1000,
		ContentionLimit:    50,
		RealTimeStrategy:   sched.StrategyEDF,
		ContentionStrategy: sched.StrategyPriorityInheritance,
	}
}

// Result is one selection outcome.
type Result struct {
	Strategy   sched.StrategyID
	Score      uint8
	Confidence uint8
	Workload   Workload
	Reason     string
}

// Engine selects strategies from sampled factors. Safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	matrix Matrix
	log    *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log.WithComponent("decision")
		}
	}
}

// NewEngine creates a decision engine with the default matrix.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg:    DefaultConfig(),
		matrix: DefaultMatrix(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.BiasPercent == 0 || e.cfg.BiasPercent > 100 {
		e.cfg.BiasPercent = 90
	}
	return e
}

// SetMatrix replaces the baseline table. Every cell must name a valid
// strategy.
func (e *Engine) SetMatrix(m Matrix) error {
	for cpu := range m {
		for ipc := range m[cpu] {
			if !m[cpu][ipc].Valid() {
				return errors.NewValidationError("matrix cell must name a valid strategy").
					WithField("cell").WithValue(int(m[cpu][ipc]))
			}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matrix = m
	return nil
}

// MatrixPick returns the raw table answer for the given factors.
func (e *Engine) MatrixPick(f Factors) sched.StrategyID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix[ClassifyCPU(f.CPUPercent)][ClassifyIPC(f.IPCRate)]
}

// Decide selects the best strategy among the registered ones for the given
// factors. Identical factors and registration sets give identical results.
func (e *Engine) Decide(f Factors, registered []sched.StrategyID) (Result, error) {
	if len(registered) == 0 {
		return Result{}, errors.Wrap(errors.ErrSchedulerNotFound, "no strategies registered")
	}

	e.mu.Lock()
	cfg := e.cfg
	table := e.matrix[ClassifyCPU(f.CPUPercent)][ClassifyIPC(f.IPCRate)]
	e.mu.Unlock()

	workload := Classify(f)

	// Short-circuits bound decision latency under pressure.
	if f.DeadlineMisses > cfg.DeadlineMissLimit || f.WorstLatency > cfg.WorstLatencyLimit {
		if contains(registered, cfg.RealTimeStrategy) {
			return Result{
				Strategy:   cfg.RealTimeStrategy,
				Score:      Score(cfg.RealTimeStrategy, f, cfg.Weights),
				Confidence: 90,
				Workload:   workload,
				Reason:     "deadline pressure",
			}, nil
		}
	}
	if f.Contention > cfg.ContentionLimit {
		if contains(registered, cfg.ContentionStrategy) {
			return Result{
				Strategy:   cfg.ContentionStrategy,
				Score:      Score(cfg.ContentionStrategy, f, cfg.Weights),
				Confidence: 90,
				Workload:   workload,
				Reason:     "contention pressure",
			}, nil
		}
	}

	best := registered[0]
	bestScore := Score(best, f, cfg.Weights)
	for _, id := range registered[1:] {
		if s := Score(id, f, cfg.Weights); s > bestScore {
			best, bestScore = id, s
		}
	}

	if contains(registered, table) {
		tableScore := Score(table, f, cfg.Weights)
		if uint32(tableScore)*100 >= uint32(bestScore)*uint32(cfg.BiasPercent) {
			e.log.Debug("selected baseline strategy",
				"strategy", table.String(), "score", tableScore, "workload", workload.String())
			return Result{
				Strategy:   table,
				Score:      tableScore,
				Confidence: 70,
				Workload:   workload,
				Reason:     "baseline table",
			}, nil
		}
	}

	e.log.Debug("selected best-scoring strategy",
		"strategy", best.String(), "score", bestScore, "workload", workload.String())
	return Result{
		Strategy:   best,
		Score:      bestScore,
		Confidence: bestScore,
		Workload:   workload,
		Reason:     "weighted score",
	}, nil
}

func contains(ids []sched.StrategyID, id sched.StrategyID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fit holds per-concern fitness values (0..100) for one strategy. cpu and
// ipc are indexed by level band.
type fit struct {
	cpu        [numCPULevels]uint8
	ipc        [numIPCLevels]uint8
	deadline   uint8 // fitness when deadline pressure is present
	contention uint8 // fitness when contention is present
}

// fitness encodes how well each strategy suits each band. Values are
// relative; only ordering and rough magnitude matter.
var fitness = map[sched.StrategyID]fit{
	sched.StrategyRoundRobin: {
		cpu:        [numCPULevels]uint8{90, 85, 70, 40, 20},
		ipc:        [numIPCLevels]uint8{80, 70, 50, 30, 20},
		deadline:   10,
		contention: 30,
	},
	sched.StrategyStaticPriority: {
		cpu:        [numCPULevels]uint8{60, 70, 80, 85, 75},
		ipc:        [numIPCLevels]uint8{60, 70, 75, 80, 80},
		deadline:   50,
		contention: 60,
	},
	sched.StrategyEDF: {
		cpu:        [numCPULevels]uint8{40, 55, 70, 90, 95},
		ipc:        [numIPCLevels]uint8{50, 55, 60, 60, 55},
		deadline:   100,
		contention: 40,
	},
	sched.StrategyCFS: {
		cpu:        [numCPULevels]uint8{70, 75, 80, 70, 55},
		ipc:        [numIPCLevels]uint8{60, 70, 85, 90, 85},
		deadline:   20,
		contention: 40,
	},
	sched.StrategyRateMonotonic: {
		cpu:        [numCPULevels]uint8{55, 65, 75, 80, 70},
		ipc:        [numIPCLevels]uint8{55, 55, 50, 45, 40},
		deadline:   85,
		contention: 40,
	},
	sched.StrategyDeadlineMonotonic: {
		cpu:        [numCPULevels]uint8{55, 65, 75, 80, 72},
		ipc:        [numIPCLevels]uint8{55, 55, 50, 45, 40},
		deadline:   90,
		contention: 40,
	},
	sched.StrategyPriorityInheritance: {
		cpu:        [numCPULevels]uint8{55, 65, 70, 70, 65},
		ipc:        [numIPCLevels]uint8{55, 65, 70, 75, 75},
		deadline:   55,
		contention: 100,
	},
	sched.StrategyAdaptive: {
		cpu:        [numCPULevels]uint8{65, 65, 65, 65, 65},
		ipc:        [numIPCLevels]uint8{65, 65, 65, 65, 65},
		deadline:   60,
		contention: 60,
	},
}

// Score rates a strategy against the factors: base 50 plus half the
// weighted fitness blend, capped at 100.
func Score(id sched.StrategyID, f Factors, w Weights) uint8 {
	ft, ok := fitness[id]
	if !ok {
		return 0
	}

	cpuFit := uint32(ft.cpu[ClassifyCPU(f.CPUPercent)])
	ipcFit := uint32(ft.ipc[ClassifyIPC(f.IPCRate)])

	// Deadline fitness only differentiates when there is deadline pressure;
	// without it every strategy is equally acceptable on that axis.
	deadlineFit := uint32(70)
	if f.DeadlineMisses > 0 || f.WorstLatency > 100 {
		deadlineFit = uint32(ft.deadline)
	}
	contentionFit := uint32(70)
	if f.Contention > 30 {
		contentionFit = uint32(ft.contention)
	}

	blend := (cpuFit*uint32(w.CPU) + ipcFit*uint32(w.IPC) +
		deadlineFit*uint32(w.Deadline) + contentionFit*uint32(w.Contention)) / 100

	score := 50 + blend/2
	if score > 100 {
		score = 100
	}
	return uint8(score)
}

// Package engine is the orchestrator that sits on top of the compiler and
// VM: it owns a fixed set of program slots, applies register-file bindings
// around each VM run, and tracks per-slot execution statistics. It plays
// the role the teacher's vm.VM.RunProgram entry point plays for a single
// bytecode image, generalised to many concurrently scheduled programs with
// external I/O binding — the per-slot statistics bookkeeping follows the
// same "one struct owns everything a single run needs" shape as the
// teacher's VM struct itself.
package engine

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stcore/internal/builtins"
	"stcore/internal/bytecode"
	"stcore/internal/clock"
	"stcore/internal/compiler"
	"stcore/internal/modbus"
	"stcore/internal/parser"
	"stcore/internal/persistence"
	"stcore/internal/register"
	"stcore/internal/stateful"
	"stcore/internal/vm"
)

// MaxSlots bounds the number of concurrently loaded programs.
const MaxSlots = 4

// MaxBindingsPerProgram bounds the bindings a single slot may carry.
const MaxBindingsPerProgram = 32

// MaxSourceBytes bounds an uploaded program's source size.
const MaxSourceBytes = 5000

// StepsPerMs is the VM step budget granted per millisecond of a program's
// configured execution interval — see DESIGN.md's max_steps resolution.
const StepsPerMs = 1000

// Direction is a binding's data-flow direction.
type Direction uint8

const (
	Input Direction = iota
	Output
	Bidirectional
)

// Binding ties one compiled variable to one register-file address.
type Binding struct {
	VarIndex  int
	Direction Direction
	Kind      register.Kind
	Address   uint16
	WordCount int
}

func (d Direction) readsInput() bool  { return d == Input || d == Bidirectional }
func (d Direction) writesOutput() bool { return d == Output || d == Bidirectional }

// Stats is a slot's running execution statistics, reported verbatim by
// Snapshot.
type Stats struct {
	ExecutionCount  uint64
	ErrorCount      uint64
	OverrunCount    uint64
	LastExecutionUs int64
	MinExecutionUs  int64
	MaxExecutionUs  int64
	TotalExecutionUs int64
	LastError       string
}

func (s *Stats) record(elapsed time.Duration, res vm.Result) {
	us := elapsed.Microseconds()
	s.ExecutionCount++
	s.LastExecutionUs = us
	s.TotalExecutionUs += us
	if s.ExecutionCount == 1 || us < s.MinExecutionUs {
		s.MinExecutionUs = us
	}
	if us > s.MaxExecutionUs {
		s.MaxExecutionUs = us
	}
	switch {
	case res.Overrun:
		s.OverrunCount++
	case res.Err != nil:
		s.ErrorCount++
		s.LastError = res.Err.Error()
	}
}

// slot is one program's full state: source, compiled bytecode, stateful
// storage, bindings, and statistics.
type slot struct {
	source  string
	enabled bool
	compiled bool

	program *bytecode.Program
	storage *stateful.Storage
	ctx     *builtins.CallContext

	bindings []Binding
	stats    Stats
}

// Config configures an Engine instance.
type Config struct {
	ExecutionIntervalMs uint32
	MaxRequestsPerCycle int
	Register            register.File
	Clock               clock.Clock
	Master              modbus.Master
	Store               persistence.Store
	Logger              *zap.Logger
}

// Engine is the top-level orchestrator over the ≤4 program slots.
type Engine struct {
	cfg Config
	log *zap.SugaredLogger

	globalEnabled bool
	lastTickMs    uint32
	haveTicked    bool

	slots [MaxSlots]slot
}

// New constructs an Engine from the given configuration. A nil Logger
// installs zap's no-op logger so callers never need a nil check.
func New(cfg Config) *Engine {
	if cfg.ExecutionIntervalMs == 0 {
		cfg.ExecutionIntervalMs = 10
	}
	if cfg.MaxRequestsPerCycle <= 0 {
		cfg.MaxRequestsPerCycle = builtins.MaxRequestsDefault
	}
	if cfg.Master == nil {
		cfg.Master = modbus.NewDisabled()
	}
	if cfg.Store == nil {
		cfg.Store = persistence.NewDisabled()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: logger.Sugar(), globalEnabled: true}
}

// CompileError is returned by Upload on a failed compile; it never
// replaces the slot's previously installed program.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string { return e.Message }

var (
	// ErrSlotRange is returned when a slot index is out of [0, MaxSlots).
	ErrSlotRange = errors.New("engine: slot index out of range")
	// ErrSourceTooLarge is returned when uploaded source exceeds MaxSourceBytes.
	ErrSourceTooLarge = errors.New("engine: source exceeds size limit")
	// ErrTooManyBindings is returned when a slot's binding count would exceed MaxBindingsPerProgram.
	ErrTooManyBindings = errors.New("engine: too many bindings for this program")
)

func (e *Engine) checkSlot(slotIdx int) error {
	if slotIdx < 0 || slotIdx >= MaxSlots {
		return ErrSlotRange
	}
	return nil
}

// Upload lexes, parses, and compiles source into slotIdx. On success it
// installs the bytecode and fresh stateful storage and clears prior
// bindings and statistics; on failure the previously installed program
// (if any) is left untouched.
func (e *Engine) Upload(slotIdx int, source string) error {
	if err := e.checkSlot(slotIdx); err != nil {
		return err
	}
	if len(source) > MaxSourceBytes {
		return ErrSourceTooLarge
	}

	prog, perr := parser.New(source).Parse()
	if perr != nil {
		e.log.Warnw("upload: parse failed", "slot", slotIdx, "error", perr)
		return &CompileError{Message: perr.Error()}
	}
	bp, storage, cerr := compiler.Compile(prog, e.cfg.ExecutionIntervalMs)
	if cerr != nil {
		e.log.Warnw("upload: compile failed", "slot", slotIdx, "error", cerr)
		return &CompileError{Message: cerr.Error()}
	}

	s := &e.slots[slotIdx]
	s.source = source
	s.program = bp
	s.storage = storage
	s.ctx = builtins.NewCallContext(e.cfg.Master, e.cfg.Store, e.cfg.MaxRequestsPerCycle)
	s.bindings = nil
	s.stats = Stats{}
	s.compiled = true
	bp.Enabled = s.enabled

	e.log.Debugw("upload: compiled", "slot", slotIdx, "program", bp.Name, "vars", len(bp.Vars))
	return nil
}

// SetEnabled toggles a single slot's run flag; disabling a slot resets its
// stateful storage.
func (e *Engine) SetEnabled(slotIdx int, enabled bool) error {
	if err := e.checkSlot(slotIdx); err != nil {
		return err
	}
	s := &e.slots[slotIdx]
	s.enabled = enabled
	if !enabled && s.storage != nil {
		s.storage.Reset()
	}
	if s.program != nil {
		s.program.Enabled = enabled
	}
	return nil
}

// GlobalEnable toggles whether Tick does anything at all.
func (e *Engine) GlobalEnable(enabled bool) {
	e.globalEnabled = enabled
}

// Bind installs a binding for slotIdx, replacing any existing binding for
// the same (var index, direction) pair.
func (e *Engine) Bind(slotIdx int, varName string, b Binding) error {
	if err := e.checkSlot(slotIdx); err != nil {
		return err
	}
	s := &e.slots[slotIdx]
	if s.program == nil {
		return errors.New("engine: slot has no compiled program")
	}
	idx := -1
	for i, v := range s.program.Vars {
		if v.Name == varName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Errorf("engine: unknown variable %q", varName)
	}
	b.VarIndex = idx

	for i, existing := range s.bindings {
		if existing.VarIndex == idx && existing.Direction == b.Direction {
			s.bindings[i] = b
			return nil
		}
	}
	if len(s.bindings) >= MaxBindingsPerProgram {
		return ErrTooManyBindings
	}
	s.bindings = append(s.bindings, b)
	return nil
}

// Delete clears a slot's source, bytecode, storage, and bindings.
func (e *Engine) Delete(slotIdx int) error {
	if err := e.checkSlot(slotIdx); err != nil {
		return err
	}
	e.slots[slotIdx] = slot{}
	return nil
}

// TickNow samples the engine's configured Clock and runs Tick with it;
// callers that don't drive their own scheduler clock (e.g. the CLI's
// `tick` command) use this instead of threading now_ms through by hand.
func (e *Engine) TickNow() {
	e.Tick(e.cfg.Clock.NowMs())
}

// Tick runs one scheduler tick. It is a no-op unless the engine is
// globally enabled and the configured execution interval has elapsed
// since the last tick that actually ran.
func (e *Engine) Tick(nowMs uint32) {
	if !e.globalEnabled {
		return
	}
	if e.haveTicked && nowMs-e.lastTickMs < e.cfg.ExecutionIntervalMs {
		return
	}
	e.lastTickMs = nowMs
	e.haveTicked = true

	for i := range e.slots {
		e.runSlot(i, nowMs)
	}
}

func (e *Engine) runSlot(i int, nowMs uint32) {
	s := &e.slots[i]
	if !s.enabled || !s.compiled {
		return
	}

	s.ctx.BeginCycle()
	if err := e.applyInputBindings(s); err != nil {
		e.log.Warnw("tick: input binding failed", "slot", i, "error", err)
	}

	maxSteps := int(e.cfg.ExecutionIntervalMs) * StepsPerMs
	v := vm.New(s.program, s.storage, s.ctx, nowMs)

	start := time.Now()
	res := v.Run(maxSteps)
	elapsed := time.Since(start)

	if err := e.applyOutputBindings(s); err != nil {
		e.log.Warnw("tick: output binding failed", "slot", i, "error", err)
	}

	s.stats.record(elapsed, res)
	if res.Err != nil && !res.Overrun {
		e.log.Errorw("tick: vm error", "slot", i, "error", res.Err)
	} else if res.Overrun {
		e.log.Warnw("tick: step budget exceeded", "slot", i, "steps", res.Steps)
	}
}

func (e *Engine) applyInputBindings(s *slot) error {
	if e.cfg.Register == nil {
		return nil
	}
	var firstErr error
	for _, b := range s.bindings {
		if !b.Direction.readsInput() {
			continue
		}
		v, err := readBinding(e.cfg.Register, b, s.program.Vars[b.VarIndex].Type)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "binding var %d", b.VarIndex)
			}
			continue
		}
		s.program.Values[b.VarIndex] = v
	}
	return firstErr
}

func (e *Engine) applyOutputBindings(s *slot) error {
	if e.cfg.Register == nil {
		return nil
	}
	var firstErr error
	for _, b := range s.bindings {
		if !b.Direction.writesOutput() {
			continue
		}
		if err := writeBinding(e.cfg.Register, b, s.program.Values[b.VarIndex]); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "binding var %d", b.VarIndex)
			}
		}
	}
	return firstErr
}

// Snapshot is a read-only view of one slot's state for HTTP/CLI display.
type Snapshot struct {
	SlotIndex int
	Enabled   bool
	Compiled  bool
	Name      string
	Stats     Stats
	Vars      []VarSnapshot
}

// VarSnapshot reports one variable's current value.
type VarSnapshot struct {
	Name  string
	Value float64
}

// Snapshot returns a read-only view of a slot's stats and variables.
func (e *Engine) Snapshot(slotIdx int) (Snapshot, error) {
	if err := e.checkSlot(slotIdx); err != nil {
		return Snapshot{}, err
	}
	s := &e.slots[slotIdx]
	snap := Snapshot{
		SlotIndex: slotIdx,
		Enabled:   s.enabled,
		Compiled:  s.compiled,
		Stats:     s.stats,
	}
	if s.program != nil {
		snap.Name = s.program.Name
		snap.Vars = make([]VarSnapshot, len(s.program.Vars))
		for i, v := range s.program.Vars {
			snap.Vars[i] = VarSnapshot{Name: v.Name, Value: s.program.Values[i].AsFloat64()}
		}
	}
	return snap, nil
}

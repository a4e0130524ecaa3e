// Package stateful holds the fixed-capacity instance pools backing the
// stateful function blocks (timers, edge detectors, counters, latches, and
// the signal-processing blocks). Pool sizes and per-instance fields are
// grounded in the original st_stateful.h storage layout: eight slots per
// block kind, allocated once when a program compiles and indexed at
// runtime by the instance_id embedded in the bytecode, mirroring the
// teacher's HardwareDevice pattern of a fixed, typed, resettable instance
// per lexical device/call site.
package stateful

// Per-kind pool capacity. Every pool in Storage is sized to one of these.
const (
	MaxTimerInstances      = 8
	MaxEdgeInstances       = 8
	MaxCounterInstances    = 8
	MaxLatchInstances      = 8
	MaxHysteresisInstances = 8
	MaxBlinkInstances      = 8
	MaxFilterInstances     = 8
)

// TimerKind distinguishes TON/TOF/TP — they share state shape.
type TimerKind int

const (
	TimerTON TimerKind = iota
	TimerTOF
	TimerTP
)

// Timer is one TON/TOF/TP instance.
type Timer struct {
	Kind      TimerKind
	LastIn    bool
	StartTime uint32
	Running   bool
	Q         bool
	ET        uint32
}

// EdgeKind distinguishes R_TRIG/F_TRIG.
type EdgeKind int

const (
	EdgeRising EdgeKind = iota
	EdgeFalling
)

// Edge is one R_TRIG/F_TRIG instance.
type Edge struct {
	Kind      EdgeKind
	LastState bool
}

// CounterKind distinguishes CTU/CTD/CTUD.
type CounterKind int

const (
	CounterUp CounterKind = iota
	CounterDown
	CounterUpDown
)

// Counter is one CTU/CTD/CTUD instance.
type Counter struct {
	Kind      CounterKind
	CV        int32
	LastCU    bool
	LastCD    bool
	LastReset bool
	LastLoad  bool
}

// LatchKind distinguishes SR (reset priority) from RS (set priority).
type LatchKind int

const (
	LatchSR LatchKind = iota
	LatchRS
)

// Latch is one SR/RS instance.
type Latch struct {
	Kind LatchKind
	Q    bool
}

// Hysteresis is one HYSTERESIS (Schmitt trigger) instance.
type Hysteresis struct {
	Q bool
}

// BlinkPhase tracks where a BLINK instance is in its on/off cycle.
type BlinkPhase int

const (
	BlinkIdle BlinkPhase = iota
	BlinkOn
	BlinkOff
)

// Blink is one BLINK instance.
type Blink struct {
	Phase     BlinkPhase
	Q         bool
	PhaseSinc uint32 // timestamp the current phase began
}

// Filter is one FILTER (first-order IIR low-pass) instance. Prev starts
// implicitly at zero, matching ground truth's zero-initialized out_prev:
// the first sample with tau_ms > 0 is alpha*in, not a raw pass-through.
type Filter struct {
	Prev float32
}

// Storage is the complete set of stateful pools owned by one compiled
// program. It is created alongside the bytecode and reset whenever the
// program is disabled or re-uploaded.
type Storage struct {
	Timers      [MaxTimerInstances]Timer
	TimerCount  int
	Edges       [MaxEdgeInstances]Edge
	EdgeCount   int
	Counters    [MaxCounterInstances]Counter
	CounterCnt  int
	Latches     [MaxLatchInstances]Latch
	LatchCount  int
	Hysteresis  [MaxHysteresisInstances]Hysteresis
	HystCount   int
	Blinks      [MaxBlinkInstances]Blink
	BlinkCount  int
	Filters     [MaxFilterInstances]Filter
	FilterCount int

	// CycleTimeMs is the engine's configured execution interval, consumed
	// by FILTER's alpha = dt/(tau+dt) formula.
	CycleTimeMs uint32

	initialized bool
}

// NewStorage returns an initialised, empty Storage.
func NewStorage(cycleTimeMs uint32) *Storage {
	return &Storage{CycleTimeMs: cycleTimeMs, initialized: true}
}

// Reset clears every allocated instance back to its zero state without
// changing pool counts, matching a program re-upload or disable.
func (s *Storage) Reset() {
	for i := 0; i < s.TimerCount; i++ {
		s.Timers[i] = Timer{Kind: s.Timers[i].Kind}
	}
	for i := 0; i < s.EdgeCount; i++ {
		s.Edges[i] = Edge{Kind: s.Edges[i].Kind}
	}
	for i := 0; i < s.CounterCnt; i++ {
		s.Counters[i] = Counter{Kind: s.Counters[i].Kind}
	}
	for i := 0; i < s.LatchCount; i++ {
		s.Latches[i] = Latch{Kind: s.Latches[i].Kind}
	}
	for i := 0; i < s.HystCount; i++ {
		s.Hysteresis[i] = Hysteresis{}
	}
	for i := 0; i < s.BlinkCount; i++ {
		s.Blinks[i] = Blink{}
	}
	for i := 0; i < s.FilterCount; i++ {
		s.Filters[i] = Filter{}
	}
}

// AllocTimer allocates the next timer slot of the given kind and returns
// its instance id, or -1 if the pool is exhausted.
func (s *Storage) AllocTimer(kind TimerKind) int {
	if s.TimerCount >= MaxTimerInstances {
		return -1
	}
	id := s.TimerCount
	s.Timers[id] = Timer{Kind: kind}
	s.TimerCount++
	return id
}

func (s *Storage) AllocEdge(kind EdgeKind) int {
	if s.EdgeCount >= MaxEdgeInstances {
		return -1
	}
	id := s.EdgeCount
	s.Edges[id] = Edge{Kind: kind}
	s.EdgeCount++
	return id
}

func (s *Storage) AllocCounter(kind CounterKind) int {
	if s.CounterCnt >= MaxCounterInstances {
		return -1
	}
	id := s.CounterCnt
	s.Counters[id] = Counter{Kind: kind}
	s.CounterCnt++
	return id
}

func (s *Storage) AllocLatch(kind LatchKind) int {
	if s.LatchCount >= MaxLatchInstances {
		return -1
	}
	id := s.LatchCount
	s.Latches[id] = Latch{Kind: kind}
	s.LatchCount++
	return id
}

func (s *Storage) AllocHysteresis() int {
	if s.HystCount >= MaxHysteresisInstances {
		return -1
	}
	id := s.HystCount
	s.HystCount++
	return id
}

func (s *Storage) AllocBlink() int {
	if s.BlinkCount >= MaxBlinkInstances {
		return -1
	}
	id := s.BlinkCount
	s.BlinkCount++
	return id
}

func (s *Storage) AllocFilter() int {
	if s.FilterCount >= MaxFilterInstances {
		return -1
	}
	id := s.FilterCount
	s.FilterCount++
	return id
}

func (s *Storage) Timer(id int) *Timer         { return &s.Timers[id] }
func (s *Storage) Edge(id int) *Edge           { return &s.Edges[id] }
func (s *Storage) Counter(id int) *Counter     { return &s.Counters[id] }
func (s *Storage) Latch(id int) *Latch         { return &s.Latches[id] }
func (s *Storage) HysteresisAt(id int) *Hysteresis { return &s.Hysteresis[id] }
func (s *Storage) BlinkAt(id int) *Blink       { return &s.Blinks[id] }
func (s *Storage) FilterAt(id int) *Filter     { return &s.Filters[id] }

package window

// Scheduler tracks the write cursor and decides when a window is complete.
type Scheduler struct {
	geom     Geometry
	cursor   int
	warmedUp bool
}

func NewScheduler(g Geometry) *Scheduler {
	return &Scheduler{geom: g}
}

func (s *Scheduler) Geometry() Geometry {
	return s.geom
}

func (s *Scheduler) Cursor() int {
	return s.cursor
}

// WarmedUp reports whether the cursor has completed at least one full cycle.
func (s *Scheduler) WarmedUp() bool {
	return s.warmedUp
}

// Slots returns the positions the next sample must be written to. The
// secondary slot is only valid when ok is true; it is skipped rather than
// wrapped once it would fall past the end of the buffer.
func (s *Scheduler) Slots() (primary, secondary int, ok bool) {
	primary = s.cursor
	secondary = s.cursor + s.geom.WindowSize
	if secondary >= s.geom.Capacity() {
		return primary, 0, false
	}
	return primary, secondary, true
}

// Advance moves the cursor past the sample just written and reports whether a
// window is ready along with the slot it starts at.
func (s *Scheduler) Advance() (start int, ready bool) {
	s.cursor = (s.cursor + 1) % s.geom.WindowSize
	if s.cursor == 0 {
		s.warmedUp = true
	}
	if !s.warmedUp || s.cursor%s.geom.WindowOffset != 0 || s.cursor+s.geom.WindowOffset > s.geom.WindowSize {
		return 0, false
	}
	index := s.cursor / s.geom.WindowOffset
	return index * s.geom.WindowOffset, true
}

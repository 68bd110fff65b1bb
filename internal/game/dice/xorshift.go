package dice

// State is the persisted position of a battle's random stream. Resolution
// resumes from the stored state, so replaying a turn from the same State
// reproduces every draw.
type State struct {
	Seed   uint32 `json:"seed"`
	Cursor uint32 `json:"cursor"`
}

// floatModulus maps a 32-bit draw into [0, 1).
const floatModulus = 0xFFFF

// Seeded is a counter-mode xorshift32 Source: draw i is xorshift32(seed ^ i).
//
// Seeded is not safe for concurrent use; each resolution owns its own.
type Seeded struct {
	state State
}

// NewSeeded resumes the stream at st.
func NewSeeded(st State) *Seeded {
	return &Seeded{state: st}
}

// State returns the current stream position.
func (s *Seeded) State() State {
	return s.state
}

// Next returns the next raw 32-bit draw and advances the cursor.
func (s *Seeded) Next() uint32 {
	v := xorshift32(s.state.Seed ^ s.state.Cursor)
	s.state.Cursor++
	return v
}

// Intn implements Source.
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" otherwise.
func (s *Seeded) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	return int(s.Next() % uint32(n))
}

// Float64 implements Source.
func (s *Seeded) Float64() float64 {
	return float64(s.Next()%floatModulus) / floatModulus
}

func xorshift32(x uint32) uint32 {
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}

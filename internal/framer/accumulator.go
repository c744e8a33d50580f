package framer

// accumulator is a bounded carry-over buffer. len(buf) is its capacity and
// n the number of occupied bytes, always in [0, len(buf)].
type accumulator struct {
	buf []byte
	n   int
}

func newAccumulator(capacity int) accumulator {
	return accumulator{buf: make([]byte, capacity)}
}

func (a *accumulator) Len() int { return a.n }

func (a *accumulator) Cap() int { return len(a.buf) }

// Bytes returns the occupied prefix. It aliases the buffer.
func (a *accumulator) Bytes() []byte { return a.buf[:a.n] }

// Fits reports whether k more bytes can be appended.
func (a *accumulator) Fits(k int) bool { return a.n+k <= len(a.buf) }

// Append copies p after the occupied bytes. It reports false and leaves the
// buffer unchanged if p does not fit.
func (a *accumulator) Append(p []byte) bool {
	if !a.Fits(len(p)) {
		return false
	}
	a.n += copy(a.buf[a.n:], p)
	return true
}

// ShiftLeft drops the first offset bytes and moves the rest to the front.
// An offset at or past the occupied length empties the buffer.
func (a *accumulator) ShiftLeft(offset int) {
	if offset <= 0 {
		return
	}
	if offset >= a.n {
		a.n = 0
		return
	}
	a.n = copy(a.buf, a.buf[offset:a.n])
}

// Reset discards all occupied bytes and returns how many were dropped.
func (a *accumulator) Reset() int {
	dropped := a.n
	a.n = 0
	return dropped
}

package memory

// ring is a fixed-capacity FIFO of turns. When full, a push overwrites the
// oldest entry. Not safe for concurrent use; callers hold the key lock.
type ring struct {
	buf  []Turn
	head int // next write position
	n    int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = MaxHistory
	}
	return &ring{buf: make([]Turn, capacity)}
}

func (r *ring) push(t Turn) {
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// slice returns the retained turns oldest-first as a fresh slice.
func (r *ring) slice() []Turn {
	out := make([]Turn, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.n }

func (r *ring) reset() {
	clear(r.buf)
	r.head = 0
	r.n = 0
}

package ring_buffer

type bufImpl struct {
	buffer []int16
	head   int
	filled int
}

// New returns a ring buffer keeping the most recent size samples.
func New(size int) Interface {
	return &bufImpl{
		buffer: make([]int16, size),
		head:   0,
	}
}

func (r *bufImpl) Add(samples []int16) {
	if len(r.buffer) == 0 {
		return
	}

	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}

	r.filled += len(samples)
	if r.filled > len(r.buffer) {
		r.filled = len(r.buffer)
	}
}

// Read returns the retained samples oldest first.
func (r *bufImpl) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % max(len(r.buffer), 1)

	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}

	return samples
}

func (r *bufImpl) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}

// Len is the number of samples retained, at most the buffer size.
func (r *bufImpl) Len() int {
	return r.filled
}

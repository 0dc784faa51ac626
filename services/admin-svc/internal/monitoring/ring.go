package monitoring

// ring кольцевой буфер фиксированной ёмкости; при переполнении вытесняет самый старый элемент
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[(r.head+r.size)%len(r.buf)] = v
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring[T]) count() int { return r.size }

// last возвращает n последних элементов от старых к новым; n <= 0 означает все
func (r *ring[T]) last(n int) []T {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	start := r.head + r.size - n
	for i := range n {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// newest последний элемент
func (r *ring[T]) newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

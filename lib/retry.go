package lib

// retrier bounds how many consecutive attempts may fail without progress.
type retrier struct {
	max      int
	failures int
}

func newRetrier(max int) *retrier {
	if max < 1 {
		max = 1
	}
	return &retrier{max: max}
}

// fail records an unsuccessful attempt and reports whether another one is allowed.
func (r *retrier) fail() bool {
	r.failures++
	return r.failures <= r.max
}

// progress resets the failure count after a successful attempt.
func (r *retrier) progress() {
	r.failures = 0
}

func (r *retrier) attempts() int {
	return r.failures
}

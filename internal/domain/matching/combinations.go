package matching

// combinations enumerates k-sized index subsets of [0, n) in lexicographic
// order by choosing the i-th element and recursing on the remainder. A single
// index buffer is reused for every subset, so visit must not retain idx.
//
// accept is consulted whenever an index is appended to the partial subset;
// returning false prunes every subset that extends that prefix. visit returns
// false to stop the enumeration early.
type combinations struct {
	n, k   int
	idx    []int
	accept func(prefix []int, next int) bool
	visit  func(idx []int) bool
}

// run starts the enumeration. It reports false when visit stopped it early.
func (c *combinations) run() bool {
	if c.k <= 0 || c.k > c.n {
		return true
	}
	if cap(c.idx) < c.k {
		c.idx = make([]int, 0, c.k)
	}
	c.idx = c.idx[:0]
	return c.choose(0)
}

func (c *combinations) choose(start int) bool {
	depth := len(c.idx)
	if depth == c.k {
		return c.visit(c.idx)
	}
	// leave room for the k-depth-1 elements still to come
	last := c.n - (c.k - depth)
	for i := start; i <= last; i++ {
		if c.accept != nil && !c.accept(c.idx, i) {
			continue
		}
		c.idx = append(c.idx, i)
		ok := c.choose(i + 1)
		c.idx = c.idx[:depth]
		if !ok {
			return false
		}
	}
	return true
}

// countCombinations returns C(n, k), saturating at max when max > 0.
func countCombinations(n, k, max int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
		if max > 0 && r > max {
			return max
		}
	}
	return r
}

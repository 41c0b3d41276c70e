package strategy

// priceBuffer keeps a rolling window of recent closing prices and exposes
// lightweight trend statistics the strategies use as a fallback when the
// indicator state is still warming up.
type priceBuffer struct {
	max int
	buf []float64
}

func newPriceBuffer(max int) *priceBuffer {
	if max <= 0 {
		max = 16
	}
	return &priceBuffer{max: max, buf: make([]float64, 0, max)}
}

func (p *priceBuffer) Add(v float64) {
	if len(p.buf) == p.max {
		copy(p.buf, p.buf[1:])
		p.buf = p.buf[:p.max-1]
	}
	p.buf = append(p.buf, v)
}

// Values returns a copy of the window, oldest first.
func (p *priceBuffer) Values() []float64 {
	out := make([]float64, len(p.buf))
	copy(out, p.buf)
	return out
}

func (p *priceBuffer) Len() int { return len(p.buf) }

func (p *priceBuffer) Cap() int { return p.max }

// Trend scores the last few moves: +1 for a clear run of rises, -1 for a
// clear run of falls, 0 otherwise.
func (p *priceBuffer) Trend() int {
	n := len(p.buf)
	if n < 2 {
		return 0
	}
	lookback := min(6, n-1)
	score := 0
	for i := n - lookback; i < n; i++ {
		switch {
		case p.buf[i] > p.buf[i-1]:
			score++
		case p.buf[i] < p.buf[i-1]:
			score--
		}
	}
	threshold := max(lookback/3, 2)
	switch {
	case score >= threshold:
		return 1
	case score <= -threshold:
		return -1
	}
	return 0
}

// Slope is the least-squares slope over the last (up to) nine closes.
func (p *priceBuffer) Slope() float64 {
	n := len(p.buf)
	if n < 2 {
		return 0
	}
	start := n - min(9, n)
	var sumX, sumY, sumXY, sumXX float64
	for i := start; i < n; i++ {
		x := float64(i - start)
		y := p.buf[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	count := float64(n - start)
	den := count*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (count*sumXY - sumX*sumY) / den
}

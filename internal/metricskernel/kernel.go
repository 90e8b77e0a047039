// Package metricskernel computes the risk/return primitives shared by every
// other AWFES component: time-weighted Sharpe, hit rate, drawdown, CVaR,
// PSR, DSR, and a Newey-West HAC t-test.
package metricskernel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bikeshrana/awfes/pkg/types"
)

// zeroStdFloor mirrors the teacher's drawdown floor: standard deviations
// below this are treated as zero to avoid blowing up a ratio.
const zeroStdFloor = 1e-10

// ISThreshold implements tau(n) = max(0.1, 2/sqrt(n)), the sample-size
// adaptive floor below which WFE is undefined. A fixed threshold does not
// adapt to fold size and is forbidden.
func ISThreshold(n int) float64 {
	if n <= 0 {
		return 0.1
	}
	return math.Max(0.1, 2/math.Sqrt(float64(n)))
}

// Calculator computes the full metric bundle for one evaluation slice of
// bars: their per-bar pnl, bar duration, and the caller-selected
// annualization factor.
type Calculator struct {
	pnl         []float64
	durationUS  []int64
	annualize   types.AnnualizationFactor
}

// New builds a Calculator over aligned pnl/duration arrays. Panics are
// avoided; mismatched lengths simply truncate to the shorter slice, mirroring
// the defensive style of the inherited calculator.
func New(pnl []float64, durationUS []int64, annualize types.AnnualizationFactor) *Calculator {
	n := len(pnl)
	if len(durationUS) < n {
		n = len(durationUS)
	}
	return &Calculator{
		pnl:        pnl[:n],
		durationUS: durationUS[:n],
		annualize:  annualize,
	}
}

// CalculateAll computes the full metric bundle, mirroring the inherited
// CalculateAllMetrics map-of-everything entrypoint but returning a typed
// bundle instead of a string-keyed map.
func (c *Calculator) CalculateAll() types.MetricBundle {
	mean, std, details := c.sharpeTWComponents()
	sharpeTW := sharpeFromMeanStd(mean, std, float64(c.annualize))

	return types.MetricBundle{
		BarSharpe:       c.barSharpe(),
		SharpeTW:        sharpeTW,
		SharpeTWDetails: details,
		HitRate:         c.hitRate(),
		CumulativePnL:   c.cumulativePnL(),
		MaxDrawdown:     c.maxDrawdown(),
		ProfitFactor:    c.profitFactor(),
		CVaR:            c.cvar(0.05),
		Calmar:          c.calmar(),
		PSR:             c.psr(0, sharpeTW),
		DSR:             c.dsr(sharpeTW, 1),
		HACTStat:        c.hacTStat(5),
		NBars:           len(c.pnl),
	}
}

// sharpeTWComponents computes the duration-weighted mean and standard
// deviation of pnl: w_i = d_i / sum(d_j), mu_w = sum(w_i*pnl_i),
// sigma_w^2 = sum(w_i*(pnl_i-mu_w)^2). Required whenever bar duration is
// non-uniform; equal-weight Sharpe on such data is forbidden by the core
// spec, so this is the only Sharpe path used for range-bar evaluation.
func (c *Calculator) sharpeTWComponents() (float64, float64, types.SharpeTWDetails) {
	n := len(c.pnl)
	if n == 0 {
		return 0, 0, types.SharpeTWDetails{}
	}

	var totalDurationUS float64
	for _, d := range c.durationUS {
		totalDurationUS += float64(d)
	}
	if totalDurationUS <= 0 {
		// Degenerate: fall back to equal weights so the kernel never
		// divides by zero; this only happens for malformed input.
		totalDurationUS = float64(n)
		for i := range c.durationUS {
			c.durationUS[i] = 1
		}
	}

	weights := make([]float64, n)
	for i, d := range c.durationUS {
		weights[i] = float64(d) / totalDurationUS
	}

	var meanW float64
	for i, w := range weights {
		meanW += w * c.pnl[i]
	}

	var varW float64
	for i, w := range weights {
		diff := c.pnl[i] - meanW
		varW += w * diff * diff
	}
	stdW := math.Sqrt(varW)

	const usPerDay = 24 * 60 * 60 * 1e6
	details := types.SharpeTWDetails{
		WeightedMean: meanW,
		WeightedStd:  stdW,
		TotalDays:    totalDurationUS / usPerDay,
		NBars:        n,
	}
	return meanW, stdW, details
}

func sharpeFromMeanStd(mean, std, annualize float64) float64 {
	if std < zeroStdFloor {
		return 0
	}
	return (mean / std) * math.Sqrt(annualize)
}

// barSharpe is the simple equal-weight Sharpe, kept only as a legacy
// comparison figure alongside the authoritative sharpe_tw; it must never be
// used as the decision metric for range-bar data.
func (c *Calculator) barSharpe() float64 {
	if len(c.pnl) < 2 {
		return 0
	}
	mean := stat.Mean(c.pnl, nil)
	std := stat.StdDev(c.pnl, nil)
	return sharpeFromMeanStd(mean, std, float64(c.annualize))
}

func (c *Calculator) hitRate() float64 {
	if len(c.pnl) == 0 {
		return 0
	}
	positive := 0
	for _, p := range c.pnl {
		if p > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(c.pnl))
}

func (c *Calculator) cumulativePnL() float64 {
	total := 0.0
	for _, p := range c.pnl {
		total += p
	}
	return total
}

// maxDrawdown computes drawdown on cumulative equity with a floor on the
// running peak before dividing, matching the kernel's numerical-semantics
// requirement that near-zero denominators never blow up the ratio.
func (c *Calculator) maxDrawdown() float64 {
	if len(c.pnl) == 0 {
		return 0
	}
	equity := 0.0
	peak := zeroStdFloor
	maxDD := 0.0
	for _, p := range c.pnl {
		equity += p
		if equity > peak {
			peak = equity
		}
		floor := peak
		if floor < zeroStdFloor {
			floor = zeroStdFloor
		}
		dd := (floor - equity) / floor
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func (c *Calculator) profitFactor() float64 {
	grossProfit, grossLoss := 0.0, 0.0
	for _, p := range c.pnl {
		if p > 0 {
			grossProfit += p
		} else {
			grossLoss += -p
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// cvar returns the mean of the worst ceil(alpha*N) pnl observations.
func (c *Calculator) cvar(alpha float64) float64 {
	n := len(c.pnl)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), c.pnl...)
	sort.Float64s(sorted)

	k := int(math.Ceil(alpha * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	var sum float64
	for _, p := range sorted[:k] {
		sum += p
	}
	return sum / float64(k)
}

func (c *Calculator) calmar() float64 {
	totalReturn := c.cumulativePnL()
	maxDD := c.maxDrawdown()
	if maxDD < zeroStdFloor {
		return 0
	}
	return (totalReturn * float64(c.annualize) / math.Max(float64(len(c.pnl)), 1)) / maxDD
}

// psr is the Probabilistic Sharpe Ratio: Phi((sr - sr0) * sqrt(n) / sigma_sr),
// using the gonum standard normal CDF via distuv.Normal.
func (c *Calculator) psr(sr0, observedSharpe float64) float64 {
	n := len(c.pnl)
	if n < 2 {
		return 0
	}
	skew := stat.Skew(c.pnl, nil)
	kurt := stat.ExKurtosis(c.pnl, nil)

	sigmaSR2 := (1 - skew*observedSharpe + ((kurt + 2) / 4.0) * observedSharpe * observedSharpe) / float64(n-1)
	if sigmaSR2 <= 0 {
		return 0
	}
	sigmaSR := math.Sqrt(sigmaSR2)
	z := (observedSharpe - sr0) * math.Sqrt(float64(n)) / sigmaSR

	std := distuv.Normal{Mu: 0, Sigma: 1}
	return std.CDF(z)
}

// dsr is the Deflated Sharpe Ratio: PSR evaluated against the expected
// maximum Sharpe under k independent trials, using the Gumbel expected
// maximum with the Mertens higher-moment correction folded into the PSR
// variance term above.
func (c *Calculator) dsr(observedSharpe float64, trials int) float64 {
	if trials < 1 {
		trials = 1
	}
	n := len(c.pnl)
	if n < 2 {
		return 0
	}
	// Expected maximum Sharpe of `trials` iid standard normal draws, via
	// the Gumbel approximation: E[max] ~ (1-gamma)*Phi^-1(1-1/k) + gamma*Phi^-1(1-1/(k*e)).
	const eulerGamma = 0.5772156649
	std := distuv.Normal{Mu: 0, Sigma: 1}
	var sr0 float64
	if trials == 1 {
		sr0 = 0
	} else {
		a := std.Quantile(1 - 1.0/float64(trials))
		b := std.Quantile(1 - 1.0/(float64(trials)*math.E))
		sr0 = (1-eulerGamma)*a + eulerGamma*b
		sr0 /= math.Sqrt(float64(n))
	}
	return c.psr(sr0, observedSharpe)
}

// hacTStat is a Newey-West HAC t-statistic for the hypothesis that mean
// pnl is zero, using `lag` autocorrelation terms in the long-run variance.
func (c *Calculator) hacTStat(lag int) float64 {
	n := len(c.pnl)
	if n < 2 {
		return 0
	}
	mean := stat.Mean(c.pnl, nil)
	centered := make([]float64, n)
	for i, p := range c.pnl {
		centered[i] = p - mean
	}

	gamma0 := 0.0
	for _, d := range centered {
		gamma0 += d * d
	}
	gamma0 /= float64(n)

	longRunVar := gamma0
	for l := 1; l <= lag && l < n; l++ {
		var gammaL float64
		for t := l; t < n; t++ {
			gammaL += centered[t] * centered[t-l]
		}
		gammaL /= float64(n)
		weight := 1 - float64(l)/float64(lag+1)
		longRunVar += 2 * weight * gammaL
	}
	if longRunVar <= 0 {
		return 0
	}
	seMean := math.Sqrt(longRunVar / float64(n))
	if seMean < zeroStdFloor {
		return 0
	}
	return mean / seMean
}

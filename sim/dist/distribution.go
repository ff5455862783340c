// Package dist implements the stochastic samplers used by the simulation
// core.
//
// A Distribution is a closed tagged variant: the sampling algorithm is chosen
// by its Kind rather than by a type hierarchy. Every distribution reports a
// closed support [Min, Max] and supports four families of draws:
//
//   - Sample / SampleAtLeast: unconditioned and conditioned on a lower bound
//   - SampleFor / SampleForAtLeast: conditioned through the Conditioning mode
//     against a Subject at a point in time
//   - SampleWithFactor...: scaled waiting times (rates multiplied by a factor)
//   - SampleInt...: integer draws
//
// Conditioned draws return the residual: a draw x conditioned on x >= a is
// reported as x - a, the remaining waiting time from the conditioning point.
package dist

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/aroellin/rstisim/sim/config"
)

// Kind selects the sampling algorithm of a Distribution.
type Kind int

const (
	KindConstant Kind = iota
	KindExponential
	KindWeibull
	KindUniform
	KindDiscrete
	KindLinear
	KindStepLinear
	KindPoisson
	KindArray
	KindHost
)

var kindNames = map[Kind]string{
	KindConstant:    "constant",
	KindExponential: "exponential",
	KindWeibull:     "weibull",
	KindUniform:     "uniform",
	KindDiscrete:    "discrete",
	KindLinear:      "linear",
	KindStepLinear:  "steplinear",
	KindPoisson:     "poisson",
	KindArray:       "array",
	KindHost:        "host",
}

func (k Kind) String() string { return kindNames[k] }

// Conditioning governs how a point in time is translated before a draw.
type Conditioning int

const (
	// NoConditioning ignores the subject and the time.
	NoConditioning Conditioning = iota
	// OnAge conditions on the subject's age at the given time.
	OnAge
	// OnBirth anchors the draw at the subject's birth.
	OnBirth
	// OnTime conditions on the absolute time.
	OnTime
)

// ErrAboveMaximum is wrapped when a draw is conditioned beyond the support.
var ErrAboveMaximum = errors.New("conditioning on atleast > maximum")

// Distribution is an immutable stochastic sampler.
type Distribution struct {
	kind Kind
	cond Conditioning
	rng  *rand.Rand
	src  *config.Node

	min, max   float64
	imin, imax int

	// Constant
	value float64
	// Exponential, Weibull
	rate, scale, shape float64
	// Discrete, Linear, StepLinear, Poisson: support points and values.
	x  []float64
	ix []int
	y  []float64 // discrete: CDF; otherwise density
	// Linear: normalised CDF over segments.
	cdf []float64
	// StepLinear, Poisson
	rangeMin, rangeMax float64
	densMax            float64
	// Array
	covariate Covariate
	lower     int
	items     []*Distribution
	// Host
	inner *Distribution
}

// Kind returns the sampling algorithm.
func (d *Distribution) Kind() Kind { return d.kind }

// Conditioning returns the conditioning mode.
func (d *Distribution) Conditioning() Conditioning { return d.cond }

// Min returns the lower end of the support.
func (d *Distribution) Min() float64 { return d.min }

// Max returns the upper end of the support.
func (d *Distribution) Max() float64 { return d.max }

// IMin returns floor(Min()).
func (d *Distribution) IMin() int { return d.imin }

// IMax returns floor(Max()).
func (d *Distribution) IMax() int { return d.imax }

// Source returns the configuration node the distribution was built from, if any.
func (d *Distribution) Source() *config.Node { return d.src }

func (d *Distribution) String() string {
	switch d.kind {
	case KindConstant:
		return fmt.Sprintf("constant(%g)", d.value)
	case KindExponential:
		return fmt.Sprintf("exponential(shift=%g, rate=%g, cutat=%g)", d.min, d.rate, d.max)
	case KindWeibull:
		return fmt.Sprintf("weibull(shift=%g, scale=%g, shape=%g, cutat=%g)", d.min, d.scale, d.shape, d.max)
	case KindUniform:
		return fmt.Sprintf("uniform(%g, %g)", d.min, d.max)
	case KindArray:
		return fmt.Sprintf("array(%s, %d..%d)", d.covariate, d.lower, len(d.items)-1)
	case KindHost:
		return fmt.Sprintf("host(%s)", d.inner)
	}
	return fmt.Sprintf("%s(n=%d, range=[%g, %g])", d.kind, len(d.x), d.min, d.max)
}

func (d *Distribution) errorf(format string, args ...any) error {
	if d.src != nil {
		return d.src.Errorf(format, args...)
	}
	return fmt.Errorf(format, args...)
}

func (d *Distribution) aboveMax(atleast float64) error {
	if d.src != nil {
		return &config.Error{
			Path: d.src.Path(),
			Line: d.src.Line(),
			Msg:  fmt.Sprintf("%v (%g > %g)", ErrAboveMaximum, atleast, d.max),
			Err:  ErrAboveMaximum,
		}
	}
	return fmt.Errorf("%w (%g > %g)", ErrAboveMaximum, atleast, d.max)
}

func (d *Distribution) setSupport(min, max float64) {
	d.min, d.max = min, max
	d.imin, d.imax = FloorInt(min), FloorInt(max)
}

// FloorInt converts a sampled value used as an index or count, saturating
// at the int32 range so that infinite values stay ordered.
func FloorInt(v float64) int {
	switch {
	case math.IsInf(v, 1) || v > math.MaxInt32:
		return math.MaxInt32
	case math.IsInf(v, -1) || v < math.MinInt32:
		return math.MinInt32
	}
	return int(math.Floor(v))
}

// open draws from the half-open unit interval (0, 1], safe for logarithms.
func (d *Distribution) open() float64 { return 1 - d.rng.Float64() }

// expo draws an exponential waiting time at the given rate.
func (d *Distribution) expo(rate float64) float64 { return -math.Log(d.open()) / rate }

// CheckRange fails if the support is not contained in [min, max].
func (d *Distribution) CheckRange(min, max float64) error {
	if d.min < min || d.max > max {
		return d.errorf("values out of range: support [%g, %g] not within [%g, %g]", d.min, d.max, min, max)
	}
	return nil
}

// === Unconditioned draws ===

// Sample draws an unconditioned value.
func (d *Distribution) Sample() (float64, error) {
	switch d.kind {
	case KindConstant:
		return d.value, nil
	case KindExponential:
		if d.rate == 0 {
			return d.max, nil
		}
		return math.Min(d.min+d.expo(d.rate), d.max), nil
	case KindWeibull:
		return math.Min(d.min+math.Pow(-math.Log(d.open()), 1/d.shape)*d.scale, d.max), nil
	case KindUniform:
		return d.min + d.rng.Float64()*(d.max-d.min), nil
	case KindDiscrete:
		i, err := d.discreteIndex(d.rng.Float64(), 0, 0)
		if err != nil {
			return 0, err
		}
		return d.x[i], nil
	case KindLinear:
		return d.sampleLinear(), nil
	case KindStepLinear:
		return d.interpolate(0), nil
	case KindPoisson:
		return d.thin(1, 0), nil
	}
	return d.delegate(nil, func(c *Distribution, _ Subject) (float64, error) { return c.Sample() })
}

// SampleAtLeast draws a value x >= atleast and returns x - atleast.
func (d *Distribution) SampleAtLeast(atleast float64) (float64, error) {
	switch d.kind {
	case KindConstant:
		if atleast > d.value {
			return 0, d.aboveMax(atleast)
		}
		return d.value - atleast, nil
	case KindExponential:
		return d.exponentialAtLeast(d.rate, atleast)
	case KindWeibull:
		return d.weibullAtLeast(atleast)
	case KindUniform:
		if atleast > d.max {
			return 0, d.aboveMax(atleast)
		}
		if atleast <= d.min {
			return d.min + d.rng.Float64()*(d.max-d.min) - atleast, nil
		}
		return d.rng.Float64() * (d.max - atleast), nil
	case KindDiscrete:
		return d.discreteAtLeast(atleast)
	case KindLinear:
		return d.linearAtLeast(atleast)
	case KindStepLinear:
		return d.interpolate(atleast), nil
	case KindPoisson:
		return d.thin(1, atleast), nil
	}
	return d.delegate(nil, func(c *Distribution, _ Subject) (float64, error) { return c.SampleAtLeast(atleast) })
}

// SampleWithFactor draws a waiting time whose rate is multiplied by factor.
func (d *Distribution) SampleWithFactor(factor float64) (float64, error) {
	switch d.kind {
	case KindExponential:
		if d.rate == 0 {
			return d.max, nil
		}
		return math.Min(d.min+d.expo(d.rate*factor), d.max), nil
	case KindPoisson:
		return d.thin(factor, 0), nil
	case KindArray, KindHost:
		return d.delegate(nil, func(c *Distribution, _ Subject) (float64, error) { return c.SampleWithFactor(factor) })
	}
	v, err := d.Sample()
	if err != nil {
		return 0, err
	}
	return v / factor, nil
}

// SampleWithFactorAtLeast is SampleWithFactor conditioned on the scaled draw
// being at least atleast; it returns the residual.
func (d *Distribution) SampleWithFactorAtLeast(factor, atleast float64) (float64, error) {
	switch d.kind {
	case KindExponential:
		return d.exponentialAtLeast(d.rate*factor, atleast)
	case KindPoisson:
		return d.thin(factor, atleast), nil
	case KindArray, KindHost:
		return d.delegate(nil, func(c *Distribution, _ Subject) (float64, error) {
			return c.SampleWithFactorAtLeast(factor, atleast)
		})
	}
	// x/factor >= a  <=>  x >= a*factor
	v, err := d.SampleAtLeast(atleast * factor)
	if err != nil {
		return 0, err
	}
	return v / factor, nil
}

// === Kind-specific algorithms ===

func (d *Distribution) exponentialAtLeast(rate, atleast float64) (float64, error) {
	if atleast > d.max {
		return 0, d.aboveMax(atleast)
	}
	if rate == 0 {
		return d.max - atleast, nil
	}
	if atleast <= d.min {
		return math.Min(d.min+d.expo(rate), d.max) - atleast, nil
	}
	return math.Min(d.expo(rate), d.max-atleast), nil
}

// weibullAtLeast inverts the conditional survival function
// S(x | x >= a) = exp(((a-shift)/scale)^k - ((x-shift)/scale)^k).
func (d *Distribution) weibullAtLeast(atleast float64) (float64, error) {
	if atleast > d.max {
		return 0, d.aboveMax(atleast)
	}
	if atleast == d.max {
		return 0, nil
	}
	if atleast <= d.min {
		v, _ := d.Sample()
		return v - atleast, nil
	}
	h := math.Pow((atleast-d.min)/d.scale, d.shape) - math.Log(d.open())
	x := d.min + d.scale*math.Pow(h, 1/d.shape)
	return math.Min(x, d.max) - atleast, nil
}

// discreteIndex returns the first index i >= from with u <= (y[i]-cor)/(1-cor).
func (d *Distribution) discreteIndex(u, cor float64, from int) (int, error) {
	for i := from; i < len(d.y); i++ {
		if u <= (d.y[i]-cor)/(1-cor) {
			return i, nil
		}
	}
	return 0, d.errorf("misspecified distribution function (F[inf] < 1)")
}

func (d *Distribution) discreteAtLeast(atleast float64) (float64, error) {
	if d.min >= atleast {
		v, err := d.Sample()
		return v - atleast, err
	}
	if d.max < atleast {
		return 0, d.aboveMax(atleast)
	}
	k := 1
	for d.x[k] < atleast {
		k++
	}
	cor := d.y[k-1]
	if cor >= 1 {
		return 0, d.errorf("conditioning on %g leaves no probability mass", atleast)
	}
	i, err := d.discreteIndex(d.rng.Float64(), cor, k)
	if err != nil {
		return 0, err
	}
	return d.x[i] - atleast, nil
}

// sampleLinear inverts the CDF of a piecewise-linear density: it selects a
// segment by its mass and solves the quadratic of the segment's CDF.
func (d *Distribution) sampleLinear() float64 {
	u := d.rng.Float64()
	i := 0
	for i < len(d.cdf)-1 && u > d.cdf[i] {
		i++
	}
	return d.invertSegment(i, d.rng.Float64())
}

// invertSegment returns the point of segment i below which the fraction v of
// the segment's mass lies.
func (d *Distribution) invertSegment(i int, v float64) float64 {
	x, y := d.y[i], d.y[i+1]
	a, b := d.x[i], d.x[i+1]
	if b == a {
		return a
	}
	q := (y - x) / (b - a)
	if q == 0 {
		return v*(b-a) + a
	}
	c := 2 / (b - a) / (x + y)
	A := q / 2
	B := x - a*q
	C := a*(A*a-x) - v/c
	D := math.Max(B*B-4*A*C, 0)
	return math.Min(math.Max((-B+math.Sqrt(D))/q, a), b)
}

// cdfBefore is the normalised mass of the segments preceding segment i.
func (d *Distribution) cdfBefore(i int) float64 {
	if i == 0 {
		return 0
	}
	return d.cdf[i-1]
}

// linearCDF evaluates the normalised CDF at t inside the support and returns
// the segment holding t.
func (d *Distribution) linearCDF(t float64) (float64, int) {
	i := 0
	for i < len(d.cdf)-1 && d.x[i+1] <= t {
		i++
	}
	x, y := d.y[i], d.y[i+1]
	a, b := d.x[i], d.x[i+1]
	lo, hi := d.cdfBefore(i), d.cdf[i]
	mass := (x + y) / 2 * (b - a)
	if mass <= 0 {
		return lo, i
	}
	s := t - a
	part := x*s + (y-x)/(b-a)/2*s*s
	return lo + math.Min(part/mass, 1)*(hi-lo), i
}

// linearAtLeast inverts the CDF restricted to [atleast, max]: a uniform on
// [F(atleast), 1] is mapped back through the segment CDFs.
func (d *Distribution) linearAtLeast(atleast float64) (float64, error) {
	if atleast > d.max {
		return 0, d.aboveMax(atleast)
	}
	if atleast == d.max {
		return 0, nil
	}
	if atleast <= d.min {
		return d.sampleLinear() - atleast, nil
	}
	fa, i := d.linearCDF(atleast)
	if fa >= 1 {
		return 0, d.errorf("conditioning on %g leaves no probability mass", atleast)
	}
	u := fa + d.rng.Float64()*(1-fa)
	for i < len(d.cdf)-1 && u > d.cdf[i] {
		i++
	}
	lo, hi := d.cdfBefore(i), d.cdf[i]
	v := 1.0
	if hi > lo {
		v = math.Min(math.Max((u-lo)/(hi-lo), 0), 1)
	}
	return math.Max(d.invertSegment(i, v), atleast) - atleast, nil
}

// interpolate evaluates the piecewise-linear density at t; it is 0 outside
// [rangeMin, rangeMax).
func (d *Distribution) interpolate(t float64) float64 {
	if t < d.rangeMin || t >= d.rangeMax {
		return 0
	}
	i := 0
	for d.x[i+1] <= t {
		i++
	}
	lambda := (t - d.x[i]) / (d.x[i+1] - d.x[i])
	return lambda*d.y[i+1] + (1-lambda)*d.y[i]
}

// thin simulates the first point after atleast of a Poisson process with
// intensity factor*density(t), by thinning a homogeneous process at the
// scaled density's supremum. It returns +Inf when no point falls in the range.
func (d *Distribution) thin(factor, atleast float64) float64 {
	if d.densMax <= 0 || factor <= 0 {
		return math.Inf(1)
	}
	t := atleast
	for t < d.rangeMax {
		t += d.expo(factor * d.densMax)
		if d.rng.Float64() < d.interpolate(t)/d.densMax {
			return t - atleast
		}
	}
	return math.Inf(1)
}

// === Compound kinds ===

// delegate routes a draw of an array or host distribution to the responsible
// sub-distribution.
func (d *Distribution) delegate(s Subject, draw func(*Distribution, Subject) (float64, error)) (float64, error) {
	switch d.kind {
	case KindArray:
		if d.covariate == Sum || d.covariate == Product {
			res := 0.0
			if d.covariate == Product {
				res = 1
			}
			for _, it := range d.items[d.lower:] {
				v, err := draw(it, s)
				if err != nil {
					return 0, err
				}
				if d.covariate == Product {
					res *= v
				} else {
					res += v
				}
			}
			return res, nil
		}
		if s == nil {
			return draw(d.items[d.lower], nil)
		}
		it, err := d.pick(s)
		if err != nil {
			return 0, err
		}
		return draw(it, s)
	case KindHost:
		if s == nil {
			return 0, d.errorf("host distribution needs an infection to sample against")
		}
		h, ok := s.(Hosted)
		if !ok {
			return 0, d.errorf("cannot get host from non-infection object")
		}
		return draw(d.inner, h.HostSubject())
	}
	return 0, d.errorf("%s distribution cannot delegate", d.kind)
}

func (d *Distribution) pick(s Subject) (*Distribution, error) {
	idx, err := s.Number(d.covariate)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, d.errorf("covariate '%s' returned negative value %d", d.covariate, idx)
	}
	if idx >= len(d.items) {
		idx = len(d.items) - 1
	} else if idx < d.lower {
		idx = d.lower
	}
	return d.items[idx], nil
}

func compound(k Kind) bool { return k == KindArray || k == KindHost }

// === Conditioned draws ===

func needSubject(d *Distribution, s Subject) error {
	if s == nil {
		return d.errorf("conditioned distribution needs a subject to sample against")
	}
	return nil
}

// SampleFor draws against subject s at time now, applying the conditioning mode.
func (d *Distribution) SampleFor(s Subject, now float64) (float64, error) {
	if compound(d.kind) {
		return d.delegate(s, func(c *Distribution, cs Subject) (float64, error) { return c.SampleFor(cs, now) })
	}
	switch d.cond {
	case OnAge:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		return d.SampleAtLeast(now - s.Birth())
	case OnBirth:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		v, err := d.Sample()
		return s.Birth() - now + v, err
	case OnTime:
		return d.SampleAtLeast(now)
	}
	return d.Sample()
}

// SampleForAtLeast is SampleFor additionally conditioned on the residual
// exceeding atleast; it returns the residual beyond atleast.
func (d *Distribution) SampleForAtLeast(s Subject, now, atleast float64) (float64, error) {
	if compound(d.kind) {
		return d.delegate(s, func(c *Distribution, cs Subject) (float64, error) {
			return c.SampleForAtLeast(cs, now, atleast)
		})
	}
	switch d.cond {
	case OnAge:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		return d.SampleAtLeast(now - s.Birth() + atleast)
	case OnBirth:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		v, err := d.SampleAtLeast(atleast)
		return s.Birth() - now + v, err
	case OnTime:
		return d.SampleAtLeast(now + atleast)
	}
	return d.SampleAtLeast(atleast)
}

// SampleWithFactorFor is the scaled form of SampleFor.
func (d *Distribution) SampleWithFactorFor(factor float64, s Subject, now float64) (float64, error) {
	if compound(d.kind) {
		return d.delegate(s, func(c *Distribution, cs Subject) (float64, error) {
			return c.SampleWithFactorFor(factor, cs, now)
		})
	}
	switch d.cond {
	case OnAge:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		return d.SampleWithFactorAtLeast(factor, now-s.Birth())
	case OnBirth:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		v, err := d.SampleWithFactor(factor)
		return s.Birth() - now + v, err
	case OnTime:
		return d.SampleWithFactorAtLeast(factor, now)
	}
	return d.SampleWithFactor(factor)
}

// SampleWithFactorForAtLeast is the scaled form of SampleForAtLeast.
func (d *Distribution) SampleWithFactorForAtLeast(factor float64, s Subject, now, atleast float64) (float64, error) {
	if compound(d.kind) {
		return d.delegate(s, func(c *Distribution, cs Subject) (float64, error) {
			return c.SampleWithFactorForAtLeast(factor, cs, now, atleast)
		})
	}
	switch d.cond {
	case OnAge:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		return d.SampleWithFactorAtLeast(factor, now-s.Birth()+atleast)
	case OnBirth:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		v, err := d.SampleWithFactorAtLeast(factor, atleast)
		return s.Birth() - now + v, err
	case OnTime:
		return d.SampleWithFactorAtLeast(factor, now+atleast)
	}
	return d.SampleWithFactorAtLeast(factor, atleast)
}

// === Integer draws ===

// SampleInt draws an unconditioned integer.
func (d *Distribution) SampleInt() (int, error) {
	switch d.kind {
	case KindConstant:
		return d.imin, nil
	case KindUniform:
		return d.imin + d.rng.Intn(d.imax-d.imin+1), nil
	case KindDiscrete:
		i, err := d.discreteIndex(d.rng.Float64(), 0, 0)
		if err != nil {
			return 0, err
		}
		return d.ix[i], nil
	case KindArray, KindHost:
		v, err := d.delegate(nil, func(c *Distribution, _ Subject) (float64, error) {
			i, err := c.SampleInt()
			return float64(i), err
		})
		return int(v), err
	}
	v, err := d.Sample()
	return FloorInt(v), err
}

// SampleIntAtLeast is floor(SampleAtLeast(atleast)).
func (d *Distribution) SampleIntAtLeast(atleast float64) (int, error) {
	v, err := d.SampleAtLeast(atleast)
	return FloorInt(v), err
}

// SampleIntFor draws an integer against subject s at time now.
func (d *Distribution) SampleIntFor(s Subject, now float64) (int, error) {
	if compound(d.kind) {
		v, err := d.delegate(s, func(c *Distribution, cs Subject) (float64, error) {
			i, err := c.SampleIntFor(cs, now)
			return float64(i), err
		})
		return int(v), err
	}
	switch d.cond {
	case OnAge:
		if err := needSubject(d, s); err != nil {
			return 0, err
		}
		return d.SampleIntAtLeast(now - s.Birth())
	case OnBirth:
		return 0, d.errorf("cannot sample 'frombirth' for integer sampling")
	case OnTime:
		return d.SampleIntAtLeast(now)
	}
	return d.SampleInt()
}

// SampleIntMax draws a uniform integer in [0, n). Only uniform distributions support it.
func (d *Distribution) SampleIntMax(n int) (int, error) {
	if d.kind != KindUniform {
		return 0, d.errorf("%s distribution cannot draw bounded integers", d.kind)
	}
	if n <= 0 {
		return 0, d.errorf("cannot draw an integer below %d", n)
	}
	return d.rng.Intn(n), nil
}

// Float64 draws a raw uniform number in [0, 1) from the distribution's core.
func (d *Distribution) Float64() float64 { return d.rng.Float64() }

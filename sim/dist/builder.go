package dist

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/aroellin/rstisim/sim/config"
)

// Cores hands out the random cores distributions draw from.
type Cores interface {
	Core(i int) *rand.Rand
}

// Scope resolves the names a distribution definition may refer to. A scope
// is either a single entity type (which has bins) or a whole collection of
// types (which has types).
type Scope interface {
	// Bins returns the bin names when the scope is a single entity type.
	Bins() ([]string, bool)
	// Types returns the scope and name of every type when the scope is a collection.
	Types() ([]Scope, []string, bool)
	// Host returns the scope of the host collection, if there is one.
	Host() (Scope, bool)
}

func scopeBins(s Scope) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	return s.Bins()
}

func scopeTypes(s Scope) ([]Scope, []string, bool) {
	if s == nil {
		return nil, nil, false
	}
	return s.Types()
}

func scopeHost(s Scope) (Scope, bool) {
	if s == nil {
		return nil, false
	}
	return s.Host()
}

// Builder turns configuration nodes into distributions.
type Builder struct {
	cores Cores
}

// NewBuilder returns a builder drawing random cores from c.
func NewBuilder(c Cores) *Builder {
	return &Builder{cores: c}
}

func (b *Builder) core(n *config.Node) (*rand.Rand, error) {
	k := 0
	if rc := n.Child("randcore"); rc != nil {
		v, err := rc.Int(0)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, rc.Errorf("randcore must not be negative")
		}
		k = v
	}
	return b.cores.Core(k), nil
}

// Constant returns a distribution that always yields v.
func (b *Builder) Constant(v float64) *Distribution {
	return newConstant(b.cores.Core(0), nil, v)
}

// Uniform returns the uniform distribution on [min, max].
func (b *Builder) Uniform(min, max float64) *Distribution {
	d := &Distribution{kind: KindUniform, rng: b.cores.Core(0)}
	d.setSupport(min, max)
	return d
}

// Exponential returns a shifted exponential distribution cut at cutat.
func (b *Builder) Exponential(shift, rate, cutat float64) (*Distribution, error) {
	return newExponential(b.cores.Core(0), nil, NoConditioning, shift, rate, cutat)
}

// Discrete returns the distribution taking value x[i] with probability p[i].
func (b *Builder) Discrete(x, p []float64) (*Distribution, error) {
	y, err := probabilitiesToCDF(nil, p)
	if err != nil {
		return nil, err
	}
	return newDiscrete(b.cores.Core(0), nil, NoConditioning, x, y)
}

func newConstant(rng *rand.Rand, src *config.Node, v float64) *Distribution {
	d := &Distribution{kind: KindConstant, rng: rng, src: src, value: v}
	d.setSupport(v, v)
	return d
}

func newExponential(rng *rand.Rand, src *config.Node, cond Conditioning, shift, rate, cutat float64) (*Distribution, error) {
	d := &Distribution{kind: KindExponential, rng: rng, src: src, cond: cond, rate: rate}
	if shift > cutat {
		return nil, d.errorf("cut point must be bigger than shift")
	}
	if rate < 0 {
		return nil, d.errorf("rate must not be negative")
	}
	d.setSupport(shift, cutat)
	return d, nil
}

func newDiscrete(rng *rand.Rand, src *config.Node, cond Conditioning, x, y []float64) (*Distribution, error) {
	d := &Distribution{kind: KindDiscrete, rng: rng, src: src, cond: cond, x: x, y: y}
	if len(x) == 0 || len(x) != len(y) {
		return nil, d.errorf("incompatible arguments")
	}
	for i := 1; i < len(x); i++ {
		if x[i-1] > x[i] {
			return nil, d.errorf("values must be given in non-decreasing order")
		}
	}
	if y[len(y)-1] != 1 {
		return nil, d.errorf("distribution function does not end in 1")
	}
	d.ix = make([]int, len(x))
	for i, v := range x {
		d.ix[i] = FloorInt(v)
	}
	d.setSupport(x[0], x[len(x)-1])
	return d, nil
}

// Build creates the distribution described by n. scope resolves bin and type
// names and may be nil when the definition refers to neither.
func (b *Builder) Build(n *config.Node, scope Scope) (*Distribution, error) {
	if n == nil {
		return nil, &config.Error{Msg: "missing distribution", Err: config.ErrNotFound}
	}
	if sub := n.Child("distribution"); sub != nil {
		return b.Build(sub, scope)
	}
	rng, err := b.core(n)
	if err != nil {
		return nil, err
	}
	if n.IsNumeric() {
		if n.Len() == 1 {
			v, _ := n.Float(0)
			return newConstant(rng, n, v), nil
		}
		p, _ := n.Floats()
		y, err := probabilitiesToCDF(n, p)
		if err != nil {
			return nil, err
		}
		x := make([]float64, len(p))
		for i := range x {
			x[i] = float64(i)
		}
		return newDiscrete(rng, n, NoConditioning, x, y)
	}
	if !n.IsMap() {
		return nil, n.Errorf("expected a number, a list of probabilities or a distribution definition")
	}

	typ, err := inferType(n)
	if err != nil {
		return nil, err
	}
	cond, err := conditioning(n)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "simple":
		return b.buildSimple(rng, n, cond)
	case "linear":
		return b.buildLinear(rng, n, cond)
	case "exponential":
		return b.buildExponential(rng, n, cond)
	case "constant":
		return b.buildStepLinear(rng, n, cond)
	case "weibull":
		return b.buildWeibull(rng, n, cond)
	case "uniform":
		return b.buildUniform(rng, n, cond)
	case "array":
		return b.buildArray(n, scope)
	case "host":
		return b.buildHost(n, scope)
	}
	return nil, n.Errorf("unknown distribution type '%s'", typ)
}

func inferType(n *config.Node) (string, error) {
	switch {
	case n.Exists("type"):
		return n.StringAt("type")
	case n.Exists("rate"):
		return "exponential", nil
	case n.Exists("density"):
		return "linear", nil
	case n.Exists("depends"):
		return "array", nil
	case n.Exists("host"):
		return "host", nil
	}
	return "simple", nil
}

func conditioning(n *config.Node) (Conditioning, error) {
	rel := n.Child("relativeto")
	if rel == nil {
		return NoConditioning, nil
	}
	s, err := rel.String(0)
	if err != nil {
		return 0, err
	}
	switch s {
	case "now":
		return NoConditioning, nil
	case "age":
		return OnAge, nil
	case "birth":
		return OnBirth, nil
	case "time":
		return OnTime, nil
	}
	return 0, rel.Errorf("unknown conditioning type '%s'", s)
}

// === Table helpers ===

// supportValues returns the explicit "values", or the grid from + i*step of
// the given length.
func supportValues(n *config.Node, length int) ([]float64, error) {
	if v := n.Child("values"); v != nil {
		return v.Floats()
	}
	if length <= 0 {
		return nil, n.Errorf("missing arguments")
	}
	from, err := n.FloatOr("from", 0)
	if err != nil {
		return nil, err
	}
	step, err := n.FloatOr("step", 1)
	if err != nil {
		return nil, err
	}
	x := make([]float64, length)
	for i := range x {
		x[i] = from + float64(i)*step
	}
	return x, nil
}

func nodeFor(n *config.Node, src *config.Node) *config.Node {
	if src != nil {
		return src
	}
	return n
}

// probabilitiesToCDF accumulates probabilities into a CDF, rescaling with a
// warning when they do not sum to one.
func probabilitiesToCDF(src *config.Node, p []float64) ([]float64, error) {
	y := make([]float64, len(p))
	total := 0.0
	for i, v := range p {
		if v < 0 || math.IsNaN(v) {
			if src != nil {
				return nil, src.Errorf("invalid probabilities")
			}
			return nil, &config.Error{Msg: "invalid probabilities"}
		}
		total += v
		y[i] = total
	}
	if total <= 0 {
		if src != nil {
			return nil, src.Errorf("invalid probabilities")
		}
		return nil, &config.Error{Msg: "invalid probabilities"}
	}
	if total != 1 {
		if math.Abs(total-1) > 1e-9 && src != nil {
			src.Warnf("rescaling probabilities (sum %g)", total)
		}
		for i := range y {
			y[i] /= total
		}
	}
	return y, nil
}

// survivalToCDF converts a survival function at the support points into the
// CDF of the point masses.
func survivalToCDF(src *config.Node, s []float64) ([]float64, error) {
	for i, v := range s {
		if v < 0 || (i > 0 && v > s[i-1]) {
			return nil, src.Errorf("invalid survival function")
		}
	}
	if len(s) == 0 || s[0] <= 0 {
		return nil, src.Errorf("invalid survival function")
	}
	surv := append([]float64(nil), s...)
	if surv[0] != 1 {
		src.Warnf("rescaling survival function")
		f := surv[0]
		for i := range surv {
			surv[i] /= f
		}
	}
	y := make([]float64, len(surv))
	for i := 0; i < len(surv)-1; i++ {
		y[i] = 1 - surv[i+1]
	}
	y[len(y)-1] = 1
	return y, nil
}

func densities(n *config.Node, length int) ([]float64, error) {
	dn := n.Child("density")
	if dn == nil {
		y := make([]float64, length)
		for i := range y {
			y[i] = 1
		}
		return y, nil
	}
	y, err := dn.Floats()
	if err != nil {
		return nil, err
	}
	for _, v := range y {
		if v < 0 || math.IsNaN(v) {
			return nil, dn.Errorf("invalid density function")
		}
	}
	return y, nil
}

// densityTable reads the support points and density of a piecewise-linear
// function; strict requires increasing support points.
func densityTable(n *config.Node, strict bool) ([]float64, []float64, error) {
	length := n.Child("density").Len()
	x, err := supportValues(n, length)
	if err != nil {
		return nil, nil, err
	}
	y, err := densities(n, len(x))
	if err != nil {
		return nil, nil, err
	}
	if len(x) != len(y) {
		return nil, nil, n.Errorf("incompatible arguments")
	}
	if len(x) < 2 {
		return nil, nil, n.Errorf("must be at least of length two")
	}
	for i := 1; i < len(x); i++ {
		if strict && x[i-1] >= x[i] {
			return nil, nil, n.Errorf("values must be given in increasing order")
		}
		if x[i-1] > x[i] {
			return nil, nil, n.Errorf("values must be given in non-decreasing order")
		}
	}
	return x, y, nil
}

// === Per-type builders ===

func (b *Builder) buildSimple(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	probs, surv := n.Child("probabilities"), n.Child("survival")
	length := 0
	switch {
	case probs != nil:
		length = probs.Len()
	case surv != nil:
		length = surv.Len()
	}
	x, err := supportValues(n, length)
	if err != nil {
		return nil, err
	}
	var y []float64
	switch {
	case probs != nil:
		p, err := probs.Floats()
		if err != nil {
			return nil, err
		}
		if y, err = probabilitiesToCDF(probs, p); err != nil {
			return nil, err
		}
	case surv != nil:
		s, err := surv.Floats()
		if err != nil {
			return nil, err
		}
		if y, err = survivalToCDF(surv, s); err != nil {
			return nil, err
		}
	default:
		y = make([]float64, len(x))
		for i := range y {
			y[i] = float64(i+1) / float64(len(x))
		}
	}
	if len(x) != len(y) {
		return nil, n.Errorf("incompatible arguments")
	}
	return newDiscrete(rng, n, cond, x, y)
}

func (b *Builder) buildLinear(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	x, y, err := densityTable(n, false)
	if err != nil {
		return nil, err
	}
	d := &Distribution{kind: KindLinear, rng: rng, src: n, cond: cond, x: x, y: y}
	d.cdf = make([]float64, len(x)-1)
	total := 0.0
	for i := range d.cdf {
		total += (y[i] + y[i+1]) / 2 * (x[i+1] - x[i])
		d.cdf[i] = total
	}
	if total <= 0 {
		return nil, n.Errorf("density must have positive mass")
	}
	for i := range d.cdf {
		d.cdf[i] /= total
	}
	d.ix = make([]int, len(x))
	for i, v := range x {
		d.ix[i] = FloorInt(v)
	}
	d.setSupport(x[0], x[len(x)-1])
	return d, nil
}

func (b *Builder) buildExponential(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	if rn := n.Child("rate"); rn != nil {
		rate, err := rn.Float(0)
		if err != nil {
			return nil, err
		}
		shift, err := n.FloatOr("shift", 0)
		if err != nil {
			return nil, err
		}
		cutat, err := n.FloatOr("cutat", math.Inf(1))
		if err != nil {
			return nil, err
		}
		return newExponential(rng, n, cond, shift, rate, cutat)
	}
	if n.Child("density") == nil {
		return nil, n.Errorf("must give either rate or density for exponential sampling")
	}
	x, y, err := densityTable(n, true)
	if err != nil {
		return nil, err
	}
	d := &Distribution{kind: KindPoisson, rng: rng, src: n, cond: cond, x: x, y: y}
	d.rangeMin, d.rangeMax = x[0], x[len(x)-1]
	for _, v := range y {
		d.densMax = math.Max(d.densMax, v)
	}
	d.setSupport(0, math.Inf(1))
	return d, nil
}

func (b *Builder) buildStepLinear(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	if n.Child("density") == nil {
		if vn := n.Child("value"); vn != nil {
			v, err := vn.Float(0)
			if err != nil {
				return nil, err
			}
			return newConstant(rng, n, v), nil
		}
		return nil, n.Errorf("must give density argument")
	}
	x, y, err := densityTable(n, true)
	if err != nil {
		return nil, err
	}
	d := &Distribution{kind: KindStepLinear, rng: rng, src: n, cond: cond, x: x, y: y}
	d.rangeMin, d.rangeMax = x[0], x[len(x)-1]
	d.setSupport(0, math.Inf(1))
	return d, nil
}

func (b *Builder) buildWeibull(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	shift, err := n.FloatOr("shift", 0)
	if err != nil {
		return nil, err
	}
	scale, err := n.FloatOr("scale", 1)
	if err != nil {
		return nil, err
	}
	shape, err := n.FloatOr("shape", 1)
	if err != nil {
		return nil, err
	}
	cutat, err := n.FloatOr("cutat", math.Inf(1))
	if err != nil {
		return nil, err
	}
	if shift > cutat {
		return nil, n.Errorf("cut point must be bigger than shift")
	}
	if scale <= 0 || shape <= 0 {
		return nil, n.Errorf("scale and shape must be positive")
	}
	d := &Distribution{kind: KindWeibull, rng: rng, src: n, cond: cond, scale: scale, shape: shape}
	d.setSupport(shift, cutat)
	return d, nil
}

func (b *Builder) buildUniform(rng *rand.Rand, n *config.Node, cond Conditioning) (*Distribution, error) {
	min, err := n.FloatOr("min", 0)
	if err != nil {
		return nil, err
	}
	max, err := n.FloatOr("max", 1)
	if err != nil {
		return nil, err
	}
	if min > max {
		return nil, n.Errorf("minimum must not exceed maximum")
	}
	d := &Distribution{kind: KindUniform, rng: rng, src: n, cond: cond}
	d.setSupport(min, max)
	return d, nil
}

func (b *Builder) buildArray(n *config.Node, scope Scope) (*Distribution, error) {
	what, err := n.StringAt("depends")
	if err != nil {
		return nil, err
	}
	cov := Covariate(what)
	var (
		lower, length int
		bins, names   []string
		scopes        []Scope
	)
	switch {
	case counted[cov]:
		if lower, err = n.IntAt("minimum"); err != nil {
			return nil, err
		}
		max, err := n.IntAt("maximum")
		if err != nil {
			return nil, err
		}
		length = max + 1
	case cov == IsPregnant || cov == IsActive:
		length = 2
	case cov == Bin:
		var ok bool
		if bins, ok = scopeBins(scope); !ok {
			return nil, n.Errorf("specify type first (use 'bytype' flag)")
		}
		length = len(bins)
	case cov == Type:
		var ok bool
		if scopes, names, ok = scopeTypes(scope); !ok {
			return nil, n.Errorf("type already specified")
		}
		length = len(names)
	default:
		return nil, n.Errorf("unknown size dependency '%s'", what)
	}
	if lower < 0 {
		return nil, n.Errorf("cannot have indices smaller than 0")
	}
	if length <= lower {
		return nil, n.Errorf("maximum must not be smaller than minimum")
	}

	d := &Distribution{kind: KindArray, src: n, covariate: cov, lower: lower, items: make([]*Distribution, length)}
	for i := lower; i < length; i++ {
		var sub *config.Node
		subScope := scope
		switch cov {
		case IsPregnant, IsActive:
			key := "no"
			if i == 1 {
				key = "yes"
			}
			sub, err = n.Get(key)
		case Bin:
			sub, err = namedOrWildcard(n, bins[i])
		case Type:
			sub, err = namedOrWildcard(n, names[i])
			subScope = scopes[i]
		default:
			sub, err = n.Get(strconv.Itoa(i))
		}
		if err != nil {
			return nil, err
		}
		if d.items[i], err = b.Build(sub, subScope); err != nil {
			return nil, err
		}
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, it := range d.items[lower:] {
		min = math.Min(min, it.min)
		max = math.Max(max, it.max)
	}
	d.setSupport(min, max)
	return d, nil
}

func namedOrWildcard(n *config.Node, name string) (*config.Node, error) {
	if c := n.Child(name); c != nil {
		return c, nil
	}
	if c := n.Child("*"); c != nil {
		return c, nil
	}
	return n.Get(name)
}

func (b *Builder) buildHost(n *config.Node, scope Scope) (*Distribution, error) {
	host, ok := scopeHost(scope)
	if !ok {
		return nil, n.Errorf("type does not have an associated host")
	}
	sub, err := n.Get("host")
	if err != nil {
		return nil, err
	}
	inner, err := b.Build(sub, host)
	if err != nil {
		return nil, err
	}
	d := &Distribution{kind: KindHost, src: n, inner: inner}
	d.setSupport(inner.min, inner.max)
	return d, nil
}

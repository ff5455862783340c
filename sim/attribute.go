package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// NA marks an attribute without a default: the configuration must define it.
var NA = math.NaN()

// Attribute identifies a stochastic parameter installed on the entities of a
// collection.
type Attribute int

type attribute struct {
	name        string
	dist        *dist.Distribution
	fixed       bool
	fixedPerBin bool
	// owner is the entity type the attribute was built relative to; nil when
	// it was built relative to the whole collection.
	owner *Creator
}

// appliesTo reports whether entities of type cr cache the attribute at birth.
func (a *attribute) appliesTo(cr *Creator) bool {
	return a.owner == nil || a.owner == cr
}

// installAttribute registers a distribution as an attribute of the
// collection's entities. With an owner the distribution is built relative to
// that type, otherwise relative to the collection so that it may depend on
// the type.
func (c *Collection) installAttribute(b *dist.Builder, installer *Creator, name string, n *config.Node, owner *Creator) (Attribute, error) {
	a := &attribute{
		name:        c.name + "." + installer.name + "." + name,
		fixedPerBin: n.Exists("fixatbirthbybin"),
		owner:       owner,
	}
	a.fixed = a.fixedPerBin || n.Exists("fixatbirth")
	var scope dist.Scope = c
	if owner != nil {
		scope = owner
	}
	d, err := b.Build(n, scope)
	if err != nil {
		return 0, err
	}
	a.dist = d
	c.attrs = append(c.attrs, a)
	return Attribute(len(c.attrs) - 1), nil
}

// AttributeName returns the qualified name of an attribute.
func (c *Collection) AttributeName(a Attribute) string { return c.attrs[a].name }

// AttributeDistribution returns the distribution behind an attribute.
func (c *Collection) AttributeDistribution(a Attribute) *dist.Distribution {
	return c.attrs[a].dist
}

// InstallAttribute installs the attribute name (below path, if given) of
// this type's configuration on collection. A NaN default makes the key
// mandatory; otherwise a missing key yields the constant default.
func (cr *Creator) InstallAttribute(collection *Collection, name, path string, def float64) (Attribute, error) {
	if path != "" {
		name = path + "." + name
	}
	var n *config.Node
	if math.IsNaN(def) {
		var err error
		if n, err = cr.cfg.Get(name); err != nil {
			return 0, err
		}
	} else if n = cr.cfg.Lookup(name); n == nil {
		n = config.FromValue(def)
	}
	var owner *Creator
	if collection == cr.collection {
		owner = cr
	}
	return collection.installAttribute(cr.sim.builder, cr, name, n, owner)
}

// PairAttribute is a matrix of distributions indexed by the type of one
// entity and the linearised (type, bin) of another.
type PairAttribute struct {
	name  string
	cells [][]*dist.Distribution
}

// At returns the distribution for an entity of type from meeting the
// linearised type/bin to.
func (p *PairAttribute) At(from, to int) (*dist.Distribution, error) {
	if from < 0 || from >= len(p.cells) || to < 0 || to >= len(p.cells[from]) {
		return nil, invariantf("pair attribute '%s' has no entry (%d, %d)", p.name, from, to)
	}
	return p.cells[from][to], nil
}

// SampleFor samples the entry between a and the linearised type/bin of b
// against a.
func (p *PairAttribute) SampleFor(a, b *Person, now float64) (float64, error) {
	d, err := p.At(a.Type(), b.BinLinearised())
	if err != nil {
		return 0, err
	}
	return d.SampleFor(a, now)
}

// InstallPairAttribute reads a pair attribute from this type's
// configuration. A missing key yields def everywhere (or is an error when
// def is NaN), a number applies everywhere, and otherwise every cell starts
// at init and is overridden by the entries listed under 'names'.
func (cr *Creator) InstallPairAttribute(collection *Collection, name string, init, def float64) (*PairAttribute, error) {
	b := cr.sim.builder
	n := cr.cfg.Lookup(name)
	if n == nil && math.IsNaN(def) {
		if _, err := cr.cfg.Get(name); err != nil {
			return nil, err
		}
	}
	fill := init
	switch {
	case n == nil:
		fill = def
	case n.IsNumeric():
		v, err := n.Float(0)
		if err != nil {
			return nil, err
		}
		fill = v
	}
	constant := b.Constant(fill)
	p := &PairAttribute{name: collection.name + "." + cr.name + "." + name}
	p.cells = make([][]*dist.Distribution, collection.Len())
	for i := range p.cells {
		p.cells[i] = make([]*dist.Distribution, collection.TotalBins())
		for k := range p.cells[i] {
			p.cells[i][k] = constant
		}
	}
	if n == nil || n.IsNumeric() {
		return p, nil
	}

	symmetric := false
	if sym := n.Child("symmetric"); sym != nil {
		s, err := sym.String(0)
		if err != nil {
			return nil, err
		}
		symmetric = s == "type"
	}
	names, err := n.Get("names")
	if err != nil {
		return nil, err
	}
	entries, err := names.Strings()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		en, err := n.Get(entry)
		if err != nil {
			return nil, err
		}
		if err := p.installEntry(b, collection, en, symmetric); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PairAttribute) installEntry(b *dist.Builder, c *Collection, n *config.Node, symmetric bool) error {
	fromName, err := n.StringAt("from")
	if err != nil {
		return err
	}
	from, err := c.TypeByName(n, fromName)
	if err != nil {
		return err
	}
	toNode, err := n.Get("to")
	if err != nil {
		return err
	}
	value, err := n.Get("value")
	if err != nil {
		return err
	}
	build := func(t int) (*dist.Distribution, error) { return b.Build(value, c.Creator(t)) }

	var (
		to      int
		binName string
		byBin   = toNode.IsMap()
	)
	if byBin {
		typeName, err := toNode.StringAt("type")
		if err != nil {
			return err
		}
		if to, err = c.TypeByName(toNode, typeName); err != nil {
			return err
		}
		if binName, err = toNode.StringAt("bin"); err != nil {
			return err
		}
	} else {
		typeName, err := toNode.String(0)
		if err != nil {
			return err
		}
		if to, err = c.TypeByName(toNode, typeName); err != nil {
			return err
		}
	}
	if symmetric && len(c.Creator(to).bins) != len(c.Creator(from).bins) {
		return n.Errorf("symmetry not possible if number of bins are different for the types")
	}

	if byBin {
		binTo, err := c.Creator(to).BinByName(binName)
		if err != nil {
			return err
		}
		if p.cells[from][c.Linearise(to, binTo)], err = build(from); err != nil {
			return err
		}
		if symmetric {
			binFrom, err := c.Creator(from).BinByName(binName)
			if err != nil {
				return err
			}
			if p.cells[to][c.Linearise(from, binFrom)], err = build(to); err != nil {
				return err
			}
		}
		return nil
	}
	for bin := range c.Creator(to).bins {
		if p.cells[from][c.Linearise(to, bin)], err = build(from); err != nil {
			return err
		}
		if symmetric {
			if p.cells[to][c.Linearise(from, bin)], err = build(to); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckRange range-checks every cell of the matrix.
func (p *PairAttribute) CheckRange(min, max float64) error {
	for _, row := range p.cells {
		for _, d := range row {
			if err := d.CheckRange(min, max); err != nil {
				return err
			}
		}
	}
	return nil
}

package sim

import (
	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// Creator is an entity type: the named definition shared by all entities of
// one kind (a person type, a partnership type, an infection type, ...). It
// owns the bin names, the initial-bin distribution and the bin transitions.
type Creator struct {
	sim         *Simulator
	collection  *Collection
	name        string
	typ         int
	cfg         *config.Node
	bins        []string
	binDist     *dist.Distribution
	transitions []transition
}

type transition struct {
	name     string
	from, to int
	at       *dist.Distribution
}

// newCreator reads the bin definition of a type and registers it with its
// collection. The initial-bin distribution is built relative to ref.
func newCreator(s *Simulator, c *Collection, name string, cfg *config.Node, ref dist.Scope) (*Creator, error) {
	cr := &Creator{sim: s, collection: c, name: name, cfg: cfg}
	bins := cfg.Child("bins")
	if bins == nil {
		cr.bins = []string{"generic"}
	} else {
		namesNode, err := bins.Get("names")
		if err != nil {
			return nil, err
		}
		if cr.bins, err = namesNode.Strings(); err != nil {
			return nil, err
		}
	}
	typ, err := c.register(cr)
	if err != nil {
		return nil, err
	}
	cr.typ = typ

	if dn := bins.Child("distribution"); dn != nil {
		if cr.binDist, err = s.builder.Build(dn, ref); err != nil {
			return nil, err
		}
		if err := cr.binDist.CheckRange(0, float64(len(cr.bins)-1)); err != nil {
			return nil, err
		}
	} else {
		cr.binDist = s.builder.Constant(0)
	}

	trans := bins.Child("transitions")
	if trans == nil {
		return cr, nil
	}
	namesNode, err := trans.Get("names")
	if err != nil {
		return nil, err
	}
	names, err := namesNode.Strings()
	if err != nil {
		return nil, err
	}
	for _, tn := range names {
		tc, err := trans.Get(tn)
		if err != nil {
			return nil, err
		}
		t := transition{name: tn}
		if t.from, err = cr.binAt(tc, "from"); err != nil {
			return nil, err
		}
		if t.to, err = cr.binAt(tc, "to"); err != nil {
			return nil, err
		}
		at, err := tc.Get("at")
		if err != nil {
			return nil, err
		}
		if t.at, err = s.builder.Build(at, cr); err != nil {
			return nil, err
		}
		cr.transitions = append(cr.transitions, t)
	}
	return cr, nil
}

func (cr *Creator) binAt(n *config.Node, key string) (int, error) {
	name, err := n.StringAt(key)
	if err != nil {
		return 0, err
	}
	return cr.BinByName(name)
}

// Name returns the type name.
func (cr *Creator) Name() string { return cr.name }

// Type returns the type id within the collection.
func (cr *Creator) Type() int { return cr.typ }

// Collection returns the collection the type belongs to.
func (cr *Creator) Collection() *Collection { return cr.collection }

// NumBins returns the number of bins.
func (cr *Creator) NumBins() int { return len(cr.bins) }

// BinName returns the name of bin b.
func (cr *Creator) BinName(b int) string { return cr.bins[b] }

// BinByName resolves a bin name of this type.
func (cr *Creator) BinByName(name string) (int, error) {
	for i, b := range cr.bins {
		if b == name {
			return i, nil
		}
	}
	return 0, cr.cfg.Errorf("internal error in type '%s': bin '%s' not found", cr.name, name)
}

// Linearise maps a bin of this type to the collection's dense index.
func (cr *Creator) Linearise(bin int) int { return cr.collection.Linearise(cr.typ, bin) }

// basetype reads the variant selector of a type definition.
func basetype(cfg *config.Node, def string) (string, error) {
	return cfg.StringOr("basetype", def)
}

// uniformAt builds the optional uniform distribution at key, defaulting to
// the uniform distribution on [0, 1].
func (cr *Creator) uniformAt(key string) (*dist.Distribution, error) {
	if n := cr.cfg.Lookup(key); n != nil {
		return cr.sim.builder.Build(n, nil)
	}
	return cr.sim.builder.Uniform(0, 1), nil
}

// === dist.Scope ===

// Bins implements dist.Scope.
func (cr *Creator) Bins() ([]string, bool) { return cr.bins, true }

// Types implements dist.Scope; a single type has no sub-types.
func (cr *Creator) Types() ([]dist.Scope, []string, bool) { return nil, nil, false }

// Host implements dist.Scope: infection types live in persons.
func (cr *Creator) Host() (dist.Scope, bool) { return cr.collection.Host() }

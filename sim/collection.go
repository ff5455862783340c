package sim

import (
	"fmt"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// Collection is the registry of all entity types of one domain (persons,
// partnerships, infections, ...). It numbers the types densely, linearises
// (type, bin) pairs into one index space and owns the attributes installed
// on its entities.
type Collection struct {
	name     string
	names    []string
	creators []*Creator
	offsets  []int
	total    int
	pick     *dist.Distribution
	attrs    []*attribute
	host     *Collection
}

// newCollection reads the type names at namesNode and the optional
// random-type distribution.
func newCollection(b *dist.Builder, name string, namesNode, distNode *config.Node) (*Collection, error) {
	c := &Collection{name: name}
	if namesNode != nil {
		names, err := namesNode.Strings()
		if err != nil {
			return nil, err
		}
		c.names = names
	}
	c.creators = make([]*Creator, len(c.names))
	c.offsets = make([]int, len(c.names))
	for i := range c.offsets {
		c.offsets[i] = -1
	}
	if distNode != nil {
		d, err := b.Build(distNode, nil)
		if err != nil {
			return nil, err
		}
		c.pick = d
	} else {
		c.pick = b.Constant(0)
	}
	if len(c.names) > 0 {
		if err := c.pick.CheckRange(0, float64(len(c.names)-1)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of types.
func (c *Collection) Len() int { return len(c.names) }

// TypeName returns the name of type t.
func (c *Collection) TypeName(t int) string {
	if t < 0 || t >= len(c.names) {
		return fmt.Sprintf("<type %d>", t)
	}
	return c.names[t]
}

// Creator returns the entity type with id t.
func (c *Collection) Creator(t int) *Creator { return c.creators[t] }

// TotalBins returns the size of the linearised (type, bin) index space.
func (c *Collection) TotalBins() int { return c.total }

// Linearise maps (type, bin) to the dense index.
func (c *Collection) Linearise(t, bin int) int { return c.offsets[t] + bin }

// BinLabels returns the bin names in linearised order.
func (c *Collection) BinLabels() []string {
	out := make([]string, c.total)
	for _, cr := range c.creators {
		if cr == nil {
			continue
		}
		for b, name := range cr.bins {
			out[c.Linearise(cr.typ, b)] = name
		}
	}
	return out
}

// register assigns the type id of a creator by its name.
func (c *Collection) register(cr *Creator) (int, error) {
	t := -1
	for i, n := range c.names {
		if n == cr.name {
			t = i
			break
		}
	}
	if t < 0 {
		return 0, invariantf("could not find type '%s' in %s", cr.name, c.name)
	}
	if c.creators[t] != nil {
		return 0, cr.cfg.Errorf("internal error: type already assigned")
	}
	c.creators[t] = cr
	c.offsets[t] = c.total
	c.total += len(cr.bins)
	return t, nil
}

// TypeByName resolves a type name, reporting an unknown name at n.
func (c *Collection) TypeByName(n *config.Node, name string) (int, error) {
	for i, tn := range c.names {
		if tn == name {
			return i, nil
		}
	}
	return 0, n.Errorf("%s type not found: %s", c.name, name)
}

// RandomCreator draws a type from the collection's type distribution.
func (c *Collection) RandomCreator() (*Creator, error) {
	t, err := c.pick.SampleInt()
	if err != nil {
		return nil, err
	}
	if t < 0 || t >= len(c.creators) || c.creators[t] == nil {
		return nil, invariantf("random %s type %d does not exist", c.name, t)
	}
	return c.creators[t], nil
}

// === dist.Scope ===

// Bins implements dist.Scope; a collection has no bins of its own.
func (c *Collection) Bins() ([]string, bool) { return nil, false }

// Types implements dist.Scope.
func (c *Collection) Types() ([]dist.Scope, []string, bool) {
	scopes := make([]dist.Scope, len(c.creators))
	for i, cr := range c.creators {
		if cr != nil {
			scopes[i] = cr
		} else {
			scopes[i] = unregistered{}
		}
	}
	return scopes, c.names, true
}

// Host implements dist.Scope.
func (c *Collection) Host() (dist.Scope, bool) {
	if c.host == nil {
		return nil, false
	}
	return c.host, true
}

// unregistered stands in for a type whose definition has not been read yet.
type unregistered struct{}

func (unregistered) Bins() ([]string, bool) { return nil, true }

func (unregistered) Types() ([]dist.Scope, []string, bool) { return nil, nil, false }

func (unregistered) Host() (dist.Scope, bool) { return nil, false }

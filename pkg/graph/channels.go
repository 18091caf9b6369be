package graph

import "github.com/xiallc/handel-go/pkg/herr"

// UniversalSetID is the reserved logical-channel id meaning "every Single
// channel in the system".
const UniversalSetID = -1

type channelNodeKind int

const (
	nodeSingle channelNodeKind = iota
	nodeSet
)

type channelNode struct {
	kind        channelNodeKind
	moduleAlias string // nodeSingle
	children    []int  // nodeSet
	tagged      bool   // transient cycle-detection mark
}

// Channels is the forest of logical-channel handles a client addresses:
// Single leaves bound to a Module, and named Sets of children. The
// reserved id UniversalSetID is computed on demand from every registered
// Single, not stored as an explicit node.
type Channels struct {
	nodes map[int]*channelNode
}

// NewChannels creates an empty channel forest.
func NewChannels() *Channels {
	return &Channels{nodes: make(map[int]*channelNode)}
}

// AddSingle registers logical id as bound to moduleAlias. It fails with
// BadChannel if id is already registered, which is how Graph.BindChannel
// enforces the global logical-id-uniqueness invariant across all modules.
func (c *Channels) AddSingle(id int, moduleAlias string) error {
	if id == UniversalSetID {
		return herr.Newf(herr.BadChannel, "logical channel id %d is reserved", UniversalSetID)
	}
	if _, exists := c.nodes[id]; exists {
		return herr.Newf(herr.BadChannel, "logical channel id %d already registered", id)
	}
	c.nodes[id] = &channelNode{kind: nodeSingle, moduleAlias: moduleAlias}
	return nil
}

// AddSet registers a named set of child ids (which may themselves be
// Single or Set ids, including other sets not yet added).
func (c *Channels) AddSet(id int, children []int) error {
	if id == UniversalSetID {
		return herr.Newf(herr.BadChannel, "logical channel id %d is reserved", UniversalSetID)
	}
	if _, exists := c.nodes[id]; exists {
		return herr.Newf(herr.BadChannel, "logical channel id %d already registered", id)
	}
	kids := append([]int(nil), children...)
	c.nodes[id] = &channelNode{kind: nodeSet, children: kids}
	return nil
}

// IsSingle reports whether id names a Single leaf.
func (c *Channels) IsSingle(id int) bool {
	n, ok := c.nodes[id]
	return ok && n.kind == nodeSingle
}

// ModuleOf returns the module alias a Single id is bound to.
func (c *Channels) ModuleOf(id int) (string, error) {
	n, ok := c.nodes[id]
	if !ok || n.kind != nodeSingle {
		return "", herr.Newf(herr.BadChannel, "logical channel %d is not a single channel", id)
	}
	return n.moduleAlias, nil
}

// Validate walks every Set node with a depth-first visit, failing with
// InfiniteLoop if a Set is reached a second time during one walk. Tags are
// cleared only between walks, so a Set shared by two branches of the same
// walk also counts as a revisit.
func (c *Channels) Validate() error {
	for id, n := range c.nodes {
		if n.kind != nodeSet {
			continue
		}
		if err := c.visit(id); err != nil {
			return err
		}
		c.clearTags()
	}
	return nil
}

func (c *Channels) visit(id int) error {
	n, ok := c.nodes[id]
	if !ok {
		return herr.Newf(herr.BadChannel, "set references unknown logical channel %d", id)
	}
	if n.kind == nodeSingle {
		return nil
	}
	if n.tagged {
		return herr.Newf(herr.InfiniteLoop, "cycle detected at logical channel set %d", id)
	}
	n.tagged = true
	for _, child := range n.children {
		if child == id {
			return herr.Newf(herr.InfiniteLoop, "set %d contains itself", id)
		}
		if err := c.visit(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channels) clearTags() {
	for _, n := range c.nodes {
		n.tagged = false
	}
}

// Members flattens id to the list of Single ids it reaches, in depth-first
// child order. A Single id flattens to itself; UniversalSetID flattens to
// every registered Single, in no defined order.
func (c *Channels) Members(id int) ([]int, error) {
	if id == UniversalSetID {
		var out []int
		for nid, n := range c.nodes {
			if n.kind == nodeSingle {
				out = append(out, nid)
			}
		}
		return out, nil
	}
	var out []int
	seen := make(map[int]bool)
	if err := c.collect(id, &out, seen); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Channels) collect(id int, out *[]int, seen map[int]bool) error {
	if seen[id] {
		return nil
	}
	seen[id] = true
	n, ok := c.nodes[id]
	if !ok {
		return herr.Newf(herr.BadChannel, "unknown logical channel %d", id)
	}
	if n.kind == nodeSingle {
		*out = append(*out, id)
		return nil
	}
	for _, child := range n.children {
		if err := c.collect(child, out, seen); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether single is a member of the set (or equals it,
// when id itself is a Single).
func (c *Channels) Contains(id, single int) bool {
	members, err := c.Members(id)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m == single {
			return true
		}
	}
	return false
}

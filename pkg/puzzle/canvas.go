package puzzle

import "slices"

// Canvas holds the blocks and arrows of one stage. Blocks keep insertion
// order, which is what breaks reading-order ties.
type Canvas struct {
	Blocks []Block `json:"blocks"`
	Arrows []Arrow `json:"arrows"`
}

// Block returns the block with the given ID.
func (c Canvas) Block(id BlockID) (Block, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.Blocks[i], true
	}
	return Block{}, false
}

func (c Canvas) indexOf(id BlockID) int {
	return slices.IndexFunc(c.Blocks, func(b Block) bool { return b.ID == id })
}

func (c *Canvas) add(b Block) {
	c.Blocks = append(c.Blocks, b)
}

func (c *Canvas) move(id BlockID, p Point) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.Blocks[i].MoveTo(p)
	return true
}

// remove drops a block. Arrows attached to it are left in place; they can
// never satisfy an edge again because block IDs are not reused.
func (c *Canvas) remove(id BlockID) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.Blocks = slices.Delete(c.Blocks, i, i+1)
	return true
}

func (c *Canvas) connect(a Arrow) {
	c.Arrows = append(c.Arrows, a)
}

func (c *Canvas) clear() {
	c.Blocks = nil
	c.Arrows = nil
}

// Len returns the number of placed blocks.
func (c Canvas) Len() int { return len(c.Blocks) }

// BlockAt returns the topmost block containing p. Later blocks are drawn on
// top of earlier ones.
func (c Canvas) BlockAt(p Point) (Block, bool) {
	for i := len(c.Blocks) - 1; i >= 0; i-- {
		if c.Blocks[i].Contains(p) {
			return c.Blocks[i], true
		}
	}
	return Block{}, false
}

// ConnectionPointAt returns the connection point under p, if any.
func (c Canvas) ConnectionPointAt(p Point) (Endpoint, bool) {
	for i := len(c.Blocks) - 1; i >= 0; i-- {
		if side, ok := c.Blocks[i].ConnectionPointAt(p); ok {
			return Endpoint{Block: c.Blocks[i].ID, Side: side}, true
		}
	}
	return Endpoint{}, false
}

// snapshot copies the canvas as the saved encoder, in placement order.
func (c Canvas) snapshot() Snapshot {
	return Snapshot{Blocks: slices.Clone(c.Blocks), Arrows: slices.Clone(c.Arrows)}
}

// Clone returns a deep copy.
func (c Canvas) Clone() Canvas {
	return Canvas{
		Blocks: slices.Clone(c.Blocks),
		Arrows: slices.Clone(c.Arrows),
	}
}

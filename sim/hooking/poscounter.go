package hooking

// PosCounter is a hook that counts how many times each hook position fires.
type PosCounter struct {
	posNames []string
	count    map[string]uint64
}

// NewPosCounter creates a new PosCounter.
func NewPosCounter() *PosCounter {
	return &PosCounter{
		count: make(map[string]uint64),
	}
}

// Func records the position of the invocation.
func (c *PosCounter) Func(ctx HookCtx) {
	name := ctx.Pos.Name

	_, ok := c.count[name]
	if !ok {
		c.posNames = append(c.posNames, name)
	}

	c.count[name]++
}

// PosNames returns the names of all positions seen so far, in the order they
// first fired.
func (c *PosCounter) PosNames() []string {
	return c.posNames
}

// Count returns how many times the position with the given name fired.
func (c *PosCounter) Count(posName string) uint64 {
	return c.count[posName]
}

// Reset forgets all counts.
func (c *PosCounter) Reset() {
	c.posNames = nil
	c.count = make(map[string]uint64)
}

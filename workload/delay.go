package workload

// Delay performs Factor iterations of cheap arithmetic between accesses to
// dilute memory-access density. The result lands in a sink owned by the
// Delay so the loop is not eliminated.
type Delay struct {
	Factor uint64

	sink int64
}

// Inject runs the delay loop. The operand should depend on the current
// traversal position.
func (d *Delay) Inject(operand int64) {
	for l := uint64(0); l < d.Factor; l++ {
		d.sink += operand - int64(l)
	}
}

// Sink returns the accumulated delay value.
func (d *Delay) Sink() int64 {
	return d.sink
}

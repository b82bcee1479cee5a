package entities

const KindCounter = "counter"

// Counter counts its ticks and does nothing else.
type Counter struct {
	*meta
}

func buildCounter(base *meta, _ map[string]any) (Entity, error) {
	return &Counter{meta: base}, nil
}

func (c *Counter) OnTick() error {
	c.ticks.Add(1)
	return nil
}

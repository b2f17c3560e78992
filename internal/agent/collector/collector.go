package collector

// Collector reports information from a worker for its status endpoint.
type Collector interface {
	Name() string
	Collect() (map[string]any, error)
}

// Gather merges the output of every collector under its name.
func Gather(cs ...Collector) (map[string]any, error) {
	out := make(map[string]any, len(cs))
	for _, c := range cs {
		v, err := c.Collect()
		if err != nil {
			return nil, err
		}
		out[c.Name()] = v
	}
	return out, nil
}

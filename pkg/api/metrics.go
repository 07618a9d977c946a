package api

import (
	"fmt"
	"io"
)

// Metrics is an insertion-ordered collection of named integer metrics.
// The first Set of a name fixes its position; later writes update the
// value in place. Report order is first-seen order.
type Metrics struct {
	names  []string
	values map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{values: map[string]int64{}}
}

func (m *Metrics) Set(name string, value int64) {
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = value
}

func (m *Metrics) Get(name string) (int64, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *Metrics) Len() int {
	return len(m.names)
}

// Names returns the metric names in first-seen order.
func (m *Metrics) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// WriteTo prints one "<name>: <value>" line per metric in first-seen
// order. It does not modify the collection; writing twice produces
// identical output.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range m.names {
		n, err := fmt.Fprintf(w, "%s: %d\n", name, m.values[name])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema is the ordered set of columns a model consumes.
type Schema struct {
	names    []string
	index    map[string]int
	stations []int
}

// NewSchema builds a schema from column names in model order.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("schema has no features")
	}
	s := &Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	copy(s.names, names)
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", name)
		}
		s.index[name] = i
		if strings.HasPrefix(name, StationPrefix) {
			s.stations = append(s.stations, i)
		}
	}
	return s, nil
}

// Default returns the schema of the upstream feature pipeline.
func Default() *Schema {
	s, err := NewSchema(DefaultNames)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the columns in model order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Schema) Len() int {
	return len(s.names)
}

// Frame validates v and lays it out as a single row in schema order.
func (s *Schema) Frame(v Vector) ([]float64, error) {
	row := make([]float64, len(s.names))
	var invalid InvalidInputError

	for i, name := range s.names {
		val, ok := v[name]
		if !ok {
			invalid.Missing = append(invalid.Missing, name)
			continue
		}
		row[i] = val
	}
	for name := range v {
		if _, ok := s.index[name]; !ok {
			invalid.Unknown = append(invalid.Unknown, name)
		}
	}
	sort.Strings(invalid.Unknown)

	if len(invalid.Missing) == 0 {
		invalid.Station = s.checkStations(row)
	}

	if len(invalid.Missing) > 0 || len(invalid.Unknown) > 0 || invalid.Station != "" {
		return nil, &invalid
	}
	return row, nil
}

// checkStations enforces that the station indicators form a one-hot encoding.
func (s *Schema) checkStations(row []float64) string {
	if len(s.stations) == 0 {
		return ""
	}
	var active []string
	for _, i := range s.stations {
		val := row[i]
		switch {
		case math.IsNaN(val), val == 0:
		case val == 1:
			active = append(active, s.names[i])
		default:
			return fmt.Sprintf("station indicator %s must be 0 or 1, got %g", s.names[i], val)
		}
	}
	switch len(active) {
	case 1:
		return ""
	case 0:
		return "no station indicator is set"
	default:
		return "multiple station indicators set: " + strings.Join(active, ", ")
	}
}

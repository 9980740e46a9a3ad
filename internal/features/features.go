package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// StationPrefix marks the one-hot station indicator columns.
const StationPrefix = "station_"

// Stations are the monitoring sites the model was trained on.
var Stations = []string{
	"Changping",
	"Dingling",
	"Dongsi",
	"Guanyuan",
	"Gucheng",
	"Huairou",
	"Nongzhanguan",
	"Shunyi",
	"Tiantan",
	"Wanliu",
	"Wanshouxigong",
}

// DefaultNames is the column order produced by the upstream feature pipeline.
var DefaultNames = append([]string{
	"year", "month", "day", "hour",
	"PRES", "DEWP",
	"PM2.5_log", "O3_log", "PM10_log", "WSPM_log", "NO2_log",
	"PM2.5_monthly_sum", "PM10_monthly_sum", "SO2_monthly_sum",
	"NO2_monthly_sum", "CO_monthly_sum", "O3_monthly_sum",
	"CO_ratio", "O3_ratio",
	"TEMP_PRES_interaction",
	"PM10_EMA_24h", "SO2_EMA_24h", "NO2_EMA_24h", "CO_EMA_24h", "O3_EMA_24h",
	"wd_sin", "wd_cos",
}, stationColumns()...)

func stationColumns() []string {
	cols := make([]string, len(Stations))
	for i, s := range Stations {
		cols[i] = StationPrefix + s
	}
	return cols
}

// ErrMalformedBody is returned when a request body is not a JSON object.
var ErrMalformedBody = errors.New("malformed feature vector")

// Vector maps feature names to values for a single prediction.
type Vector map[string]float64

// Decode reads one JSON object of feature name to value. Booleans decode as
// 0/1 and null as NaN, which the model treats as a missing value.
func Decode(r io.Reader) (Vector, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedBody)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedBody)
	}

	v := make(Vector, len(raw))
	var bad []string
	for name, value := range raw {
		switch val := value.(type) {
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				bad = append(bad, name)
				continue
			}
			v[name] = f
		case bool:
			if val {
				v[name] = 1
			} else {
				v[name] = 0
			}
		case nil:
			v[name] = math.NaN()
		default:
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, &InvalidInputError{NonNumeric: bad}
	}
	return v, nil
}

// MarshalJSON encodes NaN values as null so vectors round-trip through Decode.
func (v Vector) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		f := v[name]
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// InvalidInputError describes why a vector does not fit the model's schema.
type InvalidInputError struct {
	Missing    []string
	Unknown    []string
	NonNumeric []string
	Station    string
}

func (e *InvalidInputError) Error() string {
	var parts []string
	if len(e.NonNumeric) > 0 {
		parts = append(parts, "non-numeric features: "+strings.Join(e.NonNumeric, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing features: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown features: "+strings.Join(e.Unknown, ", "))
	}
	if e.Station != "" {
		parts = append(parts, e.Station)
	}
	if len(parts) == 0 {
		return "invalid feature vector"
	}
	return "invalid feature vector: " + strings.Join(parts, "; ")
}

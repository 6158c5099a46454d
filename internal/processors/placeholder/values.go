package placeholder

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stringify renders a value deterministically:
//   - nil             → ""
//   - slices, arrays  → comma-joined stringified non-empty elements
//   - maps, structs   → JSON
//   - anything else   → fmt.Sprint
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if s := Stringify(rv.Index(i).Interface()); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ",")
	case reflect.Map, reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(rv.Interface())
		}
		return string(data)
	default:
		return fmt.Sprint(rv.Interface())
	}
}

// FromValue wraps a static value or a func as a Generator.
func FromValue(v any) Generator {
	switch fn := v.(type) {
	case Generator:
		return fn
	case func() (string, error):
		return fn
	case func() string:
		return func() (string, error) { return fn(), nil }
	case func() any:
		return func() (string, error) { return Stringify(fn()), nil }
	}
	s := Stringify(v)
	return func() (string, error) { return s, nil }
}

// FromValues converts a map of plain values into generators.
func FromValues(values map[string]any) map[string]Generator {
	vars := make(map[string]Generator, len(values))
	for k, v := range values {
		vars[k] = FromValue(v)
	}
	return vars
}

// Builtins returns the standard time and identity generators.
// now is evaluated lazily on every call.
func Builtins(now func() time.Time) map[string]Generator {
	if now == nil {
		now = time.Now
	}
	format := func(layout string) Generator {
		return func() (string, error) { return now().Format(layout), nil }
	}

	return map[string]Generator{
		"date":      format(time.DateOnly),
		"time":      format(time.TimeOnly),
		"datetime":  format(time.DateTime),
		"iso":       format(time.RFC3339),
		"year":      format("2006"),
		"month":     format("01"),
		"day":       format("02"),
		"weekday":   func() (string, error) { return now().Weekday().String(), nil },
		"timezone":  func() (string, error) { name, _ := now().Zone(); return name, nil },
		"timestamp": func() (string, error) { return strconv.FormatInt(now().UnixMilli(), 10), nil },
		"uuid":      func() (string, error) { return uuid.NewString(), nil },
		"random":    func() (string, error) { return strconv.Itoa(rand.IntN(1_000_000)), nil },
	}
}

// Merge layers generator maps; later maps win.
func Merge(layers ...map[string]Generator) map[string]Generator {
	out := make(map[string]Generator)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

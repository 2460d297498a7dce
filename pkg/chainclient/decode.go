package chainclient

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// toEvent converts a registry event into a models.Event with plain Go values
func toEvent(ev *parser.Event) models.Event {
	section, method := splitName(ev.Name)
	fields := make(map[string]any, len(ev.Fields))
	for i, f := range ev.Fields {
		if f == nil {
			continue
		}
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		fields[name] = normalize(f.Value)
	}
	return models.Event{Section: section, Method: method, Fields: fields}
}

func splitName(name string) (string, string) {
	section, method, ok := strings.Cut(name, ".")
	if !ok {
		return "", name
	}
	return section, method
}

// normalize turns registry decoded values into maps, slices, byte slices,
// *big.Int and plain integers. Unit enum variants become their name.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case registry.DecodedFields:
		return normalizeFields(x)
	case *registry.DecodedField:
		if x == nil {
			return nil
		}
		return normalize(x.Value)
	case map[string]any:
		if len(x) == 1 {
			for k, inner := range x {
				if inner == nil {
					return k
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = normalize(inner)
		}
		return out
	case []any:
		return normalizeSlice(x)
	case types.U128:
		return bigOrZero(x.Int)
	case types.U256:
		return bigOrZero(x.Int)
	case types.UCompact:
		n := big.Int(x)
		return new(big.Int).Set(&n)
	case *big.Int:
		return bigOrZero(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Uint8:
		return uint8(rv.Uint())
	case reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return rv.Uint()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return rv.Int()
	case reflect.String:
		return rv.String()
	case reflect.Array, reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := make([]byte, rv.Len())
			for i := range out {
				out[i] = uint8(rv.Index(i).Uint())
			}
			return out
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return normalizeSlice(items)
	}
	return v
}

func normalizeFields(fields registry.DecodedFields) any {
	named := false
	for _, f := range fields {
		if f != nil && f.Name != "" {
			named = true
			break
		}
	}
	if !named {
		items := make([]any, 0, len(fields))
		for _, f := range fields {
			if f != nil {
				items = append(items, f.Value)
			}
		}
		// a single unnamed field is a newtype wrapper
		if len(items) == 1 {
			return normalize(items[0])
		}
		return normalizeSlice(items)
	}

	out := make(map[string]any, len(fields))
	for i, f := range fields {
		if f == nil {
			continue
		}
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		out[name] = normalize(f.Value)
	}
	return out
}

// normalizeSlice collapses arrays of bytes into []byte
func normalizeSlice(items []any) any {
	out := make([]any, len(items))
	allBytes := len(items) > 0
	for i, item := range items {
		out[i] = normalize(item)
		if _, ok := out[i].(uint8); !ok {
			allBytes = false
		}
	}
	if !allBytes {
		return out
	}
	b := make([]byte, len(out))
	for i, item := range out {
		b[i] = item.(uint8)
	}
	return b
}

func bigOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}

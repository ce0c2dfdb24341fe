package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/sigamony/DataViz/internal/dataset"
)

// binder converts values between Go and the script runtime and raises
// script-level exceptions.
type binder struct {
	vm *goja.Runtime
}

func (b *binder) typeError(format string, args ...any) {
	panic(b.vm.NewTypeError(fmt.Sprintf(format, args...)))
}

func (b *binder) keyError(name string) {
	panic(b.vm.NewGoError(fmt.Errorf("KeyError: '%s'", name)))
}

func (b *binder) goError(err error) {
	panic(b.vm.NewGoError(err))
}

// value converts a table cell or computed value to a script value.
// time.Time becomes a Date; nil becomes null.
func (b *binder) value(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case time.Time:
		d, err := b.vm.New(b.vm.Get("Date"), b.vm.ToValue(x.UnixMilli()))
		if err != nil {
			b.goError(err)
		}
		return d
	}
	return b.vm.ToValue(v)
}

func (b *binder) array(values []any) goja.Value {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = b.value(v)
	}
	return b.vm.NewArray(items...)
}

func (b *binder) floatArray(values []float64) goja.Value {
	items := make([]any, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			items[i] = goja.Null()
			continue
		}
		items[i] = v
	}
	return b.vm.NewArray(items...)
}

func (b *binder) object(m map[string]any) *goja.Object {
	obj := b.vm.NewObject()
	for k, v := range m {
		_ = obj.Set(k, b.value(v))
	}
	return obj
}

// keyed builds the {keys, values} pair returned by aggregations.
func (b *binder) keyed(keys []any, values []float64) goja.Value {
	obj := b.vm.NewObject()
	_ = obj.Set("keys", b.array(keys))
	_ = obj.Set("values", b.floatArray(values))
	return obj
}

// export converts a script value to plain Go: null and undefined become nil,
// Dates become UTC time.Time, integers stay int64.
func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return plain(v.Export())
}

func plain(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case []any:
		for i := range x {
			x[i] = plain(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = plain(x[k])
		}
		return x
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return v
}

// list exports v as a slice or throws a TypeError naming fn.
func (b *binder) list(fn string, v goja.Value) []any {
	if s, ok := export(v).([]any); ok {
		return s
	}
	b.typeError("%s: expected an array", fn)
	return nil
}

// floats converts values to float64, mapping nil to NaN. Strings and dates
// are rejected so scripts convert them explicitly.
func floats(values []any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			out[i] = math.NaN()
		case string:
			return nil, fmt.Errorf("value %q is not numeric; convert it with table.toNumeric", x)
		case time.Time:
			return nil, fmt.Errorf("value %s is a date, not a number", x.Format(time.RFC3339))
		default:
			f, ok := dataset.ToFloat(x)
			if !ok {
				return nil, fmt.Errorf("value %v is not numeric", x)
			}
			out[i] = f
		}
	}
	return out, nil
}

func (b *binder) floats(fn string, v goja.Value) []float64 {
	out, err := floats(b.list(fn, v))
	if err != nil {
		b.typeError("%s: %v", fn, err)
	}
	return out
}

// identity is the grouping key for v; numbers compare by value regardless
// of int/float representation.
func identity(v any) string {
	switch x := v.(type) {
	case time.Time:
		return "t:" + strconv.FormatInt(x.UnixNano(), 10)
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	}
	if f, ok := dataset.ToFloat(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

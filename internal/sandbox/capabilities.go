package sandbox

import (
	"errors"
	"math"
	"strings"

	"github.com/dop251/goja"

	"github.com/sigamony/DataViz/internal/dataset"
)

// frame is the df global: a read-only view of the loaded table.
func (b *binder) frame(t *dataset.Table) *goja.Object {
	df := b.vm.NewObject()
	names := t.Names()
	cols := make([]any, len(names))
	dtypes := make(map[string]any, len(names))
	for i, name := range names {
		cols[i] = name
		c, _ := t.Column(name)
		dtypes[name] = c.Kind.Dtype()
	}
	_ = df.Set("columns", b.array(cols))
	_ = df.Set("length", t.Len())
	_ = df.Set("dtypes", b.object(dtypes))
	_ = df.Set("col", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		c, ok := t.Column(name)
		if !ok {
			b.keyError(name)
		}
		return b.array(c.Values)
	})
	_ = df.Set("rows", func(goja.FunctionCall) goja.Value {
		return b.rows(t, t.Len())
	})
	_ = df.Set("head", func(call goja.FunctionCall) goja.Value {
		n := 5
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			n = int(arg.ToInteger())
		}
		return b.rows(t, n)
	})
	return df
}

func (b *binder) rows(t *dataset.Table, n int) goja.Value {
	n = max(0, min(n, t.Len()))
	items := make([]any, n)
	for i := 0; i < n; i++ {
		items[i] = b.object(t.Row(i))
	}
	return b.vm.NewArray(items...)
}

// tableFuncs is the table global. Functions taking a frame accept either df
// itself or an array of row objects.
type tableFuncs struct {
	*binder
	t  *dataset.Table
	df *goja.Object
}

func (tf *tableFuncs) records(fn string, src goja.Value) []map[string]any {
	items := tf.list(fn, src)
	out := make([]map[string]any, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			tf.typeError("%s: expected df or an array of row objects", fn)
		}
		out[i] = m
	}
	return out
}

// field extracts one column from a frame, throwing KeyError when no row has it.
func (tf *tableFuncs) field(fn string, src goja.Value, name string) []any {
	if src.SameAs(tf.df) {
		c, ok := tf.t.Column(name)
		if !ok {
			tf.keyError(name)
		}
		return c.Values
	}
	rows := tf.records(fn, src)
	out := make([]any, len(rows))
	found := false
	for i, r := range rows {
		v, ok := r[name]
		found = found || ok
		out[i] = v
	}
	if !found && len(rows) > 0 {
		tf.keyError(name)
	}
	return out
}

func (tf *tableFuncs) rethrow(err error) {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		panic(ie)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	tf.goError(err)
}

func (tf *tableFuncs) scalar(v float64) goja.Value {
	if math.IsNaN(v) {
		return goja.Null()
	}
	return tf.vm.ToValue(v)
}

func isArray(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	return ok && obj.ClassName() == "Array"
}

func (tf *tableFuncs) build() *goja.Object {
	obj := tf.vm.NewObject()
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}

	set("toNumeric", func(call goja.FunctionCall) goja.Value {
		return tf.array(toNumeric(tf.list("table.toNumeric", call.Argument(0))))
	})
	set("toDatetime", func(call goja.FunctionCall) goja.Value {
		return tf.array(toDatetime(tf.list("table.toDatetime", call.Argument(0))))
	})

	set("groupBy", func(call goja.FunctionCall) goja.Value {
		const fn = "table.groupBy"
		src, key := call.Argument(0), call.Argument(1).String()
		valueArg, aggArg := call.Argument(2), call.Argument(3)
		hasValue := !goja.IsUndefined(valueArg) && !goja.IsNull(valueArg) && valueArg.String() != ""

		agg := AggSum
		if !hasValue {
			agg = AggCount
		}
		if !goja.IsUndefined(aggArg) && !goja.IsNull(aggArg) {
			agg = strings.ToLower(aggArg.String())
		}

		keys := tf.field(fn, src, key)
		var values []float64
		switch {
		case hasValue && agg == AggCount:
			raw := tf.field(fn, src, valueArg.String())
			values = make([]float64, len(raw))
			for i, v := range raw {
				values[i] = 1
				if v == nil {
					values[i] = math.NaN()
				}
			}
		case hasValue:
			var err error
			values, err = floats(tf.field(fn, src, valueArg.String()))
			if err != nil {
				tf.typeError("%s: %v", fn, err)
			}
		case agg != AggCount:
			tf.typeError("%s: aggregation %q needs a value column", fn, agg)
		}

		k, v, err := groupBy(keys, values, agg)
		if err != nil {
			tf.typeError("%s: %v", fn, err)
		}
		return tf.keyed(k, v)
	})

	set("valueCounts", func(call goja.FunctionCall) goja.Value {
		const fn = "table.valueCounts"
		var values []any
		if col := call.Argument(1); !goja.IsUndefined(col) {
			values = tf.field(fn, call.Argument(0), col.String())
		} else {
			values = tf.list(fn, call.Argument(0))
		}
		k, v := valueCounts(values)
		return tf.keyed(k, v)
	})

	set("sortBy", func(call goja.FunctionCall) goja.Value {
		const fn = "table.sortBy"
		first, descArg := call.Argument(0), call.Argument(2)
		var keys []any
		var values []float64
		if obj, ok := first.(*goja.Object); ok && !isArray(first) && obj.Get("keys") != nil {
			keys = tf.list(fn, obj.Get("keys"))
			values = tf.floats(fn, obj.Get("values"))
			descArg = call.Argument(1)
		} else {
			keys = tf.list(fn, first)
			values = tf.floats(fn, call.Argument(1))
		}
		k, v, err := sortPairs(keys, values, descArg.ToBoolean())
		if err != nil {
			tf.typeError("%s: %v", fn, err)
		}
		return tf.keyed(k, v)
	})

	for _, agg := range []string{AggSum, AggMean, AggMin, AggMax, AggMedian} {
		set(agg, func(call goja.FunctionCall) goja.Value {
			r, err := aggregate(agg, tf.floats("table."+agg, call.Argument(0)))
			if err != nil {
				tf.typeError("table.%s: %v", agg, err)
			}
			return tf.scalar(r)
		})
	}

	set("unique", func(call goja.FunctionCall) goja.Value {
		return tf.array(unique(tf.list("table.unique", call.Argument(0))))
	})

	set("filter", func(call goja.FunctionCall) goja.Value {
		const fn = "table.filter"
		src, pred := call.Argument(0), call.Argument(1)
		if _, ok := goja.AssertFunction(pred); !ok {
			tf.typeError("%s: second argument must be a function", fn)
		}
		if src.SameAs(tf.df) {
			src = tf.rows(tf.t, tf.t.Len())
		}
		if !isArray(src) {
			tf.typeError("%s: expected df or an array of row objects", fn)
		}
		arr := src.(*goja.Object)
		filter, ok := goja.AssertFunction(arr.Get("filter"))
		if !ok {
			tf.typeError("%s: array has no filter method", fn)
		}
		out, err := filter(arr, pred)
		if err != nil {
			tf.rethrow(err)
		}
		return out
	})

	set("pluck", func(call goja.FunctionCall) goja.Value {
		return tf.array(tf.field("table.pluck", call.Argument(0), call.Argument(1).String()))
	})
	return obj
}

// Package metric holds the per-metric sample history: typed values, the
// circular Datapoint store and the read-only view handed to evaluators.
package metric

// MaxNameLen bounds metric names. Lookups compare at most this many bytes.
const MaxNameLen = 32

// Metric is a named, typed stream with its own history.
type Metric struct {
	Name    string
	Kind    Kind
	Enabled bool
	Store   Store
}

// NameEqual compares two metric names over at most MaxNameLen bytes,
// case-sensitive.
func NameEqual(a, b string) bool {
	if len(a) > MaxNameLen {
		a = a[:MaxNameLen]
	}
	if len(b) > MaxNameLen {
		b = b[:MaxNameLen]
	}
	return a == b
}

// View is a read-only window on a Metric.
type View struct {
	m *Metric
}

// NewView wraps m. A View over a nil metric reports an empty history.
func NewView(m *Metric) View {
	return View{m: m}
}

func (v View) Valid() bool { return v.m != nil }

func (v View) Name() string {
	if v.m == nil {
		return ""
	}
	return v.m.Name
}

func (v View) Kind() Kind {
	if v.m == nil {
		return 0
	}
	return v.m.Kind
}

func (v View) Len() int {
	if v.m == nil {
		return 0
	}
	return v.m.Store.Len()
}

func (v View) Cap() int {
	if v.m == nil {
		return 0
	}
	return v.m.Store.Cap()
}

func (v View) Latest() (Datapoint, bool) {
	return v.NthFromLatest(0)
}

func (v View) NthFromLatest(k int) (Datapoint, bool) {
	if v.m == nil {
		return Datapoint{}, false
	}
	return v.m.Store.NthFromLatest(k)
}

// Float64At widens the k-th most recent value according to the metric kind.
func (v View) Float64At(k int) (float64, bool) {
	dp, ok := v.NthFromLatest(k)
	if !ok {
		return 0, false
	}
	return dp.Value.Float64(v.Kind())
}

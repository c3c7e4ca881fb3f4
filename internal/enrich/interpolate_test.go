package enrich

import (
	"reflect"
	"testing"
)

func f(v float64) *float64 { return &v }

func values(t *testing.T, got []*float64) []interface{} {
	t.Helper()
	out := make([]interface{}, len(got))
	for i, v := range got {
		if v == nil {
			out[i] = nil
		} else {
			out[i] = *v
		}
	}
	return out
}

func TestKeyIndices(t *testing.T) {
	cases := map[int][]int{
		0:  nil,
		1:  {0, 0, 0, 0, 0},
		2:  {0, 0, 1, 1, 1},
		10: {0, 2, 5, 7, 9},
		11: {0, 2, 5, 8, 10},
	}
	for n, want := range cases {
		if got := KeyIndices(n); !reflect.DeepEqual(got, want) {
			t.Errorf("KeyIndices(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestInterpolateExample(t *testing.T) {
	samples := map[int]*float64{0: f(10), 2: f(12), 4: nil, 7: f(18), 9: f(20)}
	got := values(t, Interpolate(10, samples))
	want := []interface{}{10.0, 11.0, 12.0, 12.0, nil, 18.0, 18.0, 18.0, 19.0, 20.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Interpolate = %v, want %v", got, want)
	}
}

func TestInterpolateKeepsKeyValuesAndMonotonic(t *testing.T) {
	n := 21
	keys := KeyIndices(n)
	temps := []float64{4, 9, 7, 7.5, 15}
	samples := make(map[int]*float64)
	for i, k := range keys {
		samples[k] = f(temps[i])
	}

	got := Interpolate(n, samples)
	if len(got) != n {
		t.Fatalf("expected %d values, got %d", n, len(got))
	}
	for i, k := range keys {
		if got[k] == nil || *got[k] != temps[i] {
			t.Errorf("row %d: expected exact sample %v, got %v", k, temps[i], got[k])
		}
	}

	for b := 0; b+1 < len(keys); b++ {
		lo, hi := keys[b], keys[b+1]
		increasing := temps[b+1] >= temps[b]
		for i := lo; i < hi; i++ {
			a, c := *got[i], *got[i+1]
			if increasing && c < a || !increasing && c > a {
				t.Errorf("rows %d..%d not monotonic between brackets: %v, %v", i, i+1, a, c)
			}
		}
	}
}

func TestInterpolateAllNull(t *testing.T) {
	samples := map[int]*float64{0: nil, 2: nil, 5: nil, 7: nil, 9: nil}
	for i, v := range Interpolate(10, samples) {
		if v != nil {
			t.Fatalf("row %d: expected nil, got %v", i, *v)
		}
	}
	for i, v := range Interpolate(3, nil) {
		if v != nil {
			t.Fatalf("row %d: expected nil without samples, got %v", i, *v)
		}
	}
}

func TestInterpolateSingleValueStaysNearItsKey(t *testing.T) {
	samples := map[int]*float64{0: nil, 2: nil, 4: f(7), 6: nil, 7: nil}
	got := values(t, Interpolate(8, samples))
	want := []interface{}{nil, nil, nil, 7.0, 7.0, 7.0, nil, nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInterpolateShortTracks(t *testing.T) {
	got := values(t, Interpolate(1, map[int]*float64{0: f(5)}))
	if !reflect.DeepEqual(got, []interface{}{5.0}) {
		t.Errorf("single point: got %v", got)
	}

	got = values(t, Interpolate(2, map[int]*float64{0: f(5), 1: f(7)}))
	if !reflect.DeepEqual(got, []interface{}{5.0, 7.0}) {
		t.Errorf("two points: got %v", got)
	}

	got = values(t, Interpolate(2, map[int]*float64{0: f(5), 1: nil}))
	if !reflect.DeepEqual(got, []interface{}{5.0, 5.0}) {
		t.Errorf("two points with one reading: got %v", got)
	}

	got = values(t, Interpolate(3, map[int]*float64{1: f(6)}))
	if !reflect.DeepEqual(got, []interface{}{6.0, 6.0, 6.0}) {
		t.Errorf("single sample should cover every row: got %v", got)
	}
}

func TestInterpolateDoesNotAliasSamples(t *testing.T) {
	v := f(3)
	got := Interpolate(2, map[int]*float64{0: v, 1: f(4)})
	*got[0] = 100
	if *v != 3 {
		t.Fatal("output must not share storage with samples")
	}
}

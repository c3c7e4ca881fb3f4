package enrich

import "sort"

// keySamples is the number of sampling positions per track.
const keySamples = 5

// KeyIndices returns the sampling positions {0, n/4, n/2, 3n/4, n-1} of a
// track with n points. Short tracks yield repeated positions.
func KeyIndices(n int) []int {
	if n <= 0 {
		return nil
	}
	return []int{0, n / 4, n / 2, 3 * n / 4, n - 1}
}

// Interpolate fills a value for each of n rows from sparse samples keyed by
// row index. Sampled rows keep their exact value, including nil. Rows
// between two non-nil samples are interpolated linearly; otherwise the
// non-nil side is used. When no sample has a value every row is nil.
//
// Tracks shorter than keySamples points have collapsed key positions, so
// nil samples are dropped there and the available values cover every row.
func Interpolate(n int, samples map[int]*float64) []*float64 {
	out := make([]*float64, n)
	if n == 0 {
		return out
	}
	if n < keySamples {
		samples = nonNil(samples)
	}

	keys := make([]int, 0, len(samples))
	present := false
	for k, v := range samples {
		if k < 0 || k >= n {
			continue
		}
		keys = append(keys, k)
		if v != nil {
			present = true
		}
	}
	if !present {
		return out
	}
	sort.Ints(keys)

	if len(keys) == 1 {
		v := samples[keys[0]]
		for i := range out {
			out[i] = clone(v)
		}
		return out
	}

	left, right := 0, 1
	for i := 0; i < n; i++ {
		for right < len(keys)-1 && i > keys[right] {
			left++
			right++
		}

		if v, ok := samples[i]; ok {
			out[i] = clone(v)
			continue
		}

		lk, rk := keys[left], keys[right]
		lv, rv := samples[lk], samples[rk]
		switch {
		case i < lk:
			out[i] = clone(firstNonNil(lv, rv))
		case i > rk:
			out[i] = clone(firstNonNil(rv, lv))
		case lv != nil && rv != nil:
			t := *lv + (*rv-*lv)*float64(i-lk)/float64(rk-lk)
			out[i] = &t
		default:
			out[i] = clone(firstNonNil(lv, rv))
		}
	}
	return out
}

func nonNil(samples map[int]*float64) map[int]*float64 {
	kept := make(map[int]*float64, len(samples))
	for k, v := range samples {
		if v != nil {
			kept[k] = v
		}
	}
	return kept
}

func firstNonNil(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

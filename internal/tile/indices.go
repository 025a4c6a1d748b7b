// Package tile provides tile index sets and the tile-grid arithmetic of
// multi-resolution (LOD) content.
package tile

import "sort"

// Indices is a sorted set of unique tile ids.
type Indices []uint

// Of builds a set from arbitrary ids.
func Of(ids ...uint) Indices {
	out := make(Indices, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out.dedup()
}

func (s Indices) dedup() Indices {
	if len(s) < 2 {
		return s
	}
	n := 1
	for i := 1; i < len(s); i++ {
		if s[i] != s[n-1] {
			s[n] = s[i]
			n++
		}
	}
	return s[:n]
}

// Contains reports whether id is a member.
func (s Indices) Contains(id uint) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}

// Difference returns s - o.
func (s Indices) Difference(o Indices) Indices {
	var out Indices
	i, j := 0, 0
	for i < len(s) {
		switch {
		case j >= len(o) || s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			j++
		default:
			i++
			j++
		}
	}
	return out
}

// Union returns s ∪ o.
func (s Indices) Union(o Indices) Indices {
	out := make(Indices, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) || j < len(o) {
		switch {
		case j >= len(o) || (i < len(s) && s[i] < o[j]):
			out = append(out, s[i])
			i++
		case i >= len(s) || o[j] < s[i]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Intersect returns s ∩ o.
func (s Indices) Intersect(o Indices) Indices {
	var out Indices
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case s[i] > o[j]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

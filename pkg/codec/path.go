package codec

import (
	"fmt"
	"strings"
)

// Lookup follows a dotted path through records and string-keyed map entries.
// An empty path returns v itself.
func Lookup(v Value, path string) (Value, bool) {
	cur := orNull(v)
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case Record:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = orNull(next)
		case *Map:
			next, ok := node.Get(String(seg))
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath stores val at a dotted path inside root, creating intermediate
// records as needed. Every segment but the last must name a record or a
// string-keyed map.
func SetPath(root Record, path string, val Value) error {
	if path == "" {
		return fmt.Errorf("codec: empty path")
	}
	segs := strings.Split(path, ".")
	var cur Value = root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case Record:
			if last {
				node[seg] = orNull(val)
				return nil
			}
			next, ok := node[seg]
			if !ok {
				next = Record{}
				node[seg] = next
			}
			cur = orNull(next)
		case *Map:
			if last {
				node.Set(String(seg), val)
				return nil
			}
			next, ok := node.Get(String(seg))
			if !ok {
				next = Record{}
				node.Set(String(seg), next)
			}
			cur = orNull(next)
		default:
			return fmt.Errorf("codec: %s is a %s, not a container", strings.Join(segs[:i], "."), cur.Kind())
		}
	}
	return nil
}

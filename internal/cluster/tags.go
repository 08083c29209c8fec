package cluster

import (
	"sort"
	"strings"
)

// Tag is a key with one or more values. Values are kept sorted so that
// multi-valued tags compare independently of their input order.
type Tag struct {
	Key    string
	Values []string
}

// NewTag builds a tag, sorting and de-duplicating its values.
func NewTag(key string, values ...string) Tag {
	vals := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return Tag{Key: key, Values: vals}
}

// String renders the tag as "key:value", joining multiple values with ';'.
func (t Tag) String() string {
	return t.Key + ":" + strings.Join(t.Values, ";")
}

// TagSet is an insertion-ordered set of tags.
type TagSet []Tag

// Union returns the tags of s followed by the tags of o not already in s.
func (s TagSet) Union(o TagSet) TagSet {
	out := make(TagSet, 0, len(s)+len(o))
	seen := make(map[string]struct{}, len(s)+len(o))
	for _, set := range []TagSet{s, o} {
		for _, t := range set {
			k := t.String()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the canonical string form of every tag.
func (s TagSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.String()
	}
	return out
}

func (s TagSet) clone() TagSet {
	out := make(TagSet, len(s))
	for i, t := range s {
		out[i] = Tag{Key: t.Key, Values: append([]string(nil), t.Values...)}
	}
	return out
}

// Package bktree finds the closest known label to a misspelled one. It is
// used to suggest a fix when a QKan row names a profile or runoff type that
// has no HE code.
package bktree

import (
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// DefaultMaxDistance is the largest edit distance reported as a suggestion.
const DefaultMaxDistance = 3

// node is a label with its children keyed by their distance to it.
type node struct {
	value    string
	children map[int]*node
}

// Tree is a BK-tree over labels under the Levenshtein distance.
type Tree struct {
	root *node
	size int
}

// Match is a label found by Search.
type Match struct {
	Value    string
	Distance int
}

// unit costs, a substitution counts as one edit
var options = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

func distance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), options)
}

// New returns a tree holding labels. Empty and duplicate labels are ignored.
func New(labels ...string) *Tree {
	t := &Tree{}
	for _, l := range labels {
		t.Insert(l)
	}
	return t
}

// Insert adds value to the tree.
func (t *Tree) Insert(value string) {
	if value == "" {
		return
	}
	if t.root == nil {
		t.root = &node{value: value, children: make(map[int]*node)}
		t.size++
		return
	}

	n := t.root
	for {
		d := distance(n.value, value)
		if d == 0 {
			return
		}
		child, ok := n.children[d]
		if !ok {
			n.children[d] = &node{value: value, children: make(map[int]*node)}
			t.size++
			return
		}
		n = child
	}
}

func (t *Tree) Len() int { return t.size }

// Search returns every label within maxDistance of query, closest first and
// alphabetically among equal distances.
func (t *Tree) Search(query string, maxDistance int) []Match {
	if t.root == nil {
		return nil
	}

	var matches []Match
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := distance(n.value, query)
		if d <= maxDistance {
			matches = append(matches, Match{Value: n.value, Distance: d})
		}
		// triangle inequality: only children in [d-max, d+max] can match
		for cd, child := range n.children {
			if cd >= d-maxDistance && cd <= d+maxDistance {
				stack = append(stack, child)
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Value < matches[j].Value
	})
	return matches
}

// Closest returns the nearest label within maxDistance of query.
func (t *Tree) Closest(query string, maxDistance int) (string, bool) {
	m := t.Search(query, maxDistance)
	if len(m) == 0 {
		return "", false
	}
	return m[0].Value, true
}

// Hint returns " (did you mean X?)" for the closest label, or "" when none
// is within DefaultMaxDistance.
func (t *Tree) Hint(query string) string {
	if s, ok := t.Closest(query, DefaultMaxDistance); ok && s != query {
		return " (did you mean " + `"` + s + `"` + "?)"
	}
	return ""
}

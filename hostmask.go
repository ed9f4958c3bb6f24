/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"strings"
	"unicode/utf8"
)

// HostMask is a (nick, user, host) pattern, each segment either a literal
// string or a string ending in a single trailing '*' wildcard.
type HostMask struct {
	Nick string
	User string
	Host string
}

// ParseHostMask parses wire syntax "nick!user@host" into a HostMask,
// rejecting empty segments and any '*' that isn't the sole trailing
// character of its segment. Grounded on original_source/src/host_mask.rs's
// TryFrom<&str> impl and test suite.
func ParseHostMask(raw string) (HostMask, error) {
	nick, rest, ok := strings.Cut(raw, "!")
	if !ok {
		return HostMask{}, ErrHostMaskMissingNick
	}

	user, host, ok := strings.Cut(rest, "@")
	if !ok {
		return HostMask{}, ErrHostMaskMissingHost
	}

	if invalidHostMaskSegment(nick) {
		return HostMask{}, ErrHostMaskInvalidNick
	}
	if invalidHostMaskSegment(user) {
		return HostMask{}, ErrHostMaskInvalidUser
	}
	if invalidHostMaskSegment(host) {
		return HostMask{}, ErrHostMaskInvalidHost
	}

	return HostMask{Nick: nick, User: user, Host: host}, nil
}

func invalidHostMaskSegment(s string) bool {
	if s == "" {
		return true
	}
	stars := strings.Count(s, "*")
	if stars == 0 {
		return false
	}
	return stars > 1 || !strings.HasSuffix(s, "*")
}

// segment identifies which of the three HostMask fields a trie level matches
// against. The chain always advances Nick -> User -> Host.
type segment int

const (
	segNick segment = iota
	segUser
	segHost
)

func (s segment) next() (segment, bool) {
	switch s {
	case segNick:
		return segUser, true
	case segUser:
		return segHost, true
	default:
		return 0, false
	}
}

func segmentValue(mask HostMask, s segment) string {
	switch s {
	case segNick:
		return mask.Nick
	case segUser:
		return mask.User
	default:
		return mask.Host
	}
}

func withSegmentValue(mask HostMask, s segment, value string) HostMask {
	switch s {
	case segNick:
		mask.Nick = value
	case segUser:
		mask.User = value
	default:
		mask.Host = value
	}
	return mask
}

type hmKeyKind int

const (
	hmKeyChar hmKeyKind = iota
	hmKeyWildcard
	hmKeyEnd
)

type hmKey struct {
	kind hmKeyKind
	ch   rune
}

var hmWildcardKey = hmKey{kind: hmKeyWildcard}
var hmEndKey = hmKey{kind: hmKeyEnd}

type hmNode[T any] struct {
	leaf  *T
	inner *HostMaskIndex[T]
}

// HostMaskIndex is a wildcard-capable prefix trie from HostMask patterns to
// values of type T, keyed across the nick, user and host segments in that
// order. Lookup of a concrete mask returns every stored pattern that matches,
// both literal and wildcard. Grounded on
// original_source/src/host_mask.rs (HostMaskMap<T>).
type HostMaskIndex[T any] struct {
	matcher  segment
	children map[hmKey]*hmNode[T]
}

// NewHostMaskIndex returns an empty trie, ready to match against the nick
// segment first.
func NewHostMaskIndex[T any]() *HostMaskIndex[T] {
	return newHostMaskIndexAt[T](segNick)
}

func newHostMaskIndexAt[T any](s segment) *HostMaskIndex[T] {
	return &HostMaskIndex[T]{matcher: s, children: make(map[hmKey]*hmNode[T])}
}

func takeRune(s string) (r rune, rest string, ok bool) {
	if s == "" {
		return 0, "", false
	}
	r, size := utf8.DecodeRuneInString(s)
	return r, s[size:], true
}

// Insert adds mask -> value to the trie in O(len(mask)) average time.
func (idx *HostMaskIndex[T]) Insert(mask HostMask, value T) {
	cur := segmentValue(mask, idx.matcher)
	r, rest, ok := takeRune(cur)

	var key hmKey
	switch {
	case !ok:
		key = hmEndKey
	case r == '*':
		key = hmWildcardKey
	default:
		key = hmKey{kind: hmKeyChar, ch: r}
	}

	nextMask := withSegmentValue(mask, idx.matcher, rest)

	if key.kind == hmKeyChar {
		idx.childInner(key, idx.matcher).inner.Insert(nextMask, value)
		return
	}

	// Wildcard or end-of-segment: both terminate traversal of this segment
	// and either advance to the next segment or, at the host segment,
	// store the match directly.
	nextSeg, hasNext := idx.matcher.next()
	if !hasNext {
		idx.children[key] = &hmNode[T]{leaf: &value}
		return
	}
	idx.childInner(key, nextSeg).inner.Insert(nextMask, value)
}

func (idx *HostMaskIndex[T]) childInner(key hmKey, seg segment) *hmNode[T] {
	node, ok := idx.children[key]
	if !ok {
		node = &hmNode[T]{inner: newHostMaskIndexAt[T](seg)}
		idx.children[key] = node
	}
	return node
}

// Lookup returns every value stored under a pattern that matches mask: exact
// literal matches plus every wildcard-annotated pattern whose literal prefix
// matches. O(len(mask) * k) where k is the number of wildcard branches
// explored.
func (idx *HostMaskIndex[T]) Lookup(mask HostMask) []T {
	return idx.lookupInto(mask, nil)
}

func (idx *HostMaskIndex[T]) lookupInto(mask HostMask, out []T) []T {
	cur := segmentValue(mask, idx.matcher)
	r, rest, ok := takeRune(cur)

	var key hmKey
	if ok {
		key = hmKey{kind: hmKeyChar, ch: r}
	} else {
		key = hmEndKey
	}

	nextMask := withSegmentValue(mask, idx.matcher, rest)

	if node, present := idx.children[key]; present {
		out = traverseHostMask(out, node, nextMask)
	}
	if node, present := idx.children[hmWildcardKey]; present {
		out = traverseHostMask(out, node, nextMask)
	}
	return out
}

func traverseHostMask[T any](out []T, node *hmNode[T], mask HostMask) []T {
	if node.leaf != nil {
		return append(out, *node.leaf)
	}
	return node.inner.lookupInto(mask, out)
}

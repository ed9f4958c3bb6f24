package titanircd

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestParseHostMaskBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"wildcard middle of string unsupported", "aa*a!bbbb@cccc", false},
		{"multiple wildcards unsupported", "a**!bbb@cccc", false},
		{"empty host segment unsupported", "a!bbb@", false},
		{"empty user segment unsupported", "a!@cccc", false},
		{"missing nick separator", "abbb@cccc", false},
		{"exact mask", "aaaa!bbbb@cccc", true},
		{"trailing wildcard mask", "aaaa!bbbb@ccc*", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHostMask(tc.in)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func mustMask(t *testing.T, raw string) HostMask {
	t.Helper()
	m, err := ParseHostMask(raw)
	require.NoError(t, err)
	return m
}

func TestHostMaskIndexExactMatch(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!bbbb@cccc"), 10)

	got := idx.Lookup(mustMask(t, "aaaa!bbbb@cccc"))
	assert.Equal(t, []int{10}, got)
}

func TestHostMaskIndexWildcardStoredMatchesExactQuery(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!*@*"), 20)

	got := idx.Lookup(mustMask(t, "aaaa!bbbb@cccc"))
	assert.Equal(t, []int{20}, got)
}

func TestHostMaskIndexWildcardStoredMatchesWildcardQuery(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!*@*"), 30)

	got := idx.Lookup(mustMask(t, "aaaa!*@*"))
	assert.Equal(t, []int{30}, got)
}

func TestHostMaskIndexMultipleInsertedOneMatches(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!bbbb@cccc"), 40)
	idx.Insert(mustMask(t, "xxxx!yyyy@zzzz"), 50)

	got := idx.Lookup(mustMask(t, "aaaa!bbbb@cccc"))
	assert.Equal(t, []int{40}, got)
}

func TestHostMaskIndexMultipleMatches(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!*@*"), 60)
	idx.Insert(mustMask(t, "*!bbbb@cccc"), 70)

	got := idx.Lookup(mustMask(t, "aaaa!bbbb@cccc"))
	assert.ElementsMatch(t, []int{60, 70}, got)
}

func TestHostMaskIndexNoMatch(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa!bbbb@cccc"), 80)

	got := idx.Lookup(mustMask(t, "xxxx!yyyy@zzzz"))
	assert.Empty(t, got)
}

func TestHostMaskIndexPartialWildcardMatch(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa*!bbbb@cccc"), 100)

	got := idx.Lookup(mustMask(t, "aaaa1234!bbbb@cccc"))
	assert.Equal(t, []int{100}, got)
}

func TestHostMaskIndexPartialWildcardNoMatch(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa*!bbbb@cccc"), 110)

	got := idx.Lookup(mustMask(t, "aaab!bbbb@cccc"))
	assert.Empty(t, got)
}

func TestHostMaskIndexMultiplePartialWildcards(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa*!bbbb@cccc"), 120)
	idx.Insert(mustMask(t, "xxxx*!yyyy@zzzz"), 130)

	got := idx.Lookup(mustMask(t, "aaaa123!bbbb@cccc"))
	assert.Equal(t, []int{120}, got)
}

func TestHostMaskIndexMixedWildcardStyles(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa*!bbbb@cccc"), 140)
	idx.Insert(mustMask(t, "xxxx!*@*"), 150)

	got1 := idx.Lookup(mustMask(t, "aaaa123!bbbb@cccc"))
	assert.Equal(t, []int{140}, got1)

	got2 := idx.Lookup(mustMask(t, "xxxx!testyyyy@zzzz"))
	assert.Equal(t, []int{150}, got2)
}

func TestHostMaskIndexPartialWildcardMultipleMatches(t *testing.T) {
	idx := NewHostMaskIndex[int]()
	idx.Insert(mustMask(t, "aaaa*!bbbb@cccc"), 160)
	idx.Insert(mustMask(t, "aaaa*!bbbb@ccc*"), 170)

	got := idx.Lookup(mustMask(t, "aaaa1234!bbbb@cccc"))
	assert.ElementsMatch(t, []int{160, 170}, got)
}

func TestPermissionBoundaries(t *testing.T) {
	assert.True(t, PermFounder.CanSetPermission(PermOp, PermNormal))
	assert.False(t, PermOp.CanSetPermission(PermFounder, PermNormal))
	assert.False(t, PermHalfOp.CanSetPermission(PermHalfOp, PermNormal))
	assert.True(t, PermVoice.CanChatter())
	assert.False(t, PermBan.CanChatter())
	assert.False(t, PermBan.CanJoin())
}

func TestPermissionBanLosesTieToPositiveRank(t *testing.T) {
	idx := NewHostMaskIndex[Permission]()
	idx.Insert(mustMask(t, "*!*@evil.*"), PermBan)
	idx.Insert(mustMask(t, "good!*@evil.host"), PermVoice)

	matches := idx.Lookup(mustMask(t, "good!x@evil.host"))
	require.Len(t, matches, 2)

	best := matches[0]
	for _, p := range matches[1:] {
		if p > best {
			best = p
		}
	}
	assert.Equal(t, PermVoice, best)
}

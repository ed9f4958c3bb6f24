/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import "math"

// Permission is an ordered channel rank. Ban sorts below Normal so that a
// plain numeric max() over a set of matching host-mask entries already gives
// the rule in spec §3: any positive rank dominates a Ban on tie.
//
// Grounded on original_source/src/channel/permissions.rs; that file's custom
// Ord impl for the (Ban, Normal) pair collapses to the same ordering a bare
// numeric comparison gives for these constants, so no custom comparator is
// needed here.
type Permission int16

const (
	PermBan     Permission = -1
	PermNormal  Permission = 0
	PermVoice   Permission = 1
	PermHalfOp  Permission = math.MaxInt16 - 2
	PermOp      Permission = math.MaxInt16 - 1
	PermFounder Permission = math.MaxInt16
)

// CanJoin reports whether this rank may join the channel.
func (p Permission) CanJoin() bool { return p != PermBan }

// CanChatter reports whether this rank may send channel messages.
func (p Permission) CanChatter() bool { return p != PermBan }

// CanSetTopic reports whether this rank may change the topic.
func (p Permission) CanSetTopic() bool { return p >= PermHalfOp }

// CanKick reports whether this rank may kick members.
func (p Permission) CanKick() bool { return p >= PermHalfOp }

// CanSetPermission reports whether p may move a target from old to newPerm.
// Requires p to at least be a half-operator and to strictly outrank both the
// requested permission and the target's current permission.
func (p Permission) CanSetPermission(newPerm, old Permission) bool {
	return p >= PermHalfOp && p > newPerm && p > old
}

// Prefix returns the nick-list prefix character for this rank, or "" for
// Normal and Ban.
func (p Permission) Prefix() string {
	switch {
	case p >= PermFounder:
		return "~"
	case p >= PermOp:
		return "@"
	case p >= PermHalfOp:
		return "%"
	case p >= PermVoice:
		return "+"
	default:
		return ""
	}
}

// modeLetterToPermission maps a channel MODE letter to the rank it grants.
var modeLetterToPermission = map[byte]Permission{
	'q': PermFounder,
	'o': PermOp,
	'h': PermHalfOp,
	'v': PermVoice,
}

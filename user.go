/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import "time"

// UserID is the stable integer identity assigned to an account at first
// successful authentication (the `users.id` row). Nicks may change; UserID
// never does.
type UserID int64

// User is an in-memory session snapshot: the Client actor's own copy of who
// it currently is. It is a plain value, freely copied between actors (e.g.
// into a Channel's roster) - never shared by pointer and mutated in place,
// so it needs no lock. Grounded on original_source/src/connection.rs's
// InitiatedConnection.
type User struct {
	ID              UserID
	Nick            string
	Username        string
	RealName        string
	Cloak           string // displayable host, see spec §6 identity prefix
	Away            string // empty when not away
	AuthenticatedAt time.Time
}

// Prefix renders the nick!user@host form used to prefix broadcasts.
func (u User) Prefix() string {
	return u.Nick + "!" + u.Username + "@" + u.Cloak
}

func (u User) isAway() bool { return u.Away != "" }

/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import "time"

// Limiter constants. MaxMsgLength is raised from dircd's 512 to the 1024-byte
// tolerance this protocol subset requires; the rest keep dircd's values.
const (
	MaxMsgLength  int = 1024
	MaxMsgParams  int = 15
	MaxChanLength int = 16
	MaxNickLength int = 16
	MaxUserLength int = 16
	MaxTopicLength int = 400
	MaxListItems  int = 256

	ServerVersion = "titanircd-0.1"
)

// Liveness timing, per spec §4.2.
const (
	PingInterval = 30 * time.Second
	PingTimeout  = 120 * time.Second
)

// WriteTimeout bounds how long a single write to a client socket may block,
// carried over from dircd's server.go.
const WriteTimeout = 5 * time.Second

// Persistence timing, per spec §4.5.
const (
	PersistenceGCInterval      = 5 * time.Minute
	DefaultMessageReplayWindow = 24 * time.Hour
)

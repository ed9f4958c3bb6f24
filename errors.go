/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

// Error is a workaround to allow for immutable error strings
// which satisfy the error interface.
type Error string

func (err Error) Error() string {
	return string(err)
}

func (err Error) String() string {
	return string(err)
}

// Immutable error strings
const (
	ErrNotEnoughData Error = "did not receive enough data from the client"
	ErrDataTooLong   Error = "received data from the client is too long"
	ErrWhitespace    Error = "all whitespace"
	ErrPrefixed      Error = "prefixed message from client"
	ErrMissingParams Error = "missing parameters"
	ErrTooManyParams Error = "too many parameters"
	ErrNotRegistered Error = "you must register first"

	ErrHostMaskMissingNick Error = "host mask missing nick separator"
	ErrHostMaskMissingHost Error = "host mask missing host separator"
	ErrHostMaskInvalidNick Error = "host mask nick segment invalid"
	ErrHostMaskInvalidUser Error = "host mask user segment invalid"
	ErrHostMaskInvalidHost Error = "host mask host segment invalid"

	ErrNoCapsRequested  Error = "client never requested capabilities"
	ErrNegotiationEnded Error = "CAP END reached without successful authentication"
	ErrUnexpectedInput  Error = "unexpected input during negotiation"
	ErrSASLMalformed    Error = "malformed SASL PLAIN payload"
	ErrSASLIdentityMismatch Error = "authzid and authnid do not match"
	ErrSASLWrongPassword Error = "password did not match stored hash"

	ErrNotOnChannel    Error = "not on that channel"
	ErrNoSuchChannel   Error = "no such channel"
	ErrNoSuchNick      Error = "no such nick"
	ErrBannedFromChan  Error = "banned from channel"
	ErrChanOpNeeded    Error = "channel operator privileges needed"
	ErrNickInUse       Error = "nickname already in use"

	ErrServerClosed Error = "server closed"
)

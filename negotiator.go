/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"encoding/base64"
	"strings"

	"git.sr.ht/~emersion/go-sasl"
)

// Negotiator is the single pre-registration state machine for one Client:
// it owns CAP LS/REQ/END bookkeeping, staged NICK/USER/PASS values, and (if
// requested) the SASL PLAIN exchange, then performs the one-time handoff
// into a registered session. Unifying these into one state machine (rather
// than the two separate authenticated/unauthenticated actor types
// original_source/src/negotiator/ keeps side by side) is possible because
// nothing here needs a distinct mailbox from the Client's own - it runs
// inside the same actor, just gating Register() until every precondition
// is met.
type Negotiator struct {
	client *Client

	nick     string
	username string
	realname string
	password string

	sasl        sasl.Server
	authing     bool
	registered  bool
}

// NewNegotiator returns a fresh negotiator bound to client.
func NewNegotiator(client *Client) *Negotiator {
	return &Negotiator{client: client}
}

// Registered reports whether the handoff into a live session has happened.
func (n *Negotiator) Registered() bool { return n.registered }

func (n *Negotiator) HandlePass(msg *Message) {
	if len(msg.Params) > 0 {
		n.password = msg.Params[0]
	}
}

func (n *Negotiator) HandleNick(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	n.nick = msg.Params[0]
	n.maybeFinish()
}

func (n *Negotiator) HandleUser(msg *Message) {
	if len(msg.Params) < 4 {
		n.client.replyNumeric(ReplyNeedMoreParams, []string{"*", CmdUser}, ErrMissingParams.Error())
		return
	}
	n.username = msg.Params[0]
	n.realname = msg.Text
	n.maybeFinish()
}

// HandleCap drives the CAP LS/REQ/END subcommands. Grounded on dircd's
// capabilities.go CAP dance, trimmed to the one capability this server
// advertises.
func (n *Negotiator) HandleCap(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	sub := strings.ToUpper(msg.Params[0])

	switch sub {
	case CapSubLS:
		n.client.caps.Begin()
		reply := msgPool.New()
		reply.Command = CmdCap
		reply.Params = []string{"*", CapSubLS}
		reply.Text = strings.Join(supportedCapabilities, " ")
		n.client.send(reply)

	case CapSubList:
		reply := msgPool.New()
		reply.Command = CmdCap
		reply.Params = []string{"*", CapSubList}
		n.client.send(reply)

	case CapSubReq:
		tokens := strings.Fields(msg.Text)
		if len(tokens) == 0 && len(msg.Params) > 1 {
			tokens = msg.Params[1:]
		}
		if len(tokens) == 0 {
			return
		}
		n.client.caps.Begin()
		acked, naked := n.client.caps.Request(tokens)

		if len(acked) > 0 {
			reply := msgPool.New()
			reply.Command = CmdCap
			reply.Params = []string{"*", CapSubAck}
			reply.Text = strings.Join(acked, " ")
			n.client.send(reply)
		}
		if len(naked) > 0 {
			reply := msgPool.New()
			reply.Command = CmdCap
			reply.Params = []string{"*", "NAK"}
			reply.Text = strings.Join(naked, " ")
			n.client.send(reply)
		}

	case CapSubEnd:
		n.client.caps.End()
		n.maybeFinish()
	}
}

// HandleAuthenticate drives the SASL PLAIN exchange via AUTHENTICATE lines,
// using go-sasl's server-side PLAIN mechanism backed by Persistence's
// password verification.
func (n *Negotiator) HandleAuthenticate(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	token := msg.Params[0]

	if !n.authing {
		if !strings.EqualFold(token, SaslPlain) {
			n.client.replyNumeric(ReplySASLFail, []string{"*"}, "SASL mechanism not supported")
			return
		}
		n.authing = true
		n.sasl = sasl.NewPlainServer(func(identity, username, password string) error {
			if identity != "" && identity != username {
				return ErrSASLIdentityMismatch
			}
			ok := make(chan bool, 1)
			n.client.srv.persistence.VerifyOrCreateUser(username, password, ok)
			if !<-ok {
				return ErrSASLWrongPassword
			}
			n.username = username
			return nil
		})

		req := msgPool.New()
		req.Command = CmdAuth
		req.Text = "+"
		n.client.send(req)
		return
	}

	if token == "*" {
		n.client.replyNumeric(ReplySASLAborted, []string{"*"}, "SASL authentication aborted")
		n.authing = false
		n.sasl = nil
		return
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		n.client.replyNumeric(ReplySASLFail, []string{"*"}, ErrSASLMalformed.Error())
		return
	}

	_, done, err := n.sasl.Next(raw)
	if err != nil {
		n.client.replyNumeric(ReplySASLFail, []string{"*"}, err.Error())
		n.authing = false
		n.sasl = nil
		return
	}
	if done {
		idReply := make(chan UserID, 1)
		n.client.srv.persistence.LookupUserID(n.username, idReply)
		n.client.user.ID = <-idReply

		n.client.replyNumeric(ReplyLoggedIn, []string{"*", n.username}, "You are now logged in as "+n.username)
		n.client.replyNumeric(ReplySASLSuccess, []string{"*"}, "SASL authentication successful")
		n.authing = false
		n.maybeFinish()
	}
}

// maybeFinish checks whether every registration precondition has been met
// (nick + user staged, CAP negotiation not in progress) and, if so,
// performs the one-time handoff to a live session.
func (n *Negotiator) maybeFinish() {
	if n.registered || n.nick == "" || n.username == "" || n.client.caps.Negotiating() {
		return
	}

	n.registered = true
	n.client.user.Nick = n.nick
	n.client.user.Username = n.username
	n.client.user.RealName = n.realname
	n.client.user.Cloak = n.client.remoteAddr

	reserved := make(chan bool, 1)
	n.client.srv.persistence.ReserveNick(n.nick, n.client.user.ID, reserved)
	if !<-reserved {
		n.client.replyNumeric(ReplyNicknameInUse, []string{"*", n.nick}, "Nickname is already in use.")
		n.registered = false
		return
	}

	n.client.srv.Register(n.client, n.client.user)
}

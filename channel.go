/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"strings"
	"time"
)

// Topic is the current topic text plus its provenance, per spec §3.
type Topic struct {
	Text   string
	SetBy  string
	SetAt  time.Time
}

// rosterEntry is one joined user's session snapshot as seen from inside the
// Channel actor - a private copy, never shared with the Client that owns it.
type rosterEntry struct {
	client *Client
	user   User
}

// Channel is the per-channel actor: a name, a topic, a membership roster and
// a permission index, all owned exclusively by the goroutine draining its
// mailbox. Grounded on dircd's channel.go (Nicks/Ops/HalfOps/Voiced maps,
// Join/Part/Send) generalized per original_source/src/channel.rs's Handler
// impls for ChannelJoin/ChannelPart/ChannelMessage/ChannelUpdateTopic/
// ChannelKickUser/UserNickChange/ServerDisconnect.
type Channel struct {
	mail *mailbox
	srv  *Server

	name  string
	topic Topic

	roster map[string]*rosterEntry // keyed by lowercased nick
	perms  *HostMaskIndex[Permission]

	invited map[string]bool // lowercased nick -> invited
}

// NewChannel creates an empty channel with the given name, scheduled on the
// server's channel ActorPool.
func NewChannel(srv *Server, name string) *Channel {
	return &Channel{
		mail:    newMailbox(srv.channelPool),
		srv:     srv,
		name:    name,
		roster:  make(map[string]*rosterEntry),
		perms:   NewHostMaskIndex[Permission](),
		invited: make(map[string]bool),
	}
}

func (ch *Channel) do(task func()) { ch.mail.enqueue(task) }

// permissionOf returns the best (highest-ranked) permission matching u's
// current hostmask, or PermNormal if nothing matches.
func (ch *Channel) permissionOf(u User) Permission {
	mask := HostMask{Nick: u.Nick, User: u.Username, Host: u.Cloak}
	best := PermNormal
	for _, p := range ch.perms.Lookup(mask) {
		if p > best {
			best = p
		}
	}
	return best
}

func (ch *Channel) broadcast(msg *Message, exclude *Client) {
	buf := msg.RenderBuffer()
	defer bufpool.Recycle(buf)

	for _, entry := range ch.roster {
		if entry.client == exclude {
			continue
		}
		entry.client.deliver(buf.Bytes())
	}
}

// Join adds client (with its current user snapshot) to the roster, announces
// JOIN to every member including the joiner, then privately replies with the
// topic and the names list. Replies nil if the client is banned. Notifies
// Persistence so membership survives a disconnect (spec §4.3 ChannelJoined).
func (ch *Channel) Join(client *Client, user User, reply chan<- *Channel) {
	ch.do(func() {
		key := strings.ToLower(user.Nick)

		if ch.permissionOf(user) == PermBan {
			reply <- nil
			return
		}

		ch.roster[key] = &rosterEntry{client: client, user: user}
		delete(ch.invited, key)

		join := msgPool.New()
		join.Sender = user.Prefix()
		join.Command = CmdJoin
		join.Params = []string{ch.name}
		ch.broadcast(join, nil)
		msgPool.Recycle(join)

		client.sendTopic(ch.name, ch.topic)
		client.sendNames(ch.name, ch.namesList())

		if ch.srv.persistence != nil {
			ch.srv.persistence.ChannelJoined(ch.name, user.ID)
		}

		reply <- ch
	})
}

// Part removes client from the roster. The parting client receives the PART
// line directly; every remaining member receives it via the broadcast,
// matching the two-step notify pattern in original_source/src/channel.rs.
// Notifies Persistence so the membership row no longer drives
// reconnect-rejoin (spec §4.3 ChannelParted).
func (ch *Channel) Part(client *Client, nick, reason string) {
	ch.do(func() {
		key := strings.ToLower(nick)
		entry, ok := ch.roster[key]
		if !ok {
			return
		}
		delete(ch.roster, key)

		part := msgPool.New()
		part.Sender = entry.user.Prefix()
		part.Command = CmdPart
		part.Params = []string{ch.name}
		part.Text = reason

		buf := part.RenderBuffer()
		client.deliver(buf.Bytes())
		bufpool.Recycle(buf)

		ch.broadcast(part, nil)
		msgPool.Recycle(part)

		if ch.srv.persistence != nil {
			ch.srv.persistence.ChannelParted(ch.name, entry.user.ID)
		}
	})
}

// ServerDisconnect removes nick from the roster (if present) and announces
// QUIT only to the remaining members - the departing client never receives
// its own quit notice, since its connection is already gone.
func (ch *Channel) ServerDisconnect(nick, reason string) {
	ch.do(func() {
		key := strings.ToLower(nick)
		entry, ok := ch.roster[key]
		if !ok {
			return
		}
		delete(ch.roster, key)

		quit := msgPool.New()
		quit.Sender = entry.user.Prefix()
		quit.Command = CmdQuit
		quit.Text = reason
		ch.broadcast(quit, nil)
		msgPool.Recycle(quit)
	})
}

// Message fans a PRIVMSG/NOTICE out to every member except the sender, who
// must already be on the roster and not banned (spec §4.3 "chatter"
// permission). Persists the durable ChannelMessage effect for PRIVMSG,
// advancing the live receivers' last-seen markers so they are never
// replayed their own traffic on reconnect.
func (ch *Channel) Message(sender *Client, senderNick, command, text string) {
	ch.do(func() {
		key := strings.ToLower(senderNick)
		entry, ok := ch.roster[key]
		if !ok {
			return
		}
		if !ch.permissionOf(entry.user).CanChatter() {
			return
		}

		msg := msgPool.New()
		msg.Sender = entry.user.Prefix()
		msg.Command = command
		msg.Params = []string{ch.name}
		msg.Text = text
		ch.broadcast(msg, sender)
		msgPool.Recycle(msg)

		if command == CmdPrivMsg && ch.srv.persistence != nil {
			receivers := make([]UserID, 0, len(ch.roster))
			for _, e := range ch.roster {
				receivers = append(receivers, e.user.ID)
			}
			ch.srv.persistence.RecordChannelMessage(ch.name, entry.user.Prefix(), text, receivers, make(chan time.Time, 1))
		}
	})
}

// NickChange updates the roster entry in place. The NICK line itself is
// broadcast by the Server, not the Channel, so no message is sent here.
func (ch *Channel) NickChange(oldNick string, user User, client *Client) {
	ch.do(func() {
		oldKey := strings.ToLower(oldNick)
		if _, ok := ch.roster[oldKey]; !ok {
			return
		}
		delete(ch.roster, oldKey)
		ch.roster[strings.ToLower(user.Nick)] = &rosterEntry{client: client, user: user}
	})
}

// UpdateTopic replaces the topic and announces it to the whole roster.
// Requires at least half-operator rank; a lower-ranked setter gets
// ERR_CHANOPRIVSNEEDED instead.
func (ch *Channel) UpdateTopic(setterNick, text string) {
	ch.do(func() {
		key := strings.ToLower(setterNick)
		entry, ok := ch.roster[key]
		if !ok {
			return
		}
		if !ch.permissionOf(entry.user).CanSetTopic() {
			entry.client.replyNumeric(ReplyChanOpPrivsNeeded, []string{entry.user.Nick, ch.name}, ErrChanOpNeeded.Error())
			return
		}

		ch.topic = Topic{Text: text, SetBy: entry.user.Nick, SetAt: time.Now()}

		topicMsg := msgPool.New()
		topicMsg.Sender = entry.user.Prefix()
		topicMsg.Command = CmdTopic
		topicMsg.Params = []string{ch.name}
		topicMsg.Text = text
		ch.broadcast(topicMsg, nil)
		msgPool.Recycle(topicMsg)
	})
}

// FetchTopic returns the current topic via reply, a read-only query.
func (ch *Channel) FetchTopic(reply chan<- Topic) {
	ch.do(func() { reply <- ch.topic })
}

// MemberList returns the rendered names list via reply, a read-only query.
func (ch *Channel) MemberList(reply chan<- []string) {
	ch.do(func() { reply <- ch.namesList() })
}

func (ch *Channel) namesList() []string {
	buf := borrowStringSlice()
	defer buf.release()

	for _, entry := range ch.roster {
		buf.items = append(buf.items, ch.permissionOf(entry.user).Prefix()+entry.user.Nick)
	}

	names := make([]string, len(buf.items))
	copy(names, buf.items)
	return names
}

// KickUser announces KICK to everyone on the roster (the target included),
// sends target's client a second, direct copy of the KICK line, tells it via
// channelKicked to drop its local channel handle, then removes target from
// the roster.
// Requires at least half-operator rank; a lower-ranked kicker gets
// ERR_CHANOPRIVSNEEDED instead and the kick is refused.
func (ch *Channel) KickUser(kickerNick, targetNick, reason string) {
	ch.do(func() {
		kickerKey := strings.ToLower(kickerNick)
		kicker, ok := ch.roster[kickerKey]
		if !ok {
			return
		}

		targetKey := strings.ToLower(targetNick)
		target, ok := ch.roster[targetKey]
		if !ok {
			return
		}

		if !ch.permissionOf(kicker.user).CanKick() {
			kicker.client.replyNumeric(ReplyChanOpPrivsNeeded, []string{kicker.user.Nick, ch.name}, ErrChanOpNeeded.Error())
			return
		}

		kick := msgPool.New()
		kick.Sender = kicker.user.Prefix()
		kick.Command = CmdKick
		kick.Params = []string{ch.name, target.user.Nick}
		kick.Text = reason
		ch.broadcast(kick, nil)

		buf := kick.RenderBuffer()
		target.client.deliver(buf.Bytes())
		bufpool.Recycle(buf)
		msgPool.Recycle(kick)

		target.client.channelKicked(ch.name)
		delete(ch.roster, targetKey)

		if ch.srv.persistence != nil {
			ch.srv.persistence.ChannelParted(ch.name, target.user.ID)
		}
	})
}

// Invite marks nick as invited; the mark is cleared when that nick joins.
// The channel has no invite-only mode, so the mark does not change whether a
// join is allowed.
func (ch *Channel) Invite(nick string) {
	ch.do(func() { ch.invited[strings.ToLower(nick)] = true })
}

// SetPermission grants or revokes targetNick's channel rank on behalf of
// setterNick (channel MODE +o/+h/+v and their removals). setterNick must
// outrank both the requested permission and the target's current one
// (Permission.CanSetPermission); otherwise the change is refused with
// ERR_CHANOPRIVSNEEDED. The grant is written to both the in-memory
// hostmask index and Persistence, so it survives a reconnect (spec §4.3
// SetMode / §4.5 SetUserChannelPermissions).
func (ch *Channel) SetPermission(setterNick, targetNick string, perm Permission) {
	ch.do(func() {
		setter, ok := ch.roster[strings.ToLower(setterNick)]
		if !ok {
			return
		}
		target, ok := ch.roster[strings.ToLower(targetNick)]
		if !ok {
			return
		}

		setterPerm := ch.permissionOf(setter.user)
		oldPerm := ch.permissionOf(target.user)

		if !setterPerm.CanSetPermission(perm, oldPerm) {
			setter.client.replyNumeric(ReplyChanOpPrivsNeeded, []string{setter.user.Nick, ch.name}, ErrChanOpNeeded.Error())
			return
		}

		mask := HostMask{Nick: target.user.Nick, User: "*", Host: "*"}
		ch.perms.Insert(mask, perm)

		if ch.srv.persistence != nil {
			ch.srv.persistence.SetUserChannelPermissions(ch.name, target.user.ID, perm)
		}
	})
}

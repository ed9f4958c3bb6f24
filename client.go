/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"bufio"
	"bytes"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btnmasher/random"
	"github.com/btnmasher/titanircd/shared/stringutils"
)

// anonIDCounter mints connection-scoped placeholder UserIDs for sessions
// that have not (yet, or ever) authenticated via SASL, so two concurrently
// connected anonymous clients never collide on a shared nick-reservation
// owner. Real accounts always have a positive SQLite-assigned ID; these
// stay negative so the two ID spaces can never overlap.
var anonIDCounter int64

func nextAnonUserID() UserID {
	return UserID(atomic.AddInt64(&anonIDCounter, -1))
}

// Client is the per-connection actor. Its mailbox serializes every inbound
// command, every RPC reply it blocks on, and every unsolicited broadcast
// delivered to it by a Channel or the Server, so no two of those can ever
// interleave mid-update. Grounded on dircd's Conn (read/write loop, PING
// heartbeat) generalized per original_source/src/client.rs's
// ClientSession actor (dispatch table, started()/stopped() lifecycle).
type Client struct {
	mail *mailbox
	srv  *Server

	sock       net.Conn
	remoteAddr string

	incoming *bufio.Scanner
	outgoing *bufio.Writer

	writeQueue chan *bytes.Buffer
	kill       chan struct{}
	killOnce   sync.Once

	user User
	caps *Capabilities
	neg  *Negotiator

	channels map[string]*Channel // lowercased name -> handle

	lastPingSent string
	lastPingRecv string
	heartbeat    *time.Timer

	graceful bool
	quitMsg  string
}

// NewClient wraps an accepted socket in a Client actor scheduled on the
// server's client ActorPool.
func NewClient(srv *Server, sock net.Conn) *Client {
	c := &Client{
		mail:       newMailbox(srv.clientPool),
		srv:        srv,
		sock:       sock,
		remoteAddr: sock.RemoteAddr().String(),
		incoming:   bufio.NewScanner(sock),
		outgoing:   bufio.NewWriter(sock),
		writeQueue: make(chan *bytes.Buffer, 16),
		kill:       make(chan struct{}),
		caps:       NewCapabilities(),
		channels:   make(map[string]*Channel),
		heartbeat:  time.NewTimer(PingInterval),
	}
	c.neg = NewNegotiator(c)
	c.user.ID = nextAnonUserID()
	return c
}

func (c *Client) do(task func()) { c.mail.enqueue(task) }

// deliver writes a pre-rendered wire message to this client's write queue.
// Safe to call from any goroutine, including from inside a Channel or
// Server actor's own mailbox.
func (c *Client) deliver(wire []byte) {
	buf := bufpool.New()
	buf.Write(wire)
	select {
	case c.writeQueue <- buf:
	default:
		bufpool.Recycle(buf)
		c.srv.log.Warnf("dropping message to slow client %s", c.remoteAddr)
	}
}

// serve runs the read/write loops for the lifetime of one connection. Each
// inbound line is parsed inline on this goroutine (parsing has no shared
// state) and the resulting dispatch is handed to the mailbox so it
// serializes with RPC replies and inbound broadcasts.
func (c *Client) serve() {
	defer c.cleanup()

	go c.writeLoop()

	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			c.srv.log.Errorf("panic serving %s: %v\n%s", c.remoteAddr, r, buf)
		}
	}()

	for {
		c.sock.SetReadDeadline(time.Now().Add(PingTimeout))
		if !c.incoming.Scan() {
			break
		}

		line := c.incoming.Text()
		msg, err := Parse(line)
		if err != nil {
			continue
		}

		done := make(chan struct{})
		c.do(func() {
			c.dispatch(msg)
			msgPool.Recycle(msg)
			close(done)
		})
		<-done
	}

	c.doQuit("Connection closed.")
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.kill:
			c.sock.Close()
			return
		case buf := <-c.writeQueue:
			c.sock.SetWriteDeadline(time.Now().Add(WriteTimeout))
			c.outgoing.Write(buf.Bytes())
			c.outgoing.Flush()
			bufpool.Recycle(buf)
		case <-c.heartbeat.C:
			c.doHeartbeat()
		}
	}
}

func (c *Client) doHeartbeat() {
	if c.lastPingRecv != c.lastPingSent && c.lastPingSent != "" {
		c.doQuit("Ping timeout.")
		return
	}
	nonce := random.String(10)
	c.lastPingSent = nonce
	msg := msgPool.New()
	msg.Command = CmdPing
	msg.Text = nonce
	buf := msg.RenderBuffer()
	c.deliver(buf.Bytes())
	bufpool.Recycle(buf)
	msgPool.Recycle(msg)
	c.heartbeat.Reset(PingInterval)
}

func (c *Client) cleanup() {
	c.killOnce.Do(func() { close(c.kill) })
	c.sock.Close()
	c.srv.untrackConn(c.remoteAddr)
}

// doQuit runs the disconnect sequence: announce departure to every joined
// channel and the server directory, then stop the socket. Grounded on
// original_source/src/client.rs's `stopped()`.
func (c *Client) doQuit(reason string) {
	if c.user.Nick != "" {
		c.srv.Unregister(c.user.Nick)
		for _, ch := range c.channels {
			ch.ServerDisconnect(c.user.Nick, reason)
		}
	}
	c.killOnce.Do(func() { close(c.kill) })
}

// dispatch routes one parsed inbound message to its handler. Runs
// exclusively inside this client's mailbox.
func (c *Client) dispatch(msg *Message) {
	if msg.Sender != "" && msg.Sender != c.user.Nick {
		c.srv.log.Warnf("dropping spoofed-prefix message from %s", c.remoteAddr)
		return
	}

	switch msg.Command {
	case CmdCap:
		c.neg.HandleCap(msg)
	case CmdAuth:
		c.neg.HandleAuthenticate(msg)
	case CmdPass:
		c.neg.HandlePass(msg)
	case CmdUser:
		c.neg.HandleUser(msg)
	case CmdNick:
		if !c.neg.Registered() {
			c.neg.HandleNick(msg)
			return
		}
		c.handleNickChange(msg)
	case CmdPong:
		if len(msg.Params) > 0 {
			c.lastPingRecv = msg.Params[0]
		} else {
			c.lastPingRecv = msg.Text
		}
	case CmdPing:
		reply := msgPool.New()
		reply.Command = CmdPong
		reply.Text = msg.Text
		buf := reply.RenderBuffer()
		c.deliver(buf.Bytes())
		bufpool.Recycle(buf)
		msgPool.Recycle(reply)
	case CmdQuit:
		c.graceful = true
		c.quitMsg = msg.Text
		c.doQuit(msg.Text)
	case CmdJoin:
		c.handleJoin(msg)
	case CmdPart:
		c.handlePart(msg)
	case CmdMode:
		c.handleMode(msg)
	case CmdTopic:
		c.handleTopic(msg)
	case CmdNames:
		c.handleNames(msg)
	case CmdList:
		c.handleList(msg)
	case CmdInvite:
		c.handleInvite(msg)
	case CmdKick:
		c.handleKick(msg)
	case CmdPrivMsg:
		c.handleMessage(msg, CmdPrivMsg)
	case CmdNotice:
		c.handleMessage(msg, CmdNotice)
	case CmdMotd:
		c.sendMOTD(c.srv.motd)
	case CmdVersion:
		notice := msgPool.New()
		notice.Command = CmdNotice
		notice.Params = []string{c.user.Nick}
		notice.Text = ServerVersion
		c.send(notice)
	}
}

func (c *Client) handleNickChange(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	newNick := msg.Params[0]
	oldNick := c.user.Nick

	granted := make(chan bool, 1)
	c.srv.persistence.ReserveNick(newNick, c.user.ID, granted)
	if !<-granted {
		c.replyNumeric(ReplyNicknameInUse, []string{oldNick, newNick}, "Nickname is already in use.")
		return
	}

	c.user.Nick = newNick
	c.srv.UserNickChange(c, oldNick, c.user)
	for _, ch := range c.channels {
		ch.NickChange(oldNick, c.user, c)
	}
}

func (c *Client) handleJoin(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		reply := make(chan *Channel, 1)
		c.srv.JoinChannel(c, c.user, name, reply)
		ch := <-reply
		if ch == nil {
			c.replyNumeric(ReplyBannedFromChan, []string{c.user.Nick, name}, ErrBannedFromChan.Error())
			continue
		}
		c.channels[strings.ToLower(name)] = ch
	}
}

func (c *Client) handlePart(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		key := strings.ToLower(strings.TrimSpace(name))
		ch, ok := c.channels[key]
		if !ok {
			c.replyNumeric(ReplyNotOnChannel, []string{c.user.Nick, name}, ErrNotOnChannel.Error())
			continue
		}
		delete(c.channels, key)
		ch.Part(c, c.user.Nick, msg.Text)
	}
}

func (c *Client) handleMode(msg *Message) {
	if len(msg.Params) < 2 {
		return
	}
	name, modeSpec := msg.Params[0], msg.Params[1]
	ch, ok := c.channels[strings.ToLower(name)]
	if !ok {
		c.replyNumeric(ReplyNotOnChannel, []string{c.user.Nick, name}, ErrNotOnChannel.Error())
		return
	}

	adding := true
	targetIdx := 2
	for _, r := range modeSpec {
		switch r {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			perm, known := modeLetterToPermission[byte(r)]
			if !known || targetIdx >= len(msg.Params) {
				continue
			}
			targetNick := msg.Params[targetIdx]
			targetIdx++
			if adding {
				ch.SetPermission(c.user.Nick, targetNick, perm)
			} else {
				ch.SetPermission(c.user.Nick, targetNick, PermNormal)
			}
		}
	}
}

func (c *Client) handleTopic(msg *Message) {
	if len(msg.Params) == 0 {
		return
	}
	name := msg.Params[0]
	ch, ok := c.channels[strings.ToLower(name)]
	if !ok {
		c.replyNumeric(ReplyNotOnChannel, []string{c.user.Nick, name}, ErrNotOnChannel.Error())
		return
	}

	if msg.Text == "" && len(msg.Params) < 2 {
		reply := make(chan Topic, 1)
		ch.FetchTopic(reply)
		c.sendTopic(name, <-reply)
		return
	}

	ch.UpdateTopic(c.user.Nick, msg.Text)
}

func (c *Client) handleNames(msg *Message) {
	if len(msg.Params) == 0 {
		for name, ch := range c.channels {
			reply := make(chan []string, 1)
			ch.MemberList(reply)
			c.sendNames(name, <-reply)
		}
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		ch, ok := c.channels[strings.ToLower(name)]
		if !ok {
			continue
		}
		reply := make(chan []string, 1)
		ch.MemberList(reply)
		c.sendNames(name, <-reply)
	}
}

func (c *Client) handleList(msg *Message) {
	reply := make(chan []channelListing, 1)
	c.srv.ChannelList(reply)
	listings := <-reply

	start := msgPool.New()
	start.Code = ReplyListStart
	start.Params = []string{c.user.Nick}
	start.Text = "Channel : Users  Name"
	c.send(start)

	for _, l := range listings {
		m := msgPool.New()
		m.Code = ReplyList
		m.Params = []string{c.user.Nick, l.Name, strconv.Itoa(l.Members)}
		m.Text = l.Topic
		c.send(m)
	}

	end := msgPool.New()
	end.Code = ReplyEndOfList
	end.Params = []string{c.user.Nick}
	end.Text = "End of LIST"
	c.send(end)
}

func (c *Client) handleInvite(msg *Message) {
	if len(msg.Params) < 2 {
		return
	}
	nick, name := msg.Params[0], msg.Params[1]
	ch, ok := c.channels[strings.ToLower(name)]
	if !ok {
		c.replyNumeric(ReplyNotOnChannel, []string{c.user.Nick, name}, ErrNotOnChannel.Error())
		return
	}
	ch.Invite(nick)
}

func (c *Client) handleKick(msg *Message) {
	if len(msg.Params) < 2 {
		return
	}
	name := msg.Params[0]
	ch, ok := c.channels[strings.ToLower(name)]
	if !ok {
		c.replyNumeric(ReplyNotOnChannel, []string{c.user.Nick, name}, ErrNotOnChannel.Error())
		return
	}
	for _, target := range strings.Split(msg.Params[1], ",") {
		ch.KickUser(c.user.Nick, strings.TrimSpace(target), msg.Text)
	}
}

func (c *Client) handleMessage(msg *Message, command string) {
	if len(msg.Params) == 0 {
		return
	}
	target := msg.Params[0]

	if !strings.HasPrefix(target, "#") {
		ok := make(chan bool, 1)
		c.srv.PeerToPeerMessage(c.user, target, command, msg.Text, ok)
		if !<-ok {
			c.replyNumeric(ReplyNoSuchNick, []string{c.user.Nick, target}, ErrNoSuchNick.Error())
		}
		return
	}

	ch, ok := c.channels[strings.ToLower(target)]
	if !ok {
		c.srv.log.Debugf("user %s not connected to channel %s", c.user.Nick, target)
		return
	}
	ch.Message(c, c.user.Nick, command, msg.Text)
}

// channelKicked is invoked by a Channel to tell this client it has been
// forcibly removed, so its local handle is dropped without sending a second
// PART.
func (c *Client) channelKicked(name string) {
	c.do(func() { delete(c.channels, strings.ToLower(name)) })
}

// deliverReplayed renders a persisted message missed while disconnected as
// an ordinary PRIVMSG line, prefixed with its original sender, per the
// reconnect-rejoin replay flow (spec §4.2).
func (c *Client) deliverReplayed(name string, m ReplayMessage) {
	msg := msgPool.New()
	msg.Sender = m.Sender
	msg.Command = CmdPrivMsg
	msg.Params = []string{name}
	msg.Text = m.Body
	c.send(msg)
}

// send renders and delivers msg, then recycles it.
func (c *Client) send(msg *Message) {
	buf := msg.RenderBuffer()
	c.deliver(buf.Bytes())
	bufpool.Recycle(buf)
	msgPool.Recycle(msg)
}

func (c *Client) replyNumeric(code uint16, params []string, text string) {
	msg := msgPool.New()
	msg.Code = code
	msg.Params = params
	msg.Text = text
	c.send(msg)
}

// sendWelcomeBurst writes the five registration numerics (001-005).
func (c *Client) sendWelcomeBurst(hostname, network string, user User, isupport []string) {
	c.replyNumeric(ReplyWelcome, []string{user.Nick}, "Welcome to the "+network+" Network, "+user.Prefix())
	c.replyNumeric(ReplyYourHost, []string{user.Nick}, "Your host is "+hostname+", running "+ServerVersion)
	c.replyNumeric(ReplyCreated, []string{user.Nick}, "This server was started some time ago.")
	c.replyNumeric(ReplyMyInfo, []string{user.Nick, hostname, ServerVersion}, "")

	temp := &Message{Code: ReplyISupport, Params: []string{user.Nick}}
	for _, line := range stringutils.ChunkJoinStrings(MaxMsgLength-len(temp.String()), " ", isupport...) {
		c.replyNumeric(ReplyISupport, []string{user.Nick}, line+" :are supported by this server")
	}
}

func (c *Client) sendMOTD(motd string) {
	if motd == "" {
		c.replyNumeric(ReplyNoMOTD, []string{c.user.Nick}, "MOTD File is missing")
		return
	}
	c.replyNumeric(ReplyMOTDStart, []string{c.user.Nick}, "- "+c.srv.hostname+" Message of the day -")
	for _, line := range strings.Split(motd, "\n") {
		c.replyNumeric(ReplyMOTD, []string{c.user.Nick}, "- "+line)
	}
	c.replyNumeric(ReplyEndOfMOTD, []string{c.user.Nick}, "End of MOTD command")
}

func (c *Client) sendTopic(name string, topic Topic) {
	if topic.Text == "" {
		c.replyNumeric(ReplyNoTopic, []string{c.user.Nick, name}, "No topic is set")
		return
	}
	c.replyNumeric(ReplyTopic, []string{c.user.Nick, name}, topic.Text)
	c.replyNumeric(ReplyTopicWhoTime, []string{c.user.Nick, name, topic.SetBy, strconv.FormatInt(topic.SetAt.Unix(), 10)}, "")
}

func (c *Client) sendNames(name string, nicks []string) {
	temp := &Message{Code: ReplyNames, Params: []string{c.user.Nick, "=", name}}
	for _, line := range stringutils.ChunkJoinStrings(MaxMsgLength-len(temp.String()), " ", nicks...) {
		c.replyNumeric(ReplyNames, []string{c.user.Nick, "=", name}, line)
	}
	c.replyNumeric(ReplyEndOfNames, []string{c.user.Nick, name}, "End of NAMES list")
}

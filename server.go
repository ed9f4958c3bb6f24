/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/btnmasher/titanircd/shared/concurrentmap"
	"github.com/btnmasher/titanircd/shared/logfmt"
	"github.com/btnmasher/util"
	"github.com/sirupsen/logrus"
)

// BufferPoolMax sets the bytes.Buffer pool length, carried over from dircd's
// server.go unchanged.
const BufferPoolMax = 1000

// bufpool holds the global bytes.Buffer pool shared by every Message
// renderer and connection writer in the process.
var bufpool = util.NewBufferPool(BufferPoolMax)

// Server is the top-level router actor: a singleton owning the channel
// directory, the client-by-nick index and the MOTD/ISupport configuration.
// Grounded on dircd's Server (NewServer/SetHostname/SetMOTD/ISupport)
// generalized per original_source/src/server.rs's Handler impls for
// ChannelJoin/ChannelList/PeerToPeerMessage/UserNickChange.
type Server struct {
	actor *singleActor
	log   *logrus.Entry

	hostname string
	network  string
	motd     string
	support  *util.ConcurrentMapString

	clientPool  *ActorPool
	channelPool *ActorPool

	persistence *Persistence

	clients  map[string]*Client  // lowercased nick -> Client
	channels map[string]*Channel // lowercased name -> Channel

	live concurrentmap.ConcurrentMap[string, net.Conn] // remote addr -> conn, for shutdown draining

	listener net.Listener
	shutdown chan struct{}

	listenAddr string
}

// Option configures a Server at construction time, following the
// functional-options convention carried over from the teacher's
// WithHostname/WithLogger style constructors.
type Option func(*Server)

func WithHostname(name string) Option      { return func(s *Server) { s.hostname = name } }
func WithNetwork(name string) Option       { return func(s *Server) { s.network = name } }
func WithMOTD(motd string) Option          { return func(s *Server) { s.motd = motd } }
func WithLogger(log *logrus.Entry) Option  { return func(s *Server) { s.log = log } }
func WithListenAddress(addr string) Option { return func(s *Server) { s.listenAddr = addr } }
func WithClientThreads(n int) Option       { return func(s *Server) { s.clientPool = NewActorPool(n) } }
func WithChannelThreads(n int) Option      { return func(s *Server) { s.channelPool = NewActorPool(n) } }
func WithPersistence(p *Persistence) Option {
	return func(s *Server) { s.persistence = p }
}

// WithLogLevel sets the verbosity of the server's logger.
func WithLogLevel(level logrus.Level) Option {
	return func(s *Server) { s.log.Logger.SetLevel(level) }
}

// WithDefaultLogFormatter installs the nested, color-coded TTY formatter
// from shared/logfmt, matching the teacher's own default logging texture.
func WithDefaultLogFormatter() Option {
	return func(s *Server) { s.log.Logger.SetFormatter(logfmt.New()) }
}

// WithNestedLogFormatter installs the structured nested-logrus-formatter
// output, suited to non-interactive log collection.
func WithNestedLogFormatter() Option {
	return func(s *Server) {
		s.log.Logger.SetFormatter(&nested.Formatter{
			HideKeys:    true,
			FieldsOrder: []string{"component", "remote"},
		})
	}
}

// WithGracefulShutdown ties the server's accept loop to ctx: when ctx is
// canceled, Shutdown is invoked automatically and Serve returns
// ErrServerClosed as soon as the listener is closed. Connections still
// tracked once timeout elapses are closed; Serve does not wait for them.
func WithGracefulShutdown(ctx context.Context, timeout time.Duration) Option {
	return func(s *Server) {
		go func() {
			<-ctx.Done()
			s.Shutdown()
			time.AfterFunc(timeout, func() {
				for _, addr := range s.live.Keys() {
					if conn, ok := s.live.Get(addr); ok {
						conn.Close()
					}
				}
			})
		}()
	}
}

// NewServer constructs a Server ready to accept connections once Serve or
// ListenAndServe is called.
func NewServer(opts ...Option) *Server {
	srv := &Server{
		actor:       newSingleActor(256),
		log:         logrus.NewEntry(logrus.StandardLogger()),
		hostname:    "irc.localhost.net",
		network:     "titanircd",
		support:     util.NewConcurrentMapString(),
		clientPool:  NewActorPool(1),
		channelPool: NewActorPool(1),
		clients:     make(map[string]*Client),
		channels:    make(map[string]*Channel),
		live:        concurrentmap.New[string, net.Conn](),
		shutdown:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.setISupport()
	return srv
}

func (srv *Server) do(task func()) { srv.actor.enqueue(task) }

func (srv *Server) setISupport() {
	srv.support.Add("network", srv.network)
	srv.support.Add("chanmodes", "b,,,qohv")
	srv.support.Add("prefix", "(qohv)~@%+")
	srv.support.Add("maxpara", fmt.Sprint(MaxMsgParams))
	srv.support.Add("nicklen", fmt.Sprint(MaxNickLength))
	srv.support.Add("chanlen", fmt.Sprint(MaxChanLength))
	srv.support.Add("topiclen", fmt.Sprint(MaxTopicLength))
	srv.support.Add("maxlist", fmt.Sprintf("b:%v", MaxListItems))
	srv.support.Add("casemapping", "ascii")
}

// ISupport renders the accumulated ISupport tokens for the 005 reply.
func (srv *Server) ISupport() []string {
	tokens := make([]string, 0, srv.support.Length())
	srv.support.ForEach(func(key, val string) {
		if val == "" {
			tokens = append(tokens, strings.ToUpper(key))
			return
		}
		tokens = append(tokens, strings.ToUpper(key)+"="+val)
	})
	return tokens
}

// Register performs the post-registration preamble: the five welcome
// numerics, followed by the MOTD, followed by a rejoin of any channels the
// user's account (user.ID) is still a member of and a replay of every message they
// missed in each. Grounded on original_source/src/client.rs's `started()`
// reconnect flow (spec §4.2, end-to-end scenario 1).
func (srv *Server) Register(client *Client, user User) {
	srv.do(func() {
		key := strings.ToLower(user.Nick)
		srv.clients[key] = client
		client.sendWelcomeBurst(srv.hostname, srv.network, user, srv.ISupport())
		client.sendMOTD(srv.motd)

		if srv.persistence == nil || user.ID <= 0 {
			return
		}

		names := make(chan []string, 1)
		srv.persistence.FetchUserChannels(user.ID, names)

		for _, name := range <-names {
			chReply := make(chan *Channel, 1)
			srv.joinChannelLocked(client, user, name, chReply)
			ch := <-chReply
			if ch == nil {
				continue
			}
			joined := ch
			joinedName := strings.ToLower(name)
			client.do(func() { client.channels[joinedName] = joined })

			unseen := make(chan []ReplayMessage, 1)
			srv.persistence.ReplayUnseen(name, user.ID, unseen)
			for _, m := range <-unseen {
				client.deliverReplayed(name, m)
			}
		}
	})
}

// Unregister removes client's nick from the directory. Called once per
// disconnect, from the Client's own shutdown path.
func (srv *Server) Unregister(nick string) {
	srv.do(func() {
		delete(srv.clients, strings.ToLower(nick))
	})
}

// FetchClientByNick resolves a nick to its owning Client with a single
// lookup in the nick map (O(1)); no secondary index beyond the nick map
// itself is maintained.
func (srv *Server) FetchClientByNick(nick string, reply chan<- *Client) {
	srv.do(func() {
		reply <- srv.clients[strings.ToLower(nick)]
	})
}

// UserNickChange renames user's directory entry and fans the NICK line out
// to every connected client, mirroring original_source/src/server.rs's
// Handler<UserNickChange>, which is the one place a nick change is actually
// broadcast (Channel's own NickChange handler only updates its roster).
func (srv *Server) UserNickChange(client *Client, oldNick string, user User) {
	srv.do(func() {
		delete(srv.clients, strings.ToLower(oldNick))
		srv.clients[strings.ToLower(user.Nick)] = client

		nickMsg := msgPool.New()
		nickMsg.Sender = oldNick + "!" + user.Username + "@" + user.Cloak
		nickMsg.Command = CmdNick
		nickMsg.Text = user.Nick
		buf := nickMsg.RenderBuffer()

		for _, c := range srv.clients {
			c.deliver(buf.Bytes())
		}
		bufpool.Recycle(buf)
		msgPool.Recycle(nickMsg)
	})
}

// JoinChannel finds or creates the named channel actor and forwards the
// join to it, replying with the channel handle once membership is settled.
func (srv *Server) JoinChannel(client *Client, user User, name string, reply chan<- *Channel) {
	srv.do(func() { srv.joinChannelLocked(client, user, name, reply) })
}

// joinChannelLocked is JoinChannel's body, callable inline from a task
// already running on srv's own actor (e.g. Register's reconnect-rejoin)
// without re-enqueuing onto it and deadlocking against itself.
func (srv *Server) joinChannelLocked(client *Client, user User, name string, reply chan<- *Channel) {
	key := strings.ToLower(name)
	ch, ok := srv.channels[key]
	if !ok {
		ch = NewChannel(srv, name)
		srv.channels[key] = ch
		if srv.persistence != nil {
			srv.persistence.ChannelCreated(name)
		}
	}
	if srv.persistence != nil && !ok {
		perms := make(chan []PersistedPermission, 1)
		srv.persistence.FetchAllUserChannelPermissions(name, perms)
		for _, p := range <-perms {
			ch.perms.Insert(HostMask{Nick: p.Nick, User: "*", Host: "*"}, p.Permission)
		}
	}
	ch.Join(client, user, reply)
}

type channelListing struct {
	Name    string
	Topic   string
	Members int
}

// ChannelList concurrently queries every live channel's topic and member
// count and collates the results; the order of the listings is not defined.
func (srv *Server) ChannelList(reply chan<- []channelListing) {
	srv.do(func() {
		listings := make([]channelListing, 0, len(srv.channels))
		type pending struct {
			name  string
			topic chan Topic
			names chan []string
		}
		var waits []pending
		for name, ch := range srv.channels {
			p := pending{name: name, topic: make(chan Topic, 1), names: make(chan []string, 1)}
			ch.FetchTopic(p.topic)
			ch.MemberList(p.names)
			waits = append(waits, p)
		}
		for _, p := range waits {
			topic := <-p.topic
			names := <-p.names
			listings = append(listings, channelListing{Name: p.name, Topic: topic.Text, Members: len(names)})
		}
		reply <- listings
	})
}

// PeerToPeerMessage delivers a direct PRIVMSG/NOTICE to targetNick, or
// replies with ok=false if no such nick is connected.
func (srv *Server) PeerToPeerMessage(senderUser User, targetNick, command, text string, ok chan<- bool) {
	srv.do(func() {
		target, found := srv.clients[strings.ToLower(targetNick)]
		if !found {
			ok <- false
			return
		}

		msg := msgPool.New()
		msg.Sender = senderUser.Prefix()
		msg.Command = command
		msg.Params = []string{targetNick}
		msg.Text = text
		buf := msg.RenderBuffer()
		target.deliver(buf.Bytes())
		bufpool.Recycle(buf)
		msgPool.Recycle(msg)

		ok <- true
	})
}

// trackConn registers a live connection so Shutdown and the
// WithGracefulShutdown timeout can find it.
func (srv *Server) trackConn(addr string, conn net.Conn) { srv.live.Set(addr, conn) }
func (srv *Server) untrackConn(addr string)              { srv.live.Delete(addr) }

// ListenAndServe listens on the server's configured address (see
// WithListenAddress) and serves accepted connections. Grounded on dircd's
// ListenAndServe/Serve/tcpKeepAliveListener.
func (srv *Server) ListenAndServe() error {
	addr := srv.listenAddr
	if addr == "" {
		addr = ":6667"
	}
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(tcpKeepAliveListener{listen.(*net.TCPListener)})
}

// ListenAndServeTLS is the TLS analogue of ListenAndServe.
func (srv *Server) ListenAndServeTLS(certFile, keyFile string) error {
	addr := srv.listenAddr
	if addr == "" {
		addr = ":6697"
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	config := &tls.Config{Certificates: []tls.Certificate{cert}}

	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(tls.NewListener(tcpKeepAliveListener{listen.(*net.TCPListener)}, config))
}

// Serve accepts connections from listen until it errors or Shutdown is
// called, spawning a Client actor per accepted connection.
func (srv *Server) Serve(listen net.Listener) error {
	srv.listener = listen
	defer listen.Close()

	srv.log.Infof("listening for connections on %s", listen.Addr())

	var tempDelay time.Duration

	for {
		sock, err := listen.Accept()
		if err != nil {
			select {
			case <-srv.shutdown:
				return ErrServerClosed
			default:
			}

			if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				srv.log.WithError(err).Errorf("accept error, retrying in %s", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		client := NewClient(srv, sock)
		srv.trackConn(client.remoteAddr, sock)
		go client.serve()
	}
}

// Shutdown stops accepting new connections and signals every tracked
// connection to drain.
func (srv *Server) Shutdown() {
	close(srv.shutdown)
	if srv.listener != nil {
		srv.listener.Close()
	}
	for _, addr := range srv.live.Keys() {
		if conn, ok := srv.live.Get(addr); ok {
			conn.SetReadDeadline(time.Now())
		}
	}
}

// tcpKeepAliveListener enables TCP keep-alives on every accepted
// connection, carried over unchanged from dircd's server.go.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (listen tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := listen.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(KeepAliveTimeout)
	return conn, nil
}

// KeepAliveTimeout sets the connection timeout duration on client
// connections, carried over from dircd's server.go.
const KeepAliveTimeout time.Duration = 2 * time.Minute

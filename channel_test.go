package titanircd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClient wires a Client to an in-memory net.Conn pair so its mailbox and
// write queue behave exactly as they would over a real socket, without
// touching the network.
func testClient(t *testing.T, srv *Server, nick string) (*Client, *bufio.Reader) {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { server.Close(); peer.Close() })

	c := NewClient(srv, server)
	c.user.Nick = nick
	c.user.Username = nick
	c.user.Cloak = "host"
	go c.writeLoop()

	return c, bufio.NewReader(peer)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	done := make(chan string, 1)
	go func() {
		line, _ := r.ReadString('\n')
		done <- line
	}()
	select {
	case line := <-done:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

// readJoinBurst reads everything a joiner is sent for its own join - the
// JOIN echo, the topic reply and the names list up to RPL_ENDOFNAMES (366) -
// and returns the JOIN line.
func readJoinBurst(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	join := readLine(t, r)
	for !strings.HasPrefix(readLine(t, r), "366 ") {
	}
	return join
}

func testServer() *Server {
	return NewServer(WithClientThreads(2), WithChannelThreads(2))
}

func TestChannelJoinAnnouncesToAllIncludingJoiner(t *testing.T) {
	srv := testServer()
	ch := NewChannel(srv, "#general")

	alice, aliceConn := testClient(t, srv, "alice")
	bob, bobConn := testClient(t, srv, "bob")

	joinAlice := make(chan *Channel, 1)
	ch.Join(alice, alice.user, joinAlice)
	require.NotNil(t, <-joinAlice)
	require.Contains(t, readJoinBurst(t, aliceConn), "JOIN #general")

	joinBob := make(chan *Channel, 1)
	ch.Join(bob, bob.user, joinBob)
	require.NotNil(t, <-joinBob)

	require.Contains(t, readLine(t, aliceConn), "JOIN #general")
	require.Contains(t, readLine(t, bobConn), "JOIN #general")
}

func TestChannelMessageExcludesSender(t *testing.T) {
	srv := testServer()
	ch := NewChannel(srv, "#general")

	alice, aliceConn := testClient(t, srv, "alice")
	bob, bobConn := testClient(t, srv, "bob")

	j1, j2 := make(chan *Channel, 1), make(chan *Channel, 1)
	ch.Join(alice, alice.user, j1)
	<-j1
	readJoinBurst(t, aliceConn)

	ch.Join(bob, bob.user, j2)
	<-j2
	readLine(t, aliceConn)
	readJoinBurst(t, bobConn)

	ch.Message(alice, "alice", CmdPrivMsg, "hello")

	line := readLine(t, bobConn)
	require.Contains(t, line, "PRIVMSG #general :hello")

	done := make(chan struct{})
	go func() {
		readLine(t, aliceConn)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("sender should not receive its own channel message")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannelKickNotifiesTargetDirectly(t *testing.T) {
	srv := testServer()
	ch := NewChannel(srv, "#general")
	ch.perms.Insert(HostMask{Nick: "alice", User: "*", Host: "*"}, PermOp)

	alice, aliceConn := testClient(t, srv, "alice")
	bob, bobConn := testClient(t, srv, "bob")

	j1, j2 := make(chan *Channel, 1), make(chan *Channel, 1)
	ch.Join(alice, alice.user, j1)
	<-j1
	readJoinBurst(t, aliceConn)

	ch.Join(bob, bob.user, j2)
	<-j2
	readLine(t, aliceConn)
	readJoinBurst(t, bobConn)

	ch.KickUser("alice", "bob", "rule violation")

	require.Contains(t, readLine(t, aliceConn), "KICK #general bob")
	require.Contains(t, readLine(t, bobConn), "KICK #general bob")
}

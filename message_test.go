package titanircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageRenderWithPrefixAndParams(t *testing.T) {
	msg := &Message{
		Sender:  "nick!user@host",
		Command: CmdPrivMsg,
		Params:  []string{"#general"},
		Text:    "hello there",
	}

	assert.Equal(t, ":nick!user@host PRIVMSG #general :hello there\r\n", msg.Render())
}

func TestMessageRenderNumericCode(t *testing.T) {
	msg := &Message{Code: ReplyWelcome, Params: []string{"nick"}, Text: "Welcome"}
	assert.Equal(t, "001 nick :Welcome\r\n", msg.Render())
}

func TestMessageRenderNoTextNoColon(t *testing.T) {
	msg := &Message{Command: CmdPing}
	assert.Equal(t, "PING\r\n", msg.Render())
}

func TestMessageScrubResetsAllFields(t *testing.T) {
	msg := &Message{
		Sender:  "a",
		Command: "B",
		Params:  []string{"c"},
		Text:    "d",
		Code:    42,
	}
	msg.Scrub()

	assert.Equal(t, &Message{}, msg)
}

func TestMessagePoolRecyclesScrubbedItems(t *testing.T) {
	msg := msgPool.New()
	msg.Command = CmdJoin
	msg.Text = "leftover"
	msgPool.Recycle(msg)

	recycled := msgPool.New()
	assert.Empty(t, recycled.Command)
	assert.Empty(t, recycled.Text)
}

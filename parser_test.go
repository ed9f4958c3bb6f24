package titanircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicCommand(t *testing.T) {
	msg, err := Parse("JOIN #general")
	require.NoError(t, err)
	assert.Equal(t, CmdJoin, msg.Command)
	assert.Equal(t, []string{"#general"}, msg.Params)
	assert.Empty(t, msg.Text)
}

func TestParseCommandWithTrailingText(t *testing.T) {
	msg, err := Parse("PRIVMSG #general :hello there friend")
	require.NoError(t, err)
	assert.Equal(t, CmdPrivMsg, msg.Command)
	assert.Equal(t, []string{"#general"}, msg.Params)
	assert.Equal(t, "hello there friend", msg.Text)
}

func TestParseUppercasesCommand(t *testing.T) {
	msg, err := Parse("join #general")
	require.NoError(t, err)
	assert.Equal(t, CmdJoin, msg.Command)
}

func TestParseRejectsEmptyInput(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrWhitespace)
}

func TestParseRejectsOverlongInput(t *testing.T) {
	huge := make([]byte, MaxMsgLength+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := Parse(string(huge))
	assert.ErrorIs(t, err, ErrDataTooLong)
}

func TestParseRejectsPrefixedInput(t *testing.T) {
	_, err := Parse(":nick!user@host PRIVMSG #general :hi")
	assert.ErrorIs(t, err, ErrPrefixed)
}

func TestParseRejectsMissingCommand(t *testing.T) {
	_, err := Parse(":")
	assert.Error(t, err)
}

func TestParseRejectsTooManyParams(t *testing.T) {
	cmd := "CMD"
	for i := 0; i < MaxMsgParams+2; i++ {
		cmd += " p"
	}
	_, err := Parse(cmd)
	assert.ErrorIs(t, err, ErrTooManyParams)
}

/*
   Copyright (c) 2023, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package titanircd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btnmasher/titanircd/shared/itempool"
)

// Message is an object that represents the components of an IRC message.
// See RFC1459 section 2.3.1.
//
//	<message>  = [':' <prefix> <SPACE> ] <command> <params> <crlf>
//	<prefix>   = <servername> | <nick> [ '!' <user> ] [ '@' <host> ]
//	<command>  = <letter> { <letter> } | <number> <number> <number>
//	<params>   = <SPACE> [ ':' <trailing> | <middle> <params> ]
type Message struct {
	Text    string   // the trailing parameter, the portion after the first ':'
	Sender  string   // the sender prefix of the message, if any
	Params  []string // command parameters, split on whitespace
	Command string   // the IRC string command of the message
	Code    uint16   // the IRC numeric code of the message, if a reply
}

const (
	space  = " "
	crlf   = "\r\n"
	colon  = ":"
	padnum = "%03d"
)

// String returns the IRC wire-formatted version of a message.
func (msg *Message) String() string {
	return msg.Render()
}

// RenderBuffer returns the IRC wire-formatted byte buffer version of a message.
func (msg *Message) RenderBuffer() *bytes.Buffer {
	buffer := bufpool.New()

	if msg.Sender != "" {
		buffer.WriteString(colon)
		buffer.WriteString(msg.Sender)
		buffer.WriteString(space)
	}

	if msg.Code > 0 {
		fmt.Fprintf(buffer, padnum, msg.Code)
	} else if msg.Command != "" {
		buffer.WriteString(msg.Command)
	}

	if len(msg.Params) > 0 {
		if len(msg.Params) > MaxMsgParams-1 {
			msg.Params = msg.Params[:MaxMsgParams]
		}
		buffer.WriteString(space)
		buffer.WriteString(strings.Join(msg.Params, space))
	}

	if msg.Text != "" {
		buffer.WriteString(space)
		buffer.WriteString(colon)
		buffer.WriteString(msg.Text)
	}

	buffer.WriteString(crlf)
	return buffer
}

// Render returns the IRC wire-formatted string version of a message.
func (msg *Message) Render() string {
	buf := msg.RenderBuffer()
	defer bufpool.Recycle(buf)
	return buf.String()
}

// Scrub resets a Message to its zero value so it can be recycled by msgPool.
// Satisfies itempool.ScrubbableItem.
func (msg *Message) Scrub() {
	msg.Code = 0
	msg.Command = ""
	msg.Sender = ""
	msg.Params = nil
	msg.Text = ""
}

// msgPool recycles Message objects across the read loop and reply writers,
// generalizing dircd's hand-rolled MessagePool onto the shared generic pool.
var msgPool = itempool.New[*Message](256, func() *Message { return &Message{} })

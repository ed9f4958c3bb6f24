/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

// Command string constants. See spec §6 for the full list of commands the
// Client actor consumes.
const (
	CmdNick    = "NICK"
	CmdUser    = "USER"
	CmdPass    = "PASS"
	CmdCap     = "CAP"
	CmdAuth    = "AUTHENTICATE"
	CmdJoin    = "JOIN"
	CmdPart    = "PART"
	CmdQuit    = "QUIT"
	CmdPrivMsg = "PRIVMSG"
	CmdNotice  = "NOTICE"
	CmdTopic   = "TOPIC"
	CmdNames   = "NAMES"
	CmdList    = "LIST"
	CmdKick    = "KICK"
	CmdInvite  = "INVITE"
	CmdMode    = "MODE"
	CmdMotd    = "MOTD"
	CmdVersion = "VERSION"
	CmdPing    = "PING"
	CmdPong    = "PONG"

	CapSubLS   = "LS"
	CapSubList = "LIST"
	CapSubReq  = "REQ"
	CapSubAck  = "ACK"
	CapSubEnd  = "END"

	SaslPlain = "PLAIN"
)

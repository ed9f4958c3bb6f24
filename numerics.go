/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

// RFC 2812/1459 + IRCv3 SASL numerics referenced by this server.
const (
	ReplyWelcome      uint16 = 001
	ReplyYourHost     uint16 = 002
	ReplyCreated      uint16 = 003
	ReplyMyInfo       uint16 = 004
	ReplyISupport     uint16 = 005
	ReplyAway         uint16 = 301
	ReplyListStart    uint16 = 321
	ReplyList         uint16 = 322
	ReplyEndOfList    uint16 = 323
	ReplyNoTopic      uint16 = 331
	ReplyTopic        uint16 = 332
	ReplyTopicWhoTime uint16 = 333
	ReplyNames        uint16 = 353
	ReplyEndOfNames   uint16 = 366
	ReplyMOTD         uint16 = 372
	ReplyMOTDStart    uint16 = 375
	ReplyEndOfMOTD    uint16 = 376
	ReplyNoSuchNick   uint16 = 401
	ReplyNoSuchChan   uint16 = 403
	ReplyUnknownCmd   uint16 = 421
	ReplyNoMOTD       uint16 = 422
	ReplyNicknameInUse uint16 = 433
	ReplyNotOnChannel uint16 = 442
	ReplyNotRegistered uint16 = 451
	ReplyNeedMoreParams uint16 = 461
	ReplyBannedFromChan uint16 = 474
	ReplyChanOpPrivsNeeded uint16 = 482
	ReplyLoggedIn      uint16 = 900
	ReplySASLSuccess   uint16 = 903
	ReplySASLFail      uint16 = 904
	ReplySASLAborted   uint16 = 906
	ReplySASLAlready   uint16 = 907
)

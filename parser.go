/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import "strings"

// Parse takes a single IRC wire line (without the terminating CRLF) and
// returns the parsed Message. Clients are never permitted to send a prefixed
// message, matching the original dircd parser.
func Parse(data string) (*Message, error) {
	data = strings.TrimSpace(data)

	if len(data) == 0 {
		return nil, ErrWhitespace
	}

	if len(data) > MaxMsgLength {
		return nil, ErrDataTooLong
	}

	if data[0] == ':' {
		return nil, ErrPrefixed
	}

	msg := msgPool.New()

	split := strings.SplitN(data, ":", 2)
	args := strings.Fields(split[0])

	if len(args) == 0 {
		msgPool.Recycle(msg)
		return nil, ErrNotEnoughData
	}

	msg.Command = strings.ToUpper(args[0])
	msg.Params = args[1:]

	if len(msg.Params) > MaxMsgParams {
		msgPool.Recycle(msg)
		return nil, ErrTooManyParams
	}

	if len(split) > 1 {
		msg.Text = split[1]
	}

	return msg, nil
}

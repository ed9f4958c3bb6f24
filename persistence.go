/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
)

// encodeHash/decodeHash store the Argon2id salt alongside its hash as
// "<hex salt>:<hex hash>". Argon2id's parameters are fixed server-side
// (spec carries no algorithm-agility requirement), so only the salt needs
// persisting per user.
func encodeHash(salt, hash []byte) string {
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash)
}

func decodeHash(encoded string) (salt, hash []byte, err error) {
	parts := strings.SplitN(encoded, ":", 2)
	if len(parts) != 2 {
		return nil, nil, ErrSASLMalformed
	}
	if salt, err = hex.DecodeString(parts[0]); err != nil {
		return nil, nil, err
	}
	if hash, err = hex.DecodeString(parts[1]); err != nil {
		return nil, nil, err
	}
	return salt, hash, nil
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	ip_salt BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS nicks (
	nick TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	reserved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS channel_users (
	channel TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	permissions INTEGER NOT NULL DEFAULT 0,
	in_channel INTEGER NOT NULL DEFAULT 0,
	last_seen_message_timestamp INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (channel, user_id)
);

CREATE TABLE IF NOT EXISTS channel_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	sender TEXT NOT NULL,
	body TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);
`

// ReplayMessage is a persisted channel message handed back to a rejoining
// client that missed it.
type ReplayMessage struct {
	Sender string
	Body   string
	SentAt time.Time
}

// Persistence is the sole actor with access to the database connection,
// serialized through a dedicated-goroutine singleActor, matching the
// Server's singleton lifetime. Grounded on
// original_source/src/database/mod.rs (Database, schema, Argon2 hashing,
// monotonic clock) with the wire-format details left to the implementer per
// spec §3 ("by intent, not dialect") resolved here as SQLite via
// database/sql + mattn/go-sqlite3.
type Persistence struct {
	actor *singleActor
	db    *sql.DB
	log   *logrus.Entry

	lastClockNanos int64
	replayWindow   time.Duration
}

// OpenPersistence opens (creating if necessary) the SQLite database at path
// and applies the schema.
func OpenPersistence(path string, replayWindow time.Duration, log *logrus.Entry) (*Persistence, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	p := &Persistence{
		actor:        newSingleActor(64),
		db:           db,
		log:          log,
		replayWindow: replayWindow,
	}

	go p.gcLoop()
	return p, nil
}

func (p *Persistence) do(task func()) { p.actor.enqueue(task) }

// nextClock returns a monotonically increasing nanosecond clock, advancing
// past wall-clock time if a prior call already claimed a later tick -
// guards against clock skew/rewind producing duplicate or decreasing
// timestamps across rapid inserts. Grounded on
// original_source/src/database/mod.rs's `last_seen_clock`.
func (p *Persistence) nextClock() int64 {
	now := time.Now().UnixNano()
	if now <= p.lastClockNanos {
		now = p.lastClockNanos + 1
	}
	p.lastClockNanos = now
	return now
}

// createUserLocked hashes password with Argon2id and inserts a new user
// row. Runs only from inside the actor (either via CreateUser's own
// enqueue or inline from VerifyOrCreateUser, which is already running on
// the actor's goroutine).
func (p *Persistence) createUserLocked(username, password string) bool {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return false
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	ipSalt := make([]byte, 16)
	if _, err := rand.Read(ipSalt); err != nil {
		return false
	}

	_, err := p.db.Exec(
		`INSERT INTO users (username, password_hash, ip_salt) VALUES (?, ?, ?)`,
		username, encodeHash(salt, hash), ipSalt,
	)
	return err == nil
}

// verifyPasswordLocked reports whether password matches the stored hash
// for username. Runs only from inside the actor.
func (p *Persistence) verifyPasswordLocked(username, password string) bool {
	var encoded string
	err := p.db.QueryRow(`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&encoded)
	if err != nil {
		return false
	}

	salt, hash, err := decodeHash(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return constantTimeEqual(candidate, hash)
}

// CreateUser hashes password with Argon2id and inserts a new user row.
func (p *Persistence) CreateUser(username, password string, reply chan<- bool) {
	p.do(func() { reply <- p.createUserLocked(username, password) })
}

// VerifyPassword reports whether password matches the stored hash for
// username.
func (p *Persistence) VerifyPassword(username, password string, reply chan<- bool) {
	p.do(func() { reply <- p.verifyPasswordLocked(username, password) })
}

// VerifyOrCreateUser implements SASL PLAIN's user resolution (spec §4.1):
// if username has no account yet, create one from this attempt's password
// and succeed; otherwise verify password against the stored hash. The
// existence check and the create/verify that follows run as one actor
// task, so two connections racing to register the same new username can
// never both observe "no such user".
func (p *Persistence) VerifyOrCreateUser(username, password string, reply chan<- bool) {
	p.do(func() {
		var exists int
		err := p.db.QueryRow(`SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			reply <- p.createUserLocked(username, password)
		case err != nil:
			reply <- false
		default:
			reply <- p.verifyPasswordLocked(username, password)
		}
	})
}

// LookupUserID resolves a successfully-authenticated username to its
// persisted UserID, used after SASL completes so the session's subsequent
// nick reservations are tied to its real account rather than its
// connection-scoped placeholder ID.
func (p *Persistence) LookupUserID(username string, reply chan<- UserID) {
	p.do(func() {
		var id int64
		if err := p.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id); err != nil {
			reply <- 0
			return
		}
		reply <- UserID(id)
	})
}

// ReserveNick atomically claims nick for userID, returning true if granted
// (either freshly claimed or already owned by userID) and false if another
// user holds it. Grounded on the "INSERT ... ON CONFLICT DO UPDATE"
// upsert-if-owner idiom.
func (p *Persistence) ReserveNick(nick string, userID UserID, reply chan<- bool) {
	p.do(func() {
		var owner int64
		err := p.db.QueryRow(`SELECT user_id FROM nicks WHERE nick = ?`, nick).Scan(&owner)
		switch {
		case err == sql.ErrNoRows:
			_, err := p.db.Exec(
				`INSERT INTO nicks (nick, user_id, reserved_at) VALUES (?, ?, ?)`,
				nick, int64(userID), p.nextClock(),
			)
			reply <- err == nil
		case err != nil:
			reply <- false
		case owner == int64(userID):
			reply <- true
		default:
			reply <- false
		}
	})
}

// ChannelCreated registers channel's existence in the durable channel
// directory. Idempotent: creating an already-known channel is a no-op.
func (p *Persistence) ChannelCreated(channel string) {
	p.do(func() {
		if _, err := p.db.Exec(`INSERT OR IGNORE INTO channels (name) VALUES (?)`, channel); err != nil {
			p.log.WithError(err).Error("failed to record channel creation")
		}
	})
}

// channelUserUpsert ensures a (channel, user) row exists before a partial
// UPDATE of one of its columns, since SQLite's UPDATE is a no-op against a
// missing row rather than an error.
func (p *Persistence) channelUserUpsert(channel string, userID UserID) error {
	_, err := p.db.Exec(
		`INSERT OR IGNORE INTO channel_users (channel, user_id, permissions, in_channel, last_seen_message_timestamp)
		 VALUES (?, ?, 0, 0, 0)`,
		channel, int64(userID),
	)
	return err
}

// ChannelJoined marks userID as a current member of channel, so membership
// survives a disconnect and drives the reconnect-rejoin flow (spec §4.2).
// Idempotent: re-joining an already-joined channel updates the same row
// rather than producing a duplicate.
func (p *Persistence) ChannelJoined(channel string, userID UserID) {
	p.do(func() {
		if err := p.channelUserUpsert(channel, userID); err != nil {
			p.log.WithError(err).Error("failed to record channel join")
			return
		}
		if _, err := p.db.Exec(
			`UPDATE channel_users SET in_channel = 1 WHERE channel = ? AND user_id = ?`,
			channel, int64(userID),
		); err != nil {
			p.log.WithError(err).Error("failed to record channel join")
		}
	})
}

// ChannelParted marks userID as no longer a member of channel. Only an
// explicit PART or KICK calls this - an ungraceful disconnect leaves
// in_channel set so the user auto-rejoins on reconnect.
func (p *Persistence) ChannelParted(channel string, userID UserID) {
	p.do(func() {
		if _, err := p.db.Exec(
			`UPDATE channel_users SET in_channel = 0 WHERE channel = ? AND user_id = ?`,
			channel, int64(userID),
		); err != nil {
			p.log.WithError(err).Error("failed to record channel part")
		}
	})
}

// FetchUserChannels returns the names of every channel where userID is
// currently a member, used to drive the reconnect-rejoin flow.
func (p *Persistence) FetchUserChannels(userID UserID, reply chan<- []string) {
	p.do(func() {
		rows, err := p.db.Query(
			`SELECT channel FROM channel_users WHERE user_id = ? AND in_channel = 1`,
			int64(userID),
		)
		if err != nil {
			reply <- nil
			return
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if rows.Scan(&name) == nil {
				names = append(names, name)
			}
		}
		reply <- names
	})
}

// advanceLastSeenLocked records that userID has now seen channel up to ts.
// Runs only from inside the actor.
func (p *Persistence) advanceLastSeenLocked(channel string, userID UserID, ts int64) {
	if err := p.channelUserUpsert(channel, userID); err != nil {
		p.log.WithError(err).Error("failed to advance last-seen marker")
		return
	}
	if _, err := p.db.Exec(
		`UPDATE channel_users SET last_seen_message_timestamp = ? WHERE channel = ? AND user_id = ?`,
		ts, channel, int64(userID),
	); err != nil {
		p.log.WithError(err).Error("failed to advance last-seen marker")
	}
}

// AdvanceLastSeen records that userID has now seen channel up to seenAt.
func (p *Persistence) AdvanceLastSeen(channel string, userID UserID, seenAt time.Time) {
	p.do(func() { p.advanceLastSeenLocked(channel, userID, seenAt.UnixNano()) })
}

// RecordChannelMessage persists a channel message and advances the
// last-seen marker for every connected receiver, so a message a user
// witnessed live is never replayed back to them on reconnect (spec §4.5
// "message insert").
func (p *Persistence) RecordChannelMessage(channel, sender, body string, receivers []UserID, reply chan<- time.Time) {
	p.do(func() {
		ts := p.nextClock()
		_, err := p.db.Exec(
			`INSERT INTO channel_messages (channel, sender, body, sent_at) VALUES (?, ?, ?, ?)`,
			channel, sender, body, ts,
		)
		if err != nil {
			p.log.WithError(err).Error("failed to persist channel message")
		}
		for _, uid := range receivers {
			p.advanceLastSeenLocked(channel, uid, ts)
		}
		reply <- time.Unix(0, ts)
	})
}

// ReplayUnseen returns every message in channel newer than userID's
// last-seen marker, bounded below by the retention floor so replay never
// reaches further back than the configured window.
func (p *Persistence) ReplayUnseen(channel string, userID UserID, reply chan<- []ReplayMessage) {
	p.do(func() {
		var lastSeen int64
		err := p.db.QueryRow(
			`SELECT last_seen_message_timestamp FROM channel_users WHERE channel = ? AND user_id = ?`,
			channel, int64(userID),
		).Scan(&lastSeen)
		if err != nil {
			lastSeen = 0
		}

		floor := time.Now().Add(-p.replayWindow).UnixNano()
		if lastSeen < floor {
			lastSeen = floor
		}

		rows, err := p.db.Query(
			`SELECT sender, body, sent_at FROM channel_messages WHERE channel = ? AND sent_at > ? ORDER BY sent_at ASC`,
			channel, lastSeen,
		)
		if err != nil {
			reply <- nil
			return
		}
		defer rows.Close()

		var out []ReplayMessage
		for rows.Next() {
			var m ReplayMessage
			var sentAt int64
			if err := rows.Scan(&m.Sender, &m.Body, &sentAt); err != nil {
				continue
			}
			m.SentAt = time.Unix(0, sentAt)
			out = append(out, m)
		}
		reply <- out
	})
}

// PersistedPermission is one rehydrated (nick, permission) pair handed back
// by FetchAllUserChannelPermissions when a channel actor is (re)created, so
// operator/voice grants survive a server restart and not just a reconnect.
type PersistedPermission struct {
	Nick       string
	Permission Permission
}

// FetchAllUserChannelPermissions returns every non-default permission grant
// recorded for channel, once for each nick the grantee has reserved
// (permissions are keyed by account, the in-memory index by hostmask).
func (p *Persistence) FetchAllUserChannelPermissions(channel string, reply chan<- []PersistedPermission) {
	p.do(func() {
		rows, err := p.db.Query(
			`SELECT n.nick, cu.permissions FROM channel_users cu
			 JOIN nicks n ON n.user_id = cu.user_id
			 WHERE cu.channel = ? AND cu.permissions != 0`,
			channel,
		)
		if err != nil {
			reply <- nil
			return
		}
		defer rows.Close()

		var out []PersistedPermission
		for rows.Next() {
			var nick string
			var perm int64
			if rows.Scan(&nick, &perm) == nil {
				out = append(out, PersistedPermission{Nick: nick, Permission: Permission(perm)})
			}
		}
		reply <- out
	})
}

// SetUserChannelPermissions persists a permission grant for userID in
// channel, so a MODE change (+o/+h/+v and their removals) survives a
// reconnect.
func (p *Persistence) SetUserChannelPermissions(channel string, userID UserID, perm Permission) {
	p.do(func() {
		if err := p.channelUserUpsert(channel, userID); err != nil {
			p.log.WithError(err).Error("failed to persist channel permission")
			return
		}
		if _, err := p.db.Exec(
			`UPDATE channel_users SET permissions = ? WHERE channel = ? AND user_id = ?`,
			int64(perm), channel, int64(userID),
		); err != nil {
			p.log.WithError(err).Error("failed to persist channel permission")
		}
	})
}

// gcLoop periodically deletes messages older than every channel's minimum
// last-seen marker (or the retention floor, whichever is newer), so no
// channel's history grows unbounded once every member has caught up.
func (p *Persistence) gcLoop() {
	ticker := time.NewTicker(PersistenceGCInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.do(func() {
			floor := time.Now().Add(-p.replayWindow).UnixNano()

			rows, err := p.db.Query(`SELECT DISTINCT channel FROM channel_messages`)
			if err != nil {
				return
			}
			var channels []string
			for rows.Next() {
				var ch string
				if rows.Scan(&ch) == nil {
					channels = append(channels, ch)
				}
			}
			rows.Close()

			for _, ch := range channels {
				var minSeen sql.NullInt64
				p.db.QueryRow(`SELECT MIN(last_seen_message_timestamp) FROM channel_users WHERE channel = ?`, ch).Scan(&minSeen)

				bound := floor
				if minSeen.Valid && minSeen.Int64 > bound {
					bound = minSeen.Int64
				}

				if _, err := p.db.Exec(`DELETE FROM channel_messages WHERE channel = ? AND sent_at <= ?`, ch, bound); err != nil {
					p.log.WithError(err).Error("message GC failed")
				}
			}
		})
	}
}

// Close releases the underlying database handle.
func (p *Persistence) Close() error {
	return p.db.Close()
}

// Package callback packs and verifies the callback-query tokens carried
// on inline-keyboard buttons (§6, SPEC_FULL "Callback token packing").
// Every token this service issues is suffixed with a keyed BLAKE2b MAC
// so the router can reject a replayed or hand-edited token before it
// ever reaches the database.
package callback

import (
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Kind discriminates the four callback families recognized by the
// transport (§6).
type Kind string

const (
	KindMatchAccept        Kind = "match:accept"
	KindMatchReject        Kind = "match:reject"
	KindResetConfirm       Kind = "reset:confirm"
	KindResetCancel        Kind = "reset:cancel"
	KindActivate           Kind = "activate"
	KindAnnouncementAction Kind = "announcement"
)

// ErrInvalidToken is returned when a callback token fails MAC
// verification or does not parse into a known family (§8: "callback
// tokens with an invalid MAC are rejected before any store call").
var ErrInvalidToken = errors.New("invalid callback token")

const macHexLength = 16 // truncated BLAKE2b-256 MAC, 8 bytes hex-encoded

// Packer signs and verifies callback tokens with a server-side secret.
type Packer struct {
	secret []byte
}

func New(secret string) *Packer {
	return &Packer{secret: []byte(secret)}
}

// PackMatch builds `match:<action>:<shortid>:<mac>` where the match id
// (a uuid.UUID) is carried in its shortuuid form to stay well under
// Telegram's 64-byte callback_data limit.
func (p *Packer) PackMatch(action string, matchID uuid.UUID) string {
	body := "match:" + action + ":" + shortuuid.DefaultEncoder.Encode(matchID)
	return p.sign(body)
}

// PackReset builds `reset:<action>:<telegram_id>:<mac>`.
func (p *Packer) PackReset(action string, telegramID int64) string {
	body := "reset:" + action + ":" + strconv.FormatInt(telegramID, 10)
	return p.sign(body)
}

// PackActivate builds `activate:<telegram_id>:<mac>`.
func (p *Packer) PackActivate(telegramID int64) string {
	body := "activate:" + strconv.FormatInt(telegramID, 10)
	return p.sign(body)
}

// PackAnnouncement builds `announcement:<action>:<source_message_id>:<mac>`.
func (p *Packer) PackAnnouncement(action string, sourceMessageID int64) string {
	body := "announcement:" + action + ":" + strconv.FormatInt(sourceMessageID, 10)
	return p.sign(body)
}

func (p *Packer) sign(body string) string {
	mac := p.mac(body)
	return body + ":" + mac
}

func (p *Packer) mac(body string) string {
	h, err := blake2b.New256(p.secret)
	if err != nil {
		// Only returns an error for an over-length key, which never
		// happens for a fixed application secret.
		panic(err)
	}
	h.Write([]byte(body))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:macHexLength/2])
}

// Match is a decoded match-family callback.
type Match struct {
	Action  string
	MatchID uuid.UUID
}

// Reset is a decoded reset-family callback.
type Reset struct {
	Action     string
	TelegramID int64
}

// Announcement is a decoded announcement-family callback.
type Announcement struct {
	Action          string
	SourceMessageID int64
}

// Decoded is the typed result of Unpack, discriminated by Kind.
type Decoded struct {
	Kind         Kind
	Match        *Match
	Reset        *Reset
	Activate     *int64
	Announcement *Announcement
}

// Unpack verifies the trailing MAC and parses the token into its typed
// family. Returns ErrInvalidToken for a bad MAC or unrecognized shape.
func (p *Packer) Unpack(token string) (*Decoded, error) {
	idx := strings.LastIndex(token, ":")
	if idx < 0 {
		return nil, errors.Wrap(ErrInvalidToken, "missing mac segment")
	}
	body, mac := token[:idx], token[idx+1:]

	expected := p.mac(body)
	if subtle.ConstantTimeCompare([]byte(mac), []byte(expected)) != 1 {
		return nil, errors.Wrap(ErrInvalidToken, "mac mismatch")
	}

	parts := strings.Split(body, ":")
	switch parts[0] {
	case "match":
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrInvalidToken, "malformed match callback")
		}
		id, err := shortuuid.DefaultEncoder.Decode(parts[2])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "malformed match id")
		}
		return &Decoded{Kind: Kind("match:" + parts[1]), Match: &Match{Action: parts[1], MatchID: id}}, nil

	case "reset":
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrInvalidToken, "malformed reset callback")
		}
		telegramID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "malformed telegram id")
		}
		return &Decoded{Kind: Kind("reset:" + parts[1]), Reset: &Reset{Action: parts[1], TelegramID: telegramID}}, nil

	case "activate":
		if len(parts) != 2 {
			return nil, errors.Wrap(ErrInvalidToken, "malformed activate callback")
		}
		telegramID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "malformed telegram id")
		}
		return &Decoded{Kind: KindActivate, Activate: &telegramID}, nil

	case "announcement":
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrInvalidToken, "malformed announcement callback")
		}
		sourceMessageID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "malformed source message id")
		}
		return &Decoded{Kind: KindAnnouncementAction, Announcement: &Announcement{Action: parts[1], SourceMessageID: sourceMessageID}}, nil

	default:
		return nil, errors.Wrap(ErrInvalidToken, "unrecognized callback family")
	}
}

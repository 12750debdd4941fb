package event

import (
	"time"
)

type Kind string

const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindLiveStart    Kind = "live_start"
	KindLiveEnd      Kind = "live_end"
	KindEnterRoom    Kind = "enter_room"
	KindFollow       Kind = "follow"
	KindShare        Kind = "share"
	KindChat         Kind = "chat"
	KindEmote        Kind = "emote"
	KindFreeGift     Kind = "free_gift"
	KindPaidGift     Kind = "paid_gift"
	KindBlindBoxGift Kind = "blind_box_gift"
	KindMembership   Kind = "membership"
	KindSuperChat    Kind = "super_chat"
	KindLike         Kind = "like"
	KindLikeCount    Kind = "like_count"
)

// Event is the closed set of things a live room can report. Only types in
// this package implement it.
type Event interface {
	Kind() Kind
	Room() Room
	Time() time.Time
	sealed()
}

// Header is embedded by every event.
type Header struct {
	Source    Room      `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

func (h Header) Room() Room      { return h.Source }
func (h Header) Time() time.Time { return h.Timestamp }
func (Header) sealed()           {}

type Connected struct {
	Header
}

type Disconnected struct {
	Header
}

type LiveStart struct {
	Header
}

type LiveEnd struct {
	Header
}

type EnterRoom struct {
	Header
	Sender          User   `json:"sender"`
	Promoted        bool   `json:"promoted"`
	PromotionSource string `json:"promotion_source,omitempty"`
}

type Follow struct {
	Header
	Sender User `json:"sender"`
}

type Share struct {
	Header
	Sender User `json:"sender"`
}

// Chat is a plain danmaku message. Text is kept verbatim; inline emoticon
// labels stay in it and are listed in Emoticons.
type Chat struct {
	Header
	Sender    User       `json:"sender"`
	Reply     *User      `json:"reply,omitempty"`
	Text      string     `json:"text"`
	Emoticons []Emoticon `json:"emoticons,omitempty"`
}

// Emote is a message made of a single image sticker.
type Emote struct {
	Header
	Sender   User     `json:"sender"`
	Emoticon Emoticon `json:"emoticon"`
}

type FreeGift struct {
	Header
	Sender User `json:"sender"`
	Gift   Gift `json:"gift"`
}

type PaidGift struct {
	Header
	Sender User `json:"sender"`
	Gift   Gift `json:"gift"`
}

// BlindBoxGift carries the gift that came out of the box and the box itself.
type BlindBoxGift struct {
	Header
	Sender   User `json:"sender"`
	Gift     Gift `json:"gift"`
	Original Gift `json:"original"`
}

type Membership struct {
	Header
	Sender User         `json:"sender"`
	Tier   GuardLevel   `json:"tier"`
	Op     MembershipOp `json:"op"`
	Price  float64      `json:"price"`
	Count  int          `json:"count"`
	Unit   string       `json:"unit"`
}

type SuperChat struct {
	Header
	Sender User    `json:"sender"`
	Text   string  `json:"text"`
	Value  float64 `json:"value"`
}

type Like struct {
	Header
	Sender User `json:"sender"`
}

type LikeCount struct {
	Header
	Count int `json:"count"`
}

func (Connected) Kind() Kind    { return KindConnected }
func (Disconnected) Kind() Kind { return KindDisconnected }
func (LiveStart) Kind() Kind    { return KindLiveStart }
func (LiveEnd) Kind() Kind      { return KindLiveEnd }
func (EnterRoom) Kind() Kind    { return KindEnterRoom }
func (Follow) Kind() Kind       { return KindFollow }
func (Share) Kind() Kind        { return KindShare }
func (Chat) Kind() Kind         { return KindChat }
func (Emote) Kind() Kind        { return KindEmote }
func (FreeGift) Kind() Kind     { return KindFreeGift }
func (PaidGift) Kind() Kind     { return KindPaidGift }
func (BlindBoxGift) Kind() Kind { return KindBlindBoxGift }
func (Membership) Kind() Kind   { return KindMembership }
func (SuperChat) Kind() Kind    { return KindSuperChat }
func (Like) Kind() Kind         { return KindLike }
func (LikeCount) Kind() Kind    { return KindLikeCount }

func NewConnected(room Room, at time.Time) Connected {
	return Connected{Header{Source: room, Timestamp: at}}
}

func NewDisconnected(room Room, at time.Time) Disconnected {
	return Disconnected{Header{Source: room, Timestamp: at}}
}

// SenderOf returns the sending user for events that have one.
func SenderOf(e Event) (User, bool) {
	switch v := e.(type) {
	case EnterRoom:
		return v.Sender, true
	case Follow:
		return v.Sender, true
	case Share:
		return v.Sender, true
	case Chat:
		return v.Sender, true
	case Emote:
		return v.Sender, true
	case FreeGift:
		return v.Sender, true
	case PaidGift:
		return v.Sender, true
	case BlindBoxGift:
		return v.Sender, true
	case Membership:
		return v.Sender, true
	case SuperChat:
		return v.Sender, true
	case Like:
		return v.Sender, true
	default:
		return User{}, false
	}
}

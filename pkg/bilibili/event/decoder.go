package event

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
)

type Command string

const (
	CmdLive       Command = "LIVE"
	CmdPreparing  Command = "PREPARING"
	CmdInteract   Command = "INTERACT_WORD"
	CmdDanmu      Command = "DANMU_MSG"
	CmdSendGift   Command = "SEND_GIFT"
	CmdSuperChat  Command = "SUPER_CHAT_MESSAGE"
	CmdUserToast  Command = "USER_TOAST_MSG"
	CmdLikeClick  Command = "LIKE_INFO_V3_CLICK"
	CmdLikeUpdate Command = "LIKE_INFO_V3_UPDATE"
)

// ParseCommand strips the protocol suffix some commands carry, so
// "DANMU_MSG:4:0:2:2:2:0" becomes DANMU_MSG.
func ParseCommand(s string) Command {
	name, _, _ := strings.Cut(s, ":")
	return Command(name)
}

// Identity is what an enrichment lookup knows about a user.
type Identity struct {
	Name       string
	Avatar     string
	RoomNumber uint64
}

type GiftEntry struct {
	ID    uint64
	Name  string
	Price float64
	Image string
}

// Enricher fills identity and catalog fields the push channel left out.
// Calls are synchronous and hit the network.
type Enricher interface {
	LookupIdentity(ctx context.Context, uid uint64) (Identity, error)
	LookupGift(ctx context.Context, giftID uint64) (GiftEntry, error)
	LookupGuardIcon(ctx context.Context, roleName string) (string, error)
}

type Decoder struct {
	enricher  Enricher
	logger    zerolog.Logger
	now       func() time.Time
	rawLog    bool
	onFailure func(Command)
}

type Option func(*Decoder)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// WithRawLog logs every notice body at debug level before decoding.
func WithRawLog(enabled bool) Option {
	return func(d *Decoder) { d.rawLog = enabled }
}

func WithFailureHook(fn func(Command)) Option {
	return func(d *Decoder) { d.onFailure = fn }
}

func NewDecoder(enricher Enricher, opts ...Option) *Decoder {
	d := &Decoder{
		enricher: enricher,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeNotice reads the cmd field of a notice body and decodes it.
func (d *Decoder) DecodeNotice(ctx context.Context, body []byte, room Room, complete bool) (Event, bool) {
	var head struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		d.fail(room, "", body, fmt.Errorf("read cmd: %w", err))
		return nil, false
	}
	return d.Decode(ctx, ParseCommand(head.Cmd), body, room, complete)
}

// Decode turns one notice into an event. It never fails: malformed payloads
// and panics are logged with the room and raw body and reported as no event.
func (d *Decoder) Decode(ctx context.Context, cmd Command, payload []byte, room Room, complete bool) (ev Event, ok bool) {
	if d.rawLog {
		d.logger.Debug().
			Uint64(logger.FieldUID, room.UID).
			Str(logger.FieldCmd, string(cmd)).
			Bytes("payload", payload).
			Msg("raw notice")
	}

	defer func() {
		if r := recover(); r != nil {
			d.fail(room, cmd, payload, fmt.Errorf("panic: %v", r))
			ev, ok = nil, false
		}
	}()

	var n notice
	if err := json.Unmarshal(payload, &n); err != nil {
		d.fail(room, cmd, payload, err)
		return nil, false
	}

	s := &scope{
		d:        d,
		ctx:      ctx,
		room:     room,
		complete: complete && d.enricher != nil,
		received: d.now(),
		n:        n,
	}

	var err error
	switch cmd {
	case CmdLive:
		ev, err = s.live()
	case CmdPreparing:
		ev, err = s.preparing()
	case CmdInteract:
		ev, err = s.interact()
	case CmdDanmu:
		ev, err = s.danmu()
	case CmdSendGift:
		ev, err = s.gift()
	case CmdSuperChat:
		ev, err = s.superChat()
	case CmdUserToast:
		ev, err = s.toast()
	case CmdLikeClick:
		ev, err = s.likeClick()
	case CmdLikeUpdate:
		ev, err = s.likeUpdate()
	default:
		d.logger.Debug().Uint64(logger.FieldUID, room.UID).Str(logger.FieldCmd, string(cmd)).Msg("unhandled command")
		return nil, false
	}

	if err != nil {
		d.fail(room, cmd, payload, err)
		return nil, false
	}
	return ev, ev != nil
}

func (d *Decoder) fail(room Room, cmd Command, payload []byte, err error) {
	d.logger.Error().
		Err(err).
		Uint64(logger.FieldUID, room.UID).
		Uint64(logger.FieldRoomNumber, room.RoomNumber).
		Str(logger.FieldCmd, string(cmd)).
		Bytes("payload", payload).
		Msg("decode notice")
	if d.onFailure != nil {
		d.onFailure(cmd)
	}
}

var errNoData = errors.New("notice has no data object")

// scope carries one decode call.
type scope struct {
	d        *Decoder
	ctx      context.Context
	room     Room
	complete bool
	received time.Time
	n        notice
}

func (s *scope) header(at time.Time) Header {
	if at.IsZero() {
		at = s.received
	}
	return Header{Source: s.room, Timestamp: at}
}

func (s *scope) data(v any) error {
	if len(s.n.Data) == 0 || string(s.n.Data) == "null" {
		return errNoData
	}
	return json.Unmarshal(s.n.Data, v)
}

func (s *scope) warn() *zerolog.Event {
	return s.d.logger.Warn().Uint64(logger.FieldUID, s.room.UID).Str(logger.FieldCmd, s.n.Cmd)
}

// fill completes the empty targets for uid. The room owner is answered from
// the room itself, everyone else goes through the enricher.
func (s *scope) fill(uid uint64, name, avatar *string, roomNumber *uint64) {
	if !s.complete || uid == 0 {
		return
	}
	missing := (name != nil && *name == "") ||
		(avatar != nil && *avatar == "") ||
		(roomNumber != nil && *roomNumber == 0)
	if !missing {
		return
	}

	var id Identity
	if uid == s.room.UID {
		id = Identity{Name: s.room.Name, Avatar: s.room.Avatar, RoomNumber: s.room.RoomNumber}
	} else {
		got, err := s.d.enricher.LookupIdentity(s.ctx, uid)
		if err != nil {
			s.warn().Err(err).Uint64("sender_uid", uid).Msg("identity lookup failed")
			return
		}
		id = got
	}

	if name != nil && *name == "" {
		*name = id.Name
	}
	if avatar != nil && *avatar == "" {
		*avatar = id.Avatar
	}
	if roomNumber != nil && *roomNumber == 0 {
		*roomNumber = id.RoomNumber
	}
}

func (s *scope) medal(m *wireMedal) *Medal {
	if m == nil || (m.RUID == 0 && m.Name == "") {
		return nil
	}
	out := &Medal{
		OwnerUID: m.RUID,
		Name:     m.Name,
		Level:    m.Level,
		Lighted:  m.IsLight == 1,
	}
	s.fill(out.OwnerUID, &out.OwnerName, &out.OwnerAvatar, &out.OwnerRoomNumber)
	return out
}

func guard(m *wireMedal) *Guard {
	if m == nil || m.GuardLevel == 0 {
		return nil
	}
	return &Guard{Level: GuardLevel(m.GuardLevel), Icon: m.GuardIcon}
}

// sender builds a user from the uinfo block most newer commands carry.
func (s *scope) sender(uid uint64, name string, u *wireUinfo) User {
	user := User{UID: uid, Name: name}
	if u != nil {
		if user.UID == 0 {
			user.UID = u.UID
		}
		if u.Base != nil {
			if user.Name == "" {
				user.Name = u.Base.Name
			}
			user.Avatar = u.Base.Face
		}
		user.Medal = s.medal(u.Medal)
		user.Guard = guard(u.Medal)
		if u.Wealth != nil {
			user.HonorLevel = u.Wealth.Level
		}
	}
	s.fill(user.UID, &user.Name, &user.Avatar, nil)
	return user
}

func seconds(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func millis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func (s *scope) sendTime() time.Time {
	if s.n.SendTime == nil {
		return time.Time{}
	}
	return millis(*s.n.SendTime)
}

func (s *scope) live() (Event, error) {
	if s.n.LiveTime == nil {
		s.d.logger.Debug().Uint64(logger.FieldUID, s.room.UID).Msg("LIVE without live_time ignored")
		return nil, nil
	}
	return LiveStart{s.header(seconds(*s.n.LiveTime))}, nil
}

func (s *scope) preparing() (Event, error) {
	return LiveEnd{s.header(s.sendTime())}, nil
}

func (s *scope) interact() (Event, error) {
	var data interactData
	if err := s.data(&data); err != nil {
		return nil, err
	}

	user := User{UID: data.UID, Name: data.Uname}
	if u := data.Uinfo; u != nil {
		if user.UID == 0 {
			user.UID = u.UID
		}
		if u.Base != nil {
			if user.Name == "" {
				user.Name = u.Base.Name
			}
			user.Avatar = u.Base.Face
		}
		user.Guard = guard(u.Medal)
		if u.Wealth != nil {
			user.HonorLevel = u.Wealth.Level
		}
	}
	if fm := data.FansMedal; fm != nil && fm.TargetID != 0 {
		m := &Medal{
			OwnerUID:        fm.TargetID,
			OwnerRoomNumber: fm.AnchorRoomID,
			Name:            fm.MedalName,
			Level:           fm.MedalLevel,
			Lighted:         fm.IsLighted == 1,
		}
		s.fill(m.OwnerUID, &m.OwnerName, &m.OwnerAvatar, nil)
		user.Medal = m
	}
	s.fill(user.UID, &user.Name, &user.Avatar, nil)

	h := s.header(seconds(data.Timestamp))
	switch data.MsgType {
	case 1:
		return EnterRoom{
			Header:          h,
			Sender:          user,
			Promoted:        data.IsSpread == 1,
			PromotionSource: strings.TrimSpace(data.SpreadDesc),
		}, nil
	case 2:
		return Follow{Header: h, Sender: user}, nil
	case 3:
		return Share{Header: h, Sender: user}, nil
	default:
		s.warn().Int("msg_type", data.MsgType).Msg("unhandled interaction type")
		return nil, nil
	}
}

func (s *scope) danmu() (Event, error) {
	var info []json.RawMessage
	if err := json.Unmarshal(s.n.Info, &info); err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	var primary []json.RawMessage
	if !element(info, 0, &primary) {
		return nil, errors.New("info[0] is missing")
	}

	var meta danmuMeta
	element(primary, 15, &meta)

	var user User
	if u := meta.User; u != nil {
		user.UID = u.UID
		if u.Base != nil {
			user.Name = u.Base.Name
			user.Avatar = u.Base.Face
		}
		user.Guard = guard(u.Medal)
	} else {
		var legacy []json.RawMessage
		if element(info, 2, &legacy) {
			element(legacy, 0, &user.UID)
			element(legacy, 1, &user.Name)
		}
	}
	s.fill(user.UID, &user.Name, &user.Avatar, nil)

	var badge []json.RawMessage
	if element(info, 3, &badge) && len(badge) > 0 {
		m := &Medal{}
		element(badge, 0, &m.Level)
		element(badge, 1, &m.Name)
		element(badge, 2, &m.OwnerName)
		element(badge, 3, &m.OwnerRoomNumber)
		var lighted int
		element(badge, 11, &lighted)
		m.Lighted = lighted == 1
		element(badge, 12, &m.OwnerUID)
		s.fill(m.OwnerUID, nil, &m.OwnerAvatar, nil)
		user.Medal = m
	}

	var honor []json.RawMessage
	if element(info, 16, &honor) {
		element(honor, 0, &user.HonorLevel)
	}

	var ms int64
	element(primary, 4, &ms)
	h := s.header(millis(ms))

	var extra danmuExtra
	if meta.Extra != "" {
		if err := json.Unmarshal([]byte(meta.Extra), &extra); err != nil {
			s.warn().Err(err).Msg("unreadable danmaku extra")
		}
	}
	text := extra.Content
	if text == "" {
		element(info, 1, &text)
	}

	if isObject(primary, 13) {
		var st wireSticker
		element(primary, 13, &st)
		return Emote{
			Header: h,
			Sender: user,
			Emoticon: Emoticon{
				ID:     st.EmoticonUnique,
				Label:  text,
				URL:    st.URL,
				Width:  st.Width,
				Height: st.Height,
			},
		}, nil
	}

	chat := Chat{Header: h, Sender: user, Text: text}
	if extra.ReplyMid != 0 {
		reply := &User{UID: extra.ReplyMid, Name: extra.ReplyUname}
		s.fill(reply.UID, &reply.Name, &reply.Avatar, nil)
		chat.Reply = reply
	}
	if len(extra.Emots) > 0 {
		labels := make([]string, 0, len(extra.Emots))
		for label := range extra.Emots {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			e := extra.Emots[label]
			chat.Emoticons = append(chat.Emoticons, Emoticon{
				ID:     e.EmoticonUnique,
				Label:  label,
				URL:    e.URL,
				Width:  e.Width,
				Height: e.Height,
				Count:  e.Count,
			})
		}
	}
	return chat, nil
}

func isObject(arr []json.RawMessage, i int) bool {
	if i >= len(arr) {
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(arr[i]), []byte("{"))
}

func (s *scope) gift() (Event, error) {
	var data giftData
	if err := s.data(&data); err != nil {
		return nil, err
	}

	user := User{
		UID:        data.UID,
		Name:       data.Uname,
		Avatar:     data.Face,
		HonorLevel: data.WealthLevel,
	}
	if u := data.SenderUinfo; u != nil {
		user.Medal = s.medal(u.Medal)
		user.Guard = guard(u.Medal)
	}
	s.fill(user.UID, &user.Name, &user.Avatar, nil)

	g := Gift{
		ID:    data.GiftID,
		Name:  data.GiftName,
		Price: float64(data.DiscountPrice) / 1000,
		Count: data.Num,
	}
	if data.GiftInfo != nil {
		g.Image = data.GiftInfo.ImgBasic
	}

	h := s.header(seconds(data.Timestamp))
	switch data.CoinType {
	case "silver":
		return FreeGift{Header: h, Sender: user, Gift: g}, nil
	case "gold":
		if data.BlindGift == nil {
			return PaidGift{Header: h, Sender: user, Gift: g}, nil
		}
		original := Gift{
			ID:    data.BlindGift.OriginalGiftID,
			Name:  data.BlindGift.OriginalGiftName,
			Price: float64(data.TotalCoin) / 1000,
			Count: data.Num,
		}
		if s.complete {
			entry, err := s.d.enricher.LookupGift(s.ctx, original.ID)
			if err != nil {
				s.warn().Err(err).Uint64("gift_id", original.ID).Msg("gift lookup failed")
			} else {
				original.Image = entry.Image
			}
		}
		return BlindBoxGift{Header: h, Sender: user, Gift: g, Original: original}, nil
	default:
		s.warn().Str("coin_type", data.CoinType).Msg("unhandled gift coin type")
		return nil, nil
	}
}

func (s *scope) superChat() (Event, error) {
	var data superChatData
	if err := s.data(&data); err != nil {
		return nil, err
	}

	at := s.sendTime()
	if at.IsZero() {
		at = seconds(data.StartTime)
	}
	return SuperChat{
		Header: s.header(at),
		Sender: s.sender(0, "", data.Uinfo),
		Text:   data.Message,
		Value:  data.Price,
	}, nil
}

func (s *scope) toast() (Event, error) {
	var data toastData
	if err := s.data(&data); err != nil {
		return nil, err
	}

	tier := GuardLevel(data.GuardLevel)
	if tier < GuardGovernor || tier > GuardCaptain {
		s.warn().Int("guard_level", data.GuardLevel).Msg("unhandled membership tier")
		return nil, nil
	}

	user := User{UID: data.UID, Name: data.Username}
	s.fill(user.UID, &user.Name, &user.Avatar, nil)

	g := &Guard{Level: tier}
	if s.complete && data.RoleName != "" {
		icon, err := s.d.enricher.LookupGuardIcon(s.ctx, data.RoleName)
		if err != nil {
			s.warn().Err(err).Str("role", data.RoleName).Msg("guard icon lookup failed")
		}
		g.Icon = icon
	}
	user.Guard = g

	return Membership{
		Header: s.header(s.sendTime()),
		Sender: user,
		Tier:   tier,
		Op:     membershipOp(data.OpType),
		Price:  float64(data.Price) / 1000,
		Count:  data.Num,
		Unit:   data.Unit,
	}, nil
}

func (s *scope) likeClick() (Event, error) {
	var data likeClickData
	if err := s.data(&data); err != nil {
		return nil, err
	}
	return Like{
		Header: s.header(time.Time{}),
		Sender: s.sender(data.UID, data.Uname, data.Uinfo),
	}, nil
}

func (s *scope) likeUpdate() (Event, error) {
	var data likeUpdateData
	if err := s.data(&data); err != nil {
		return nil, err
	}
	return LikeCount{Header: s.header(time.Time{}), Count: data.ClickCount}, nil
}

package event

import (
	json "github.com/goccy/go-json"
)

// Wire shapes of the notices. Every nested object is a pointer because the
// platform drops whole branches depending on feature flags.

type notice struct {
	Cmd      string          `json:"cmd"`
	LiveTime *int64          `json:"live_time"`
	SendTime *int64          `json:"send_time"`
	Info     json.RawMessage `json:"info"`
	Data     json.RawMessage `json:"data"`
}

type wireBase struct {
	Name string `json:"name"`
	Face string `json:"face"`
}

type wireMedal struct {
	RUID       uint64 `json:"ruid"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	IsLight    int    `json:"is_light"`
	GuardLevel int    `json:"guard_level"`
	GuardIcon  string `json:"guard_icon"`
}

type wireWealth struct {
	Level int `json:"level"`
}

type wireUinfo struct {
	UID    uint64      `json:"uid"`
	Base   *wireBase   `json:"base"`
	Medal  *wireMedal  `json:"medal"`
	Wealth *wireWealth `json:"wealth"`
}

type wireFansMedal struct {
	TargetID     uint64 `json:"target_id"`
	AnchorRoomID uint64 `json:"anchor_roomid"`
	MedalName    string `json:"medal_name"`
	MedalLevel   int    `json:"medal_level"`
	IsLighted    int    `json:"is_lighted"`
}

type interactData struct {
	UID        uint64         `json:"uid"`
	Uname      string         `json:"uname"`
	MsgType    int            `json:"msg_type"`
	Timestamp  int64          `json:"timestamp"`
	IsSpread   int            `json:"is_spread"`
	SpreadDesc string         `json:"spread_desc"`
	FansMedal  *wireFansMedal `json:"fans_medal"`
	Uinfo      *wireUinfo     `json:"uinfo"`
}

type danmuMeta struct {
	User  *wireUinfo `json:"user"`
	Extra string     `json:"extra"`
}

type danmuExtra struct {
	ReplyMid   uint64                     `json:"reply_mid"`
	ReplyUname string                     `json:"reply_uname"`
	Content    string                     `json:"content"`
	Emots      map[string]wireInlineEmote `json:"emots"`
}

type wireInlineEmote struct {
	EmoticonUnique string `json:"emoticon_unique"`
	URL            string `json:"url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Count          int    `json:"count"`
}

type wireSticker struct {
	EmoticonUnique string `json:"emoticon_unique"`
	URL            string `json:"url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type giftData struct {
	UID           uint64 `json:"uid"`
	Uname         string `json:"uname"`
	Face          string `json:"face"`
	WealthLevel   int    `json:"wealth_level"`
	Timestamp     int64  `json:"timestamp"`
	GiftID        uint64 `json:"giftId"`
	GiftName      string `json:"giftName"`
	DiscountPrice int64  `json:"discount_price"`
	TotalCoin     int64  `json:"total_coin"`
	Num           int    `json:"num"`
	CoinType      string `json:"coin_type"`
	GiftInfo      *struct {
		ImgBasic string `json:"img_basic"`
	} `json:"gift_info"`
	SenderUinfo *wireUinfo `json:"sender_uinfo"`
	BlindGift   *struct {
		OriginalGiftID   uint64 `json:"original_gift_id"`
		OriginalGiftName string `json:"original_gift_name"`
	} `json:"blind_gift"`
}

type superChatData struct {
	Message   string     `json:"message"`
	Price     float64    `json:"price"`
	StartTime int64      `json:"start_time"`
	Uinfo     *wireUinfo `json:"uinfo"`
}

type toastData struct {
	UID        uint64 `json:"uid"`
	Username   string `json:"username"`
	GuardLevel int    `json:"guard_level"`
	OpType     int    `json:"op_type"`
	Price      int64  `json:"price"`
	Num        int    `json:"num"`
	Unit       string `json:"unit"`
	RoleName   string `json:"role_name"`
}

type likeClickData struct {
	UID   uint64     `json:"uid"`
	Uname string     `json:"uname"`
	Uinfo *wireUinfo `json:"uinfo"`
}

type likeUpdateData struct {
	ClickCount int `json:"click_count"`
}

// element decodes arr[i] into v. Missing indexes and JSON nulls report false.
func element(arr []json.RawMessage, i int, v any) bool {
	if i < 0 || i >= len(arr) || len(arr[i]) == 0 || string(arr[i]) == "null" {
		return false
	}
	return json.Unmarshal(arr[i], v) == nil
}

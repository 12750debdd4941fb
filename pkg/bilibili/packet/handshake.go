package packet

import (
	json "github.com/goccy/go-json"
)

var heartbeatBody = []byte("[object Object]")

type VerifyBody struct {
	UID      uint64 `json:"uid"`
	RoomID   uint64 `json:"roomid"`
	Protover int    `json:"protover"`
	Buvid    string `json:"buvid"`
	Platform string `json:"platform"`
	Type     int    `json:"type"`
	Key      string `json:"key"`
}

func NewVerifyBody(uid, roomNumber uint64, buvid, token string) VerifyBody {
	return VerifyBody{
		UID:      uid,
		RoomID:   roomNumber,
		Protover: 3,
		Buvid:    buvid,
		Platform: "web",
		Type:     2,
		Key:      token,
	}
}

func Verify(v VerifyBody) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Encode(HeaderHeartbeat, PackVerify, body)
}

func Heartbeat() []byte {
	b, _ := Encode(HeaderHeartbeat, PackHeartbeat, heartbeatBody)
	return b
}

package event

import (
	"fmt"
)

// Room identifies a streamer. RoomNumber is zero for accounts that never
// opened a live room.
type Room struct {
	UID        uint64 `json:"uid"`
	Name       string `json:"name"`
	RoomNumber uint64 `json:"room_number"`
	Avatar     string `json:"avatar"`
}

func (r Room) Equal(o Room) bool {
	return r.UID == o.UID
}

func (r Room) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%d", r.UID)
	}
	return fmt.Sprintf("%s(%d)", r.Name, r.UID)
}

type User struct {
	UID        uint64 `json:"uid"`
	Name       string `json:"name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Medal      *Medal `json:"medal,omitempty"`
	Guard      *Guard `json:"guard,omitempty"`
	HonorLevel int    `json:"honor_level,omitempty"`
}

// Medal is the fan badge a user wears. Owner fields describe the streamer
// the badge belongs to.
type Medal struct {
	OwnerUID        uint64 `json:"owner_uid"`
	OwnerName       string `json:"owner_name,omitempty"`
	OwnerRoomNumber uint64 `json:"owner_room_number,omitempty"`
	OwnerAvatar     string `json:"owner_avatar,omitempty"`
	Name            string `json:"name"`
	Level           int    `json:"level"`
	Lighted         bool   `json:"lighted"`
}

type Guard struct {
	Level GuardLevel `json:"level"`
	Icon  string     `json:"icon,omitempty"`
}

type GuardLevel int

const (
	GuardNone      GuardLevel = 0
	GuardGovernor  GuardLevel = 1
	GuardCommander GuardLevel = 2
	GuardCaptain   GuardLevel = 3
)

func (g GuardLevel) String() string {
	switch g {
	case GuardGovernor:
		return "governor"
	case GuardCommander:
		return "commander"
	case GuardCaptain:
		return "captain"
	default:
		return "none"
	}
}

type MembershipOp int

const (
	OpUnknown  MembershipOp = 0
	OpActivate MembershipOp = 1
	OpRenew    MembershipOp = 2
)

func membershipOp(v int) MembershipOp {
	switch v {
	case 1:
		return OpActivate
	case 2:
		return OpRenew
	default:
		return OpUnknown
	}
}

func (o MembershipOp) String() string {
	switch o {
	case OpActivate:
		return "activate"
	case OpRenew:
		return "renew"
	default:
		return "unknown"
	}
}

type Emoticon struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Count  int    `json:"count,omitempty"`
}

// Gift prices are in whole currency units.
type Gift struct {
	ID    uint64  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Count int     `json:"count"`
	Image string  `json:"image,omitempty"`
}

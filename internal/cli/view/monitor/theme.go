package monitor

import "github.com/Kostaaa1/bililive/pkg/bilibili/live"

type Theme struct {
	Primary string
	Danger  string
	Faint   string
	Chat    string
	Gift    string
	Guard   string
	Super   string
	System  string
}

func DefaultTheme() Theme {
	return Theme{
		Primary: "#00a1d6",
		Danger:  "#C92D05",
		Faint:   "#6c7086",
		Chat:    "#fb7299",
		Gift:    "#fe640b",
		Guard:   "#8839ef",
		Super:   "#d20f39",
		System:  "#40a02b",
	}
}

func (th Theme) stateColor(state string) string {
	switch state {
	case live.StateConnected.String():
		return th.System
	case live.StateConnecting.String(), live.StateInit.String():
		return th.Gift
	case "":
		return th.Faint
	default:
		return th.Danger
	}
}

package model

type EventKind uint8

const (
	KindUnknown EventKind = iota
	KindTurn
	KindTier
	KindPlayer
	KindPoke
	KindSideStart
	KindDamage
	KindSwitch
	KindDrag
	KindFaint
	KindWin
)

func (k EventKind) String() string {
	switch k {
	case KindTurn:
		return "turn"
	case KindTier:
		return "tier"
	case KindPlayer:
		return "player"
	case KindPoke:
		return "poke"
	case KindSideStart:
		return "-sidestart"
	case KindDamage:
		return "-damage"
	case KindSwitch:
		return "switch"
	case KindDrag:
		return "drag"
	case KindFaint:
		return "faint"
	case KindWin:
		return "win"
	default:
		return "unknown"
	}
}

// Event is one decoded log record. Only the fields relevant to Kind are set.
type Event struct {
	Raw  string
	Tag  string
	Kind EventKind

	Side        string // "p1" / "p2"
	Nickname    string
	Species     string
	HiddenForme bool // team preview showed "Species-*"

	Turn   int
	Text   string // tier format, player name, winner
	HP     string
	From   string // "[from] ..." marker on -damage, verbatim
	Hazard string // "move: Stealth Rock" on -sidestart
}

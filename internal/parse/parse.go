package parse

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/ZehenForever/psreplay-stats/internal/model"
)

const (
	fieldSep   = "|"
	fromMarker = "[from]"
)

var kindByTag = map[string]model.EventKind{
	"turn":       model.KindTurn,
	"tier":       model.KindTier,
	"player":     model.KindPlayer,
	"poke":       model.KindPoke,
	"-sidestart": model.KindSideStart,
	"-damage":    model.KindDamage,
	"switch":     model.KindSwitch,
	"drag":       model.KindDrag,
	"faint":      model.KindFaint,
	"win":        model.KindWin,
}

// ParseLine decodes one "|"-delimited record. ok is false for lines that are
// not records at all (blank, no tag). Records with an unknown tag, or a known
// tag whose fields are malformed, come back as KindUnknown.
func ParseLine(line string) (model.Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return model.Event{}, false
	}
	parts := strings.Split(line, fieldSep)
	if len(parts) < 2 || parts[1] == "" {
		return model.Event{}, false
	}

	ev := model.Event{Raw: line, Tag: parts[1], Kind: model.KindUnknown}
	kind, known := kindByTag[parts[1]]
	if !known {
		return ev, true
	}

	var ok bool
	switch kind {
	case model.KindTurn:
		ok = decodeTurn(&ev, parts)
	case model.KindTier, model.KindWin:
		ok = decodeText(&ev, parts)
	case model.KindPlayer:
		ok = decodePlayer(&ev, parts)
	case model.KindPoke:
		ok = decodePoke(&ev, parts)
	case model.KindSideStart:
		ok = decodeSideStart(&ev, parts)
	case model.KindDamage:
		ok = decodeDamage(&ev, parts)
	case model.KindSwitch, model.KindDrag:
		ok = decodeSwitch(&ev, parts)
	case model.KindFaint:
		ok = decodeFaint(&ev, parts)
	}
	if ok {
		ev.Kind = kind
	}
	return ev, true
}

func decodeTurn(ev *model.Event, parts []string) bool {
	if len(parts) < 3 {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return false
	}
	ev.Turn = n
	return true
}

func decodeText(ev *model.Event, parts []string) bool {
	if len(parts) < 3 {
		return false
	}
	ev.Text = parts[2]
	return true
}

func decodePlayer(ev *model.Event, parts []string) bool {
	if len(parts) < 3 || parts[2] == "" {
		return false
	}
	ev.Side = parts[2]
	if len(parts) > 3 {
		ev.Text = parts[3]
	}
	return true
}

func decodePoke(ev *model.Event, parts []string) bool {
	if len(parts) < 4 || parts[2] == "" {
		return false
	}
	species := PreviewSpecies(parts[3])
	if species == "" {
		return false
	}
	ev.Side = parts[2]
	ev.Species = species
	ev.HiddenForme = strings.HasSuffix(strings.SplitN(parts[3], ",", 2)[0], "-*")
	return true
}

func decodeSideStart(ev *model.Event, parts []string) bool {
	if len(parts) < 4 {
		return false
	}
	side, _, _ := strings.Cut(parts[2], ":")
	if side == "" {
		return false
	}
	ev.Side = side
	ev.Hazard = parts[3]
	return true
}

func decodeDamage(ev *model.Event, parts []string) bool {
	if len(parts) < 4 {
		return false
	}
	side, nick, ok := splitIdent(parts[2])
	if !ok {
		return false
	}
	ev.Side = side
	ev.Nickname = nick
	ev.HP = parts[3]
	if len(parts) > 4 && strings.HasPrefix(parts[4], fromMarker) {
		ev.From = parts[4]
	}
	return true
}

func decodeSwitch(ev *model.Event, parts []string) bool {
	if len(parts) < 4 {
		return false
	}
	side, nick, ok := splitIdent(parts[2])
	if !ok || nick == "" {
		return false
	}
	species := BaseSpecies(parts[3])
	if species == "" {
		return false
	}
	ev.Side = side
	ev.Nickname = nick
	ev.Species = species
	return true
}

func decodeFaint(ev *model.Event, parts []string) bool {
	if len(parts) < 3 {
		return false
	}
	side, nick, ok := splitIdent(parts[2])
	if !ok || nick == "" {
		return false
	}
	ev.Side = side
	ev.Nickname = nick
	return true
}

// splitIdent splits a "p1a: Nickname" identifier into ("p1", "Nickname").
// Only the first colon separates; nicknames may contain colons.
func splitIdent(s string) (side string, nick string, ok bool) {
	pos, rest, found := strings.Cut(s, ":")
	if !found || len(pos) < 2 {
		return "", "", false
	}
	return pos[:2], strings.TrimSpace(rest), true
}

// PreviewSpecies extracts the species from a team-preview details field
// ("Greninja-*, M") and drops the "-*" placeholder for hidden formes.
func PreviewSpecies(details string) string {
	species, _, _ := strings.Cut(details, ",")
	return strings.TrimSuffix(species, "-*")
}

// BaseSpecies extracts the species from a switch details field and folds
// in-battle transformations ("-Mega", "-Primal") back onto the base form.
func BaseSpecies(details string) string {
	species, _, _ := strings.Cut(details, ",")
	if i := strings.Index(species, "-Mega"); i >= 0 {
		species = species[:i]
	}
	if i := strings.Index(species, "-Primal"); i >= 0 {
		species = species[:i]
	}
	return species
}

func ParseFile(r io.Reader) *Iterator {
	return &Iterator{r: r}
}

type Iterator struct {
	r   io.Reader
	s   *bufio.Scanner
	err error

	cur model.Event
}

func (it *Iterator) Next() bool {
	if it.s == nil {
		it.s = bufio.NewScanner(it.r)
		// replay logs carry long |raw| and |c| lines
		buf := make([]byte, 0, 128*1024)
		it.s.Buffer(buf, 4*1024*1024)
	}

	for it.s.Scan() {
		e, ok := ParseLine(it.s.Text())
		if !ok {
			continue
		}
		it.cur = e
		return true
	}
	it.err = it.s.Err()
	return false
}

func (it *Iterator) Event() model.Event { return it.cur }
func (it *Iterator) Err() error         { return it.err }

package engine

import (
	"io"
	"strings"

	"github.com/ZehenForever/psreplay-stats/internal/model"
	"github.com/ZehenForever/psreplay-stats/internal/parse"
)

type Options struct {
	// Format seeds MatchResult.Format; a |tier| record overrides it.
	Format string
	// UntilTurn stops folding once a later turn begins (0 disables).
	UntilTurn int
	// RosterFromSwitches adds species at first switch-in for sides that never
	// went through team preview.
	RosterFromSwitches bool
}

// Engine folds battle-log events into a MatchResult. One Engine serves one
// log; it is not safe for concurrent use.
type Engine struct {
	res    *model.MatchResult
	filter TurnFilter
	opts   Options

	active         map[string]string            // side -> species currently credited
	nicknames      map[string]string            // "side:nickname" -> species
	hazardSetters  map[string]map[string]string // side -> hazard key -> species
	previewed      map[string]bool
	hiddenFormes   map[string][]string // side -> species previewed as "Species-*"
	lastKillSource string
	currentTurn    int
	stopped        bool
}

func New(opts Options) *Engine {
	res := model.NewMatchResult()
	res.Format = opts.Format
	return &Engine{
		res:           res,
		filter:        NewTurnFilterUntil(opts.UntilTurn),
		opts:          opts,
		active:        make(map[string]string),
		nicknames:     make(map[string]string),
		hazardSetters: make(map[string]map[string]string),
		previewed:     make(map[string]bool),
		hiddenFormes:  make(map[string][]string),
	}
}

// ParseLog runs a fresh engine over the whole log text.
func ParseLog(text string, opts Options) *model.MatchResult {
	e := New(opts)
	for _, line := range strings.Split(text, "\n") {
		e.ProcessLine(line)
	}
	return e.Result()
}

// ParseReader is ParseLog over a stream. The only possible error is a read
// error from r; the result folded so far is returned alongside it.
func ParseReader(r io.Reader, opts Options) (*model.MatchResult, error) {
	e := New(opts)
	it := parse.ParseFile(r)
	for it.Next() {
		e.Process(it.Event())
	}
	return e.Result(), it.Err()
}

func (e *Engine) ProcessLine(line string) {
	ev, ok := parse.ParseLine(line)
	if !ok {
		return
	}
	e.Process(ev)
}

func (e *Engine) Process(ev model.Event) {
	if e.stopped {
		return
	}
	switch ev.Kind {
	case model.KindTurn:
		if !e.filter.Allow(ev.Turn) {
			e.stopped = true
			return
		}
		e.currentTurn = ev.Turn
	case model.KindTier:
		e.res.Format = ev.Text
	case model.KindPlayer:
		if _, ok := e.res.Players[ev.Side]; !ok {
			e.res.Players[ev.Side] = model.NewPlayerState(ev.Text)
		}
	case model.KindPoke:
		e.poke(ev)
	case model.KindSideStart:
		e.sideStart(ev)
	case model.KindDamage:
		e.damage(ev)
	case model.KindSwitch, model.KindDrag:
		e.switchIn(ev)
	case model.KindFaint:
		e.faint(ev)
	case model.KindWin:
		e.res.Winner = ev.Text
	}
}

// Result returns the result owned by the engine. Callers that keep feeding
// events should use Snapshot instead.
func (e *Engine) Result() *model.MatchResult { return e.res }

func (e *Engine) Snapshot() *model.MatchResult { return e.res.Clone() }

func (e *Engine) Turn() int { return e.currentTurn }

// Stopped reports whether the turn cut-off has been reached.
func (e *Engine) Stopped() bool { return e.stopped }

func (e *Engine) poke(ev model.Event) {
	p := e.res.Players[ev.Side]
	if p == nil {
		return
	}
	e.previewed[ev.Side] = true
	if p.AddMon(ev.Species) && ev.HiddenForme {
		e.hiddenFormes[ev.Side] = append(e.hiddenFormes[ev.Side], ev.Species)
	}
}

func (e *Engine) sideStart(ev model.Event) {
	// The hazard lands on ev.Side; whoever the other side has out laid it.
	setter := e.active[model.Opponent(ev.Side)]
	if setter == "" {
		return
	}
	bySide := e.hazardSetters[ev.Side]
	if bySide == nil {
		bySide = make(map[string]string)
		e.hazardSetters[ev.Side] = bySide
	}
	bySide[ev.Hazard] = setter
}

func (e *Engine) damage(ev model.Event) {
	if ev.From == "" || !strings.Contains(ev.HP, "0 fnt") {
		return
	}
	source := ClassifyKillSource(ev.From)
	e.lastKillSource = source

	// Redirect the upcoming faint's credit: to the hazard setter for hazards,
	// to nobody for status and weather.
	opp := model.Opponent(ev.Side)
	if IsHazardSource(source) {
		e.active[opp] = e.hazardSetters[ev.Side][hazardKey(ev.From)]
		return
	}
	e.active[opp] = ""
}

func (e *Engine) switchIn(ev model.Event) {
	species := e.rosterSpecies(ev.Side, ev.Species)
	e.nicknames[nicknameKey(ev.Side, ev.Nickname)] = species
	e.active[ev.Side] = species

	if e.opts.RosterFromSwitches && !e.previewed[ev.Side] {
		if p := e.res.Players[ev.Side]; p != nil {
			p.AddMon(species)
		}
	}
}

// rosterSpecies maps a revealed forme ("Greninja-Bond") onto the roster entry
// that team preview hid behind "Greninja-*".
func (e *Engine) rosterSpecies(side, species string) string {
	if p := e.res.Players[side]; p != nil {
		if _, ok := p.Mons[species]; ok {
			return species
		}
	}
	for _, base := range e.hiddenFormes[side] {
		if strings.HasPrefix(species, base+"-") {
			return base
		}
	}
	return species
}

func (e *Engine) faint(ev model.Event) {
	species, ok := e.nicknames[nicknameKey(ev.Side, ev.Nickname)]
	if !ok {
		species = ev.Nickname
	}
	source := e.lastKillSource
	e.lastKillSource = ""

	if p := e.res.Players[ev.Side]; p != nil {
		if st := p.Mons[species]; st != nil && !st.Died {
			st.Died = true
			st.HazardKill = IsHazardSource(source)
		}
	}

	kill := model.KillEvent{
		Turn:       e.currentTurn,
		VictimMon:  species,
		VictimTeam: ev.Side,
		KillSource: source,
	}
	opp := model.Opponent(ev.Side)
	if killer := e.active[opp]; killer != "" {
		if p := e.res.Players[opp]; p != nil {
			if st := p.Mons[killer]; st != nil {
				st.Kills++
				kill.KillerMon = killer
				kill.KillerTeam = opp
			}
		}
	}
	e.res.KillLog = append(e.res.KillLog, kill)
}

func nicknameKey(side, nickname string) string {
	return side + ":" + nickname
}

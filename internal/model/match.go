package model

import "sort"

const (
	SideP1 = "p1"
	SideP2 = "p2"
)

// Opponent returns the other side of a two-player battle.
func Opponent(side string) string {
	if side == SideP1 {
		return SideP2
	}
	return SideP1
}

type MatchResult struct {
	Format  string                  `json:"format"`
	Winner  string                  `json:"winner"`
	Players map[string]*PlayerState `json:"players"`
	KillLog []KillEvent             `json:"killLog"`
}

type PlayerState struct {
	Name string               `json:"name"`
	Team []string             `json:"team"`
	Mons map[string]*MonStats `json:"mons"`
}

type MonStats struct {
	Kills      int  `json:"kills"`
	Died       bool `json:"died"`
	HazardKill bool `json:"hazardKill"`
}

// KillEvent is one faint. KillerMon and KillerTeam are both empty when no
// combatant could be credited.
type KillEvent struct {
	Turn       int    `json:"turn"`
	KillerMon  string `json:"killerMon"`
	KillerTeam string `json:"killerTeam"`
	VictimMon  string `json:"victimMon"`
	VictimTeam string `json:"victimTeam"`
	KillSource string `json:"killSource"`
}

func NewMatchResult() *MatchResult {
	return &MatchResult{
		Players: make(map[string]*PlayerState),
		KillLog: []KillEvent{},
	}
}

func NewPlayerState(name string) *PlayerState {
	return &PlayerState{
		Name: name,
		Team: []string{},
		Mons: make(map[string]*MonStats),
	}
}

// AddMon appends species to the roster if it is not there yet.
func (p *PlayerState) AddMon(species string) bool {
	if _, ok := p.Mons[species]; ok {
		return false
	}
	p.Team = append(p.Team, species)
	p.Mons[species] = &MonStats{}
	return true
}

// Sides returns the registered sides in sorted order ("p1" before "p2").
func (r *MatchResult) Sides() []string {
	out := make([]string, 0, len(r.Players))
	for side := range r.Players {
		out = append(out, side)
	}
	sort.Strings(out)
	return out
}

// PlayerName returns the display name for side, or the side itself when the
// side was never declared.
func (r *MatchResult) PlayerName(side string) string {
	if side == "" {
		return ""
	}
	if p, ok := r.Players[side]; ok && p.Name != "" {
		return p.Name
	}
	return side
}

// Clone returns a deep copy so callers can hold a result while the engine keeps
// folding events into the original.
func (r *MatchResult) Clone() *MatchResult {
	if r == nil {
		return nil
	}
	out := &MatchResult{
		Format:  r.Format,
		Winner:  r.Winner,
		Players: make(map[string]*PlayerState, len(r.Players)),
		KillLog: append([]KillEvent{}, r.KillLog...),
	}
	for side, p := range r.Players {
		cp := &PlayerState{
			Name: p.Name,
			Team: append([]string{}, p.Team...),
			Mons: make(map[string]*MonStats, len(p.Mons)),
		}
		for species, st := range p.Mons {
			s := *st
			cp.Mons[species] = &s
		}
		out.Players[side] = cp
	}
	return out
}

package engine

import "strings"

const (
	KillSourceRocks       = "rocks"
	KillSourceSpikes      = "spikes"
	KillSourceToxicSpikes = "toxic spikes"
	KillSourceStickyWeb   = "sticky web"
	KillSourcePoison      = "poison"
	KillSourceBurn        = "burn"
	KillSourceSandstorm   = "sandstorm"
	KillSourceHail        = "hail"
)

type killSourceRule struct {
	substrings []string
	tag        string
}

// Evaluated in order; the first rule with any matching substring wins.
// "Spikes" precedes "Toxic Spikes", so the latter never matches on its own;
// toxic spikes damage is logged as poison anyway.
var killSourceRules = []killSourceRule{
	{substrings: []string{"Stealth Rock"}, tag: KillSourceRocks},
	{substrings: []string{"Spikes"}, tag: KillSourceSpikes},
	{substrings: []string{"Toxic Spikes"}, tag: KillSourceToxicSpikes},
	{substrings: []string{"Sticky Web"}, tag: KillSourceStickyWeb},
	{substrings: []string{"psn", "tox"}, tag: KillSourcePoison},
	{substrings: []string{"brn"}, tag: KillSourceBurn},
	{substrings: []string{"Sandstorm"}, tag: KillSourceSandstorm},
	{substrings: []string{"Hail"}, tag: KillSourceHail},
}

var hazardSources = map[string]struct{}{
	KillSourceRocks:       {},
	KillSourceSpikes:      {},
	KillSourceToxicSpikes: {},
	KillSourceStickyWeb:   {},
}

// ClassifyKillSource maps a "[from] ..." damage marker to a kill-source tag.
// Unmatched markers fall back to the lowercased text after "[from] ".
func ClassifyKillSource(from string) string {
	for _, rule := range killSourceRules {
		for _, sub := range rule.substrings {
			if strings.Contains(from, sub) {
				return rule.tag
			}
		}
	}
	return strings.ToLower(strings.Replace(from, "[from] ", "", 1))
}

func IsHazardSource(tag string) bool {
	_, ok := hazardSources[tag]
	return ok
}

// hazardKey rebuilds the -sidestart key ("move: Stealth Rock") from a damage
// marker ("[from] Stealth Rock").
func hazardKey(from string) string {
	return strings.Replace(from, "[from] ", "move: ", 1)
}

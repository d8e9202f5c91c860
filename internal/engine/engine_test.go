package engine

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ZehenForever/psreplay-stats/internal/model"
)

func logOf(lines ...string) string {
	return strings.Join(lines, "\n")
}

var twoPlayerPreview = []string{
	"|player|p1|Alice|ethan|1500",
	"|player|p2|Bob|dawn|1500",
	"|tier|[Gen 9] OU",
	"|poke|p1|Garchomp, M|",
	"|poke|p1|Landorus-Therian, M|",
	"|poke|p2|Toxapex, F|",
	"|poke|p2|Heatran, M|",
	"|start",
}

func withPreview(lines ...string) string {
	return logOf(append(append([]string{}, twoPlayerPreview...), lines...)...)
}

func assertKillSums(t *testing.T, res *model.MatchResult) {
	t.Helper()
	for side, p := range res.Players {
		sum := 0
		for _, st := range p.Mons {
			sum += st.Kills
		}
		credited := 0
		for _, k := range res.KillLog {
			if k.KillerTeam == side {
				credited++
			}
		}
		if sum != credited {
			t.Fatalf("side=%s kills=%d credited events=%d", side, sum, credited)
		}
	}
}

func TestParseLog_DelayedStealthRockCreditsOriginalSetter(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|turn|1",
		"|move|p1a: Chompy|Stealth Rock|p2a: Pex",
		"|-sidestart|p2: Bob|move: Stealth Rock",
		"|turn|2",
		"|switch|p1a: Lando|Landorus-Therian, M|100/100",
		"|switch|p2a: Tran|Heatran, M|4/100",
		"|-damage|p2a: Tran|0 fnt|[from] Stealth Rock",
		"|faint|p2a: Tran",
	), Options{})

	if len(res.KillLog) != 1 {
		t.Fatalf("killLog=%d want=1", len(res.KillLog))
	}
	k := res.KillLog[0]
	if k.KillerMon != "Garchomp" || k.KillerTeam != "p1" {
		t.Fatalf("killer=%q/%q want=Garchomp/p1", k.KillerMon, k.KillerTeam)
	}
	if k.KillSource != KillSourceRocks {
		t.Fatalf("killSource=%q want=rocks", k.KillSource)
	}
	if k.VictimMon != "Heatran" || k.VictimTeam != "p2" || k.Turn != 2 {
		t.Fatalf("victim=%q/%q turn=%d", k.VictimMon, k.VictimTeam, k.Turn)
	}
	if got := res.Players["p1"].Mons["Garchomp"].Kills; got != 1 {
		t.Fatalf("garchomp kills=%d want=1", got)
	}
	if got := res.Players["p1"].Mons["Landorus-Therian"].Kills; got != 0 {
		t.Fatalf("lando kills=%d want=0", got)
	}
	tran := res.Players["p2"].Mons["Heatran"]
	if !tran.Died || !tran.HazardKill {
		t.Fatalf("heatran died=%v hazardKill=%v", tran.Died, tran.HazardKill)
	}
	assertKillSums(t, res)
}

func TestParseLog_UnknownHazardSetterIsUncredited(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p2a: Tran|Heatran, M|100/100",
		"|-sidestart|p2: Bob|move: Spikes",
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|turn|1",
		"|switch|p2a: Pex|Toxapex, F|5/100",
		"|-damage|p2a: Pex|0 fnt|[from] Spikes",
		"|faint|p2a: Pex",
	), Options{})

	k := res.KillLog[0]
	if k.KillerMon != "" || k.KillerTeam != "" {
		t.Fatalf("killer=%q/%q want empty", k.KillerMon, k.KillerTeam)
	}
	if k.KillSource != KillSourceSpikes {
		t.Fatalf("killSource=%q want=spikes", k.KillSource)
	}
	if !res.Players["p2"].Mons["Toxapex"].HazardKill {
		t.Fatalf("expected hazardKill")
	}
	assertKillSums(t, res)
}

func TestParseLog_LaterHazardPlacementOverwritesSetter(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|-sidestart|p2: Bob|move: Spikes",
		"|turn|1",
		"|switch|p1a: Lando|Landorus-Therian, M|100/100",
		"|-sidestart|p2: Bob|move: Spikes",
		"|turn|2",
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Tran|Heatran, M|3/100",
		"|-damage|p2a: Tran|0 fnt|[from] Spikes",
		"|faint|p2a: Tran",
	), Options{})

	if got := res.KillLog[0].KillerMon; got != "Landorus-Therian" {
		t.Fatalf("killer=%q want=Landorus-Therian", got)
	}
}

func TestParseLog_StatusAndWeatherKillsAreUncredited(t *testing.T) {
	cases := []struct {
		from string
		want string
	}{
		{"[from] psn", KillSourcePoison},
		{"[from] tox", KillSourcePoison},
		{"[from] brn", KillSourceBurn},
		{"[from] Sandstorm", KillSourceSandstorm},
		{"[from] Hail", KillSourceHail},
		{"[from] item: Life Orb", "item: life orb"},
	}
	for _, tc := range cases {
		res := ParseLog(withPreview(
			"|switch|p1a: Chompy|Garchomp, M|100/100",
			"|switch|p2a: Pex|Toxapex, F|100/100",
			"|turn|3",
			"|-damage|p1a: Chompy|0 fnt|"+tc.from,
			"|faint|p1a: Chompy",
		), Options{})

		k := res.KillLog[0]
		if k.KillerMon != "" || k.KillerTeam != "" {
			t.Fatalf("from=%q killer=%q/%q want empty", tc.from, k.KillerMon, k.KillerTeam)
		}
		if k.KillSource != tc.want {
			t.Fatalf("from=%q killSource=%q want=%q", tc.from, k.KillSource, tc.want)
		}
		if res.Players["p2"].Mons["Toxapex"].Kills != 0 {
			t.Fatalf("from=%q toxapex credited", tc.from)
		}
		chomp := res.Players["p1"].Mons["Garchomp"]
		if !chomp.Died || chomp.HazardKill {
			t.Fatalf("from=%q died=%v hazardKill=%v", tc.from, chomp.Died, chomp.HazardKill)
		}
	}
}

func TestParseLog_DirectKillCreditsActiveOpponent(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Tran|Heatran, M|100/100",
		"|turn|1",
		"|move|p1a: Chompy|Earthquake|p2a: Tran",
		"|-damage|p2a: Tran|0 fnt",
		"|faint|p2a: Tran",
	), Options{})

	k := res.KillLog[0]
	if k.KillerMon != "Garchomp" || k.KillerTeam != "p1" || k.KillSource != "" {
		t.Fatalf("kill=%+v", k)
	}
	if res.Players["p2"].Mons["Heatran"].HazardKill {
		t.Fatalf("direct kill flagged as hazard")
	}
}

func TestParseLog_NonFaintingIndirectDamageIgnored(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|-damage|p2a: Pex|88/100|[from] Stealth Rock",
		"|-damage|p2a: Pex|76/100 tox|[from] psn",
		"|move|p1a: Chompy|Earthquake|p2a: Pex",
		"|-damage|p2a: Pex|0 fnt",
		"|faint|p2a: Pex",
	), Options{})

	k := res.KillLog[0]
	if k.KillSource != "" || k.KillerMon != "Garchomp" {
		t.Fatalf("kill=%+v", k)
	}
}

func TestParseLog_LatestIndirectSourceWins(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|-damage|p2a: Pex|0 fnt|[from] brn",
		"|-damage|p2a: Pex|0 fnt|[from] Sandstorm",
		"|faint|p2a: Pex",
		"|switch|p2a: Tran|Heatran, M|100/100",
		"|move|p1a: Chompy|Earthquake|p2a: Tran",
		"|-damage|p2a: Tran|0 fnt",
		"|faint|p2a: Tran",
	), Options{})

	if got := res.KillLog[0].KillSource; got != KillSourceSandstorm {
		t.Fatalf("killSource=%q want=sandstorm", got)
	}
	// consumed by the first faint
	if got := res.KillLog[1].KillSource; got != "" {
		t.Fatalf("second killSource=%q want empty", got)
	}
}

func TestParseLog_NicknamesResolveToSpecies(t *testing.T) {
	res := ParseLog(withPreview(
		"|switch|p1a: Mr. Shark: The Sequel|Garchomp, M|100/100",
		"|switch|p2a: Mr. Shark: The Sequel|Toxapex, F|100/100",
		"|move|p2a: Mr. Shark: The Sequel|Toxic|p1a: Mr. Shark: The Sequel",
		"|-damage|p1a: Mr. Shark: The Sequel|0 fnt",
		"|faint|p1a: Mr. Shark: The Sequel",
	), Options{})

	k := res.KillLog[0]
	if k.VictimMon != "Garchomp" || k.KillerMon != "Toxapex" {
		t.Fatalf("kill=%+v", k)
	}
	if !res.Players["p1"].Mons["Garchomp"].Died {
		t.Fatalf("garchomp not marked dead")
	}
}

func TestParseLog_UnmappedNicknameFallsBackToRawIdentifier(t *testing.T) {
	res := ParseLog(withPreview(
		"|faint|p2a: Mystery",
	), Options{})

	if len(res.KillLog) != 1 {
		t.Fatalf("killLog=%d want=1", len(res.KillLog))
	}
	k := res.KillLog[0]
	if k.VictimMon != "Mystery" || k.VictimTeam != "p2" || k.KillerMon != "" {
		t.Fatalf("kill=%+v", k)
	}
	if _, ok := res.Players["p2"].Mons["Mystery"]; ok {
		t.Fatalf("unknown species must not join the roster")
	}
}

func TestParseLog_MegaAndPrimalFoldOntoBaseSpecies(t *testing.T) {
	res := ParseLog(logOf(
		"|player|p1|Alice|",
		"|player|p2|Bob|",
		"|poke|p1|Charizard, F|",
		"|poke|p2|Groudon|",
		"|poke|p2|Greninja-*, M|",
		"|switch|p1a: Zard|Charizard-Mega-Y, F|100/100",
		"|switch|p2a: Don|Groudon-Primal|100/100",
		"|move|p2a: Don|Precipice Blades|p1a: Zard",
		"|-damage|p1a: Zard|0 fnt",
		"|faint|p1a: Zard",
	), Options{})

	p1 := res.Players["p1"]
	if !reflect.DeepEqual(p1.Team, []string{"Charizard"}) {
		t.Fatalf("p1 team=%v", p1.Team)
	}
	if _, ok := p1.Mons["Charizard-Mega-Y"]; ok {
		t.Fatalf("mega forme duplicated in roster")
	}
	if !p1.Mons["Charizard"].Died {
		t.Fatalf("charizard not marked dead")
	}
	p2 := res.Players["p2"]
	if !reflect.DeepEqual(p2.Team, []string{"Groudon", "Greninja"}) {
		t.Fatalf("p2 team=%v", p2.Team)
	}
	if p2.Mons["Groudon"].Kills != 1 {
		t.Fatalf("groudon kills=%d want=1", p2.Mons["Groudon"].Kills)
	}
}

func TestParseLog_HiddenPreviewFormeMatchesRevealedForme(t *testing.T) {
	res := ParseLog(logOf(
		"|player|p1|Alice|",
		"|player|p2|Bob|",
		"|poke|p1|Garchomp, M|",
		"|poke|p2|Greninja-*, M|",
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Frogger|Greninja-Bond, M|100/100",
		"|-damage|p2a: Frogger|0 fnt",
		"|faint|p2a: Frogger",
	), Options{})

	p2 := res.Players["p2"]
	if !reflect.DeepEqual(p2.Team, []string{"Greninja"}) {
		t.Fatalf("team=%v", p2.Team)
	}
	if !p2.Mons["Greninja"].Died {
		t.Fatalf("greninja not marked dead")
	}
	if res.KillLog[0].VictimMon != "Greninja" {
		t.Fatalf("victim=%q", res.KillLog[0].VictimMon)
	}
}

func TestParseLog_TeamPreviewOrderFirstSeenWins(t *testing.T) {
	res := ParseLog(logOf(
		"|player|p1|Alice|",
		"|poke|p1|Garchomp, M|",
		"|poke|p1|Toxapex, F|",
		"|poke|p1|Garchomp, M|",
		"|poke|p1|Heatran, M|",
		"|poke|p1|Toxapex, F|",
	), Options{})

	p1 := res.Players["p1"]
	want := []string{"Garchomp", "Toxapex", "Heatran"}
	if !reflect.DeepEqual(p1.Team, want) {
		t.Fatalf("team=%v want=%v", p1.Team, want)
	}
	if len(p1.Mons) != 3 {
		t.Fatalf("mons=%d want=3", len(p1.Mons))
	}
}

func TestParseLog_PlayerNameSetOnce(t *testing.T) {
	res := ParseLog(logOf(
		"|player|p1|Alice|ethan|1500",
		"|player|p1|",
		"|player|p2|Bob|",
	), Options{})

	if res.Players["p1"].Name != "Alice" {
		t.Fatalf("name=%q want=Alice", res.Players["p1"].Name)
	}
	if len(res.Players) != 2 {
		t.Fatalf("players=%d want=2", len(res.Players))
	}
}

func TestParseLog_MalformedLinesAreSkipped(t *testing.T) {
	res := ParseLog(withPreview(
		"garbage without separators",
		"|",
		"||",
		"|turn|not-a-number",
		"|turn",
		"|switch|p1a",
		"|switch|nocolon|Garchomp, M|100/100",
		"|faint|",
		"|faint|p1a",
		"|-damage|p2a: Pex",
		"|-sidestart",
		"|poke|p1",
		"|somethingnew|p1|x",
		"\r",
		"|switch|p1a: Chompy|Garchomp, M|100/100\r",
		"|turn|4",
	), Options{})

	if len(res.KillLog) != 0 {
		t.Fatalf("killLog=%d want=0", len(res.KillLog))
	}
	if res.Format != "[Gen 9] OU" {
		t.Fatalf("format=%q", res.Format)
	}
	if !reflect.DeepEqual(res.Players["p1"].Team, []string{"Garchomp", "Landorus-Therian"}) {
		t.Fatalf("team=%v", res.Players["p1"].Team)
	}
}

func TestParseLog_EmptyInput(t *testing.T) {
	res := ParseLog("", Options{})
	if res.Format != "" || res.Winner != "" {
		t.Fatalf("format=%q winner=%q", res.Format, res.Winner)
	}
	if len(res.Players) != 0 || len(res.KillLog) != 0 {
		t.Fatalf("players=%d killLog=%d", len(res.Players), len(res.KillLog))
	}
}

func TestParseLog_SeedFormatOverriddenByTier(t *testing.T) {
	res := ParseLog("|player|p1|Alice|", Options{Format: "gen9ou"})
	if res.Format != "gen9ou" {
		t.Fatalf("format=%q want=gen9ou", res.Format)
	}
	res = ParseLog("|tier|[Gen 9] OU", Options{Format: "gen9ou"})
	if res.Format != "[Gen 9] OU" {
		t.Fatalf("format=%q want=[Gen 9] OU", res.Format)
	}
}

func TestParseLog_UntilTurnStopsFolding(t *testing.T) {
	text := withPreview(
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|turn|1",
		"|-damage|p2a: Pex|0 fnt",
		"|faint|p2a: Pex",
		"|switch|p2a: Tran|Heatran, M|100/100",
		"|turn|2",
		"|-damage|p2a: Tran|0 fnt",
		"|faint|p2a: Tran",
		"|win|Alice",
	)

	res := ParseLog(text, Options{UntilTurn: 1})
	if len(res.KillLog) != 1 {
		t.Fatalf("killLog=%d want=1", len(res.KillLog))
	}
	if res.Winner != "" {
		t.Fatalf("winner=%q want empty", res.Winner)
	}

	full := ParseLog(text, Options{})
	if len(full.KillLog) != 2 || full.Winner != "Alice" {
		t.Fatalf("killLog=%d winner=%q", len(full.KillLog), full.Winner)
	}
}

func TestParseLog_RosterFromSwitchesWithoutPreview(t *testing.T) {
	text := logOf(
		"|player|p1|Alice|",
		"|player|p2|Bob|",
		"|switch|p1a: Chompy|Garchomp, M|100/100",
		"|switch|p2a: Pex|Toxapex, F|100/100",
		"|-damage|p2a: Pex|0 fnt",
		"|faint|p2a: Pex",
		"|switch|p2a: Tran|Heatran, M|100/100",
		"|switch|p1a: Chompy|Garchomp, M|100/100",
	)

	plain := ParseLog(text, Options{})
	if len(plain.Players["p1"].Team) != 0 {
		t.Fatalf("team=%v want empty", plain.Players["p1"].Team)
	}
	if plain.KillLog[0].KillerMon != "" {
		t.Fatalf("killer=%q want empty without roster", plain.KillLog[0].KillerMon)
	}
	assertKillSums(t, plain)

	res := ParseLog(text, Options{RosterFromSwitches: true})
	if !reflect.DeepEqual(res.Players["p1"].Team, []string{"Garchomp"}) {
		t.Fatalf("p1 team=%v", res.Players["p1"].Team)
	}
	if !reflect.DeepEqual(res.Players["p2"].Team, []string{"Toxapex", "Heatran"}) {
		t.Fatalf("p2 team=%v", res.Players["p2"].Team)
	}
	if res.Players["p1"].Mons["Garchomp"].Kills != 1 || !res.Players["p2"].Mons["Toxapex"].Died {
		t.Fatalf("stats not recorded")
	}
}

func TestParseLog_FullTestdata(t *testing.T) {
	p := filepath.Join("testdata", "gen9ou-2100000001.log")
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	res := ParseLog(string(b), Options{})

	if res.Format != "[Gen 9] National Dex" {
		t.Fatalf("format=%q", res.Format)
	}
	if res.Winner != "Alice" {
		t.Fatalf("winner=%q", res.Winner)
	}
	if res.Players["p1"].Name != "Alice" || res.Players["p2"].Name != "Bob" {
		t.Fatalf("names=%q/%q", res.Players["p1"].Name, res.Players["p2"].Name)
	}
	if got, want := res.Players["p1"].Team, []string{"Garchomp", "Landorus-Therian", "Charizard"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("p1 team=%v want=%v", got, want)
	}
	if got, want := res.Players["p2"].Team, []string{"Greninja", "Toxapex", "Tyranitar"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("p2 team=%v want=%v", got, want)
	}

	wantLog := []model.KillEvent{
		{Turn: 5, KillerMon: "Landorus-Therian", KillerTeam: "p1", VictimMon: "Toxapex", VictimTeam: "p2"},
		{Turn: 5, KillerMon: "Garchomp", KillerTeam: "p1", VictimMon: "Greninja", VictimTeam: "p2", KillSource: "rocks"},
		{Turn: 7, KillerMon: "Tyranitar", KillerTeam: "p2", VictimMon: "Charizard", VictimTeam: "p1"},
		{Turn: 8, VictimMon: "Landorus-Therian", VictimTeam: "p1", KillSource: "poison"},
		{Turn: 9, KillerMon: "Garchomp", KillerTeam: "p1", VictimMon: "Tyranitar", VictimTeam: "p2"},
	}
	if !reflect.DeepEqual(res.KillLog, wantLog) {
		t.Fatalf("killLog=%+v\nwant=%+v", res.KillLog, wantLog)
	}

	wantMons := map[string]map[string]model.MonStats{
		"p1": {
			"Garchomp":         {Kills: 2},
			"Landorus-Therian": {Kills: 1, Died: true},
			"Charizard":        {Died: true},
		},
		"p2": {
			"Greninja":  {Died: true, HazardKill: true},
			"Toxapex":   {Died: true},
			"Tyranitar": {Kills: 1, Died: true},
		},
	}
	for side, mons := range wantMons {
		for species, want := range mons {
			got := res.Players[side].Mons[species]
			if got == nil || *got != want {
				t.Fatalf("%s %s=%+v want=%+v", side, species, got, want)
			}
		}
	}

	faints := strings.Count(string(b), "|faint|")
	if len(res.KillLog) != faints {
		t.Fatalf("killLog=%d faints=%d", len(res.KillLog), faints)
	}
	for i := 1; i < len(res.KillLog); i++ {
		if res.KillLog[i].Turn < res.KillLog[i-1].Turn {
			t.Fatalf("killLog not ordered by turn at %d", i)
		}
	}
	assertKillSums(t, res)
	for side, p := range res.Players {
		for species, st := range p.Mons {
			if st.HazardKill && !st.Died {
				t.Fatalf("%s %s hazardKill without died", side, species)
			}
		}
	}
}

func TestParseLog_PureFunctionOfInput(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("testdata", "gen9ou-2100000001.log"))
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	a := ParseLog(string(b), Options{})
	c := ParseLog(string(b), Options{})
	if !reflect.DeepEqual(a, c) {
		t.Fatalf("results differ between runs")
	}
}

func TestParseReader_MatchesParseLog(t *testing.T) {
	p := filepath.Join("testdata", "gen9ou-2100000001.log")
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := ParseReader(f, Options{})
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if want := ParseLog(string(b), Options{}); !reflect.DeepEqual(got, want) {
		t.Fatalf("reader result differs from text result")
	}
}

func TestEngine_SnapshotIsIndependent(t *testing.T) {
	e := New(Options{})
	for _, line := range twoPlayerPreview {
		e.ProcessLine(line)
	}
	e.ProcessLine("|switch|p1a: Chompy|Garchomp, M|100/100")
	e.ProcessLine("|switch|p2a: Pex|Toxapex, F|100/100")
	snap := e.Snapshot()

	e.ProcessLine("|turn|1")
	e.ProcessLine("|faint|p2a: Pex")

	if len(snap.KillLog) != 0 {
		t.Fatalf("snapshot killLog=%d want=0", len(snap.KillLog))
	}
	if snap.Players["p1"].Mons["Garchomp"].Kills != 0 {
		t.Fatalf("snapshot mutated")
	}
	if e.Result().Players["p1"].Mons["Garchomp"].Kills != 1 {
		t.Fatalf("engine result not updated")
	}
	if e.Turn() != 1 {
		t.Fatalf("turn=%d want=1", e.Turn())
	}
}

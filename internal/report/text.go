package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ZehenForever/psreplay-stats/internal/model"
)

const unknownKiller = "Unknown"

func Status(st *model.MonStats) string {
	if st != nil && st.Died {
		return "Fainted"
	}
	return "Alive"
}

func KillerLabel(k model.KillEvent) string {
	if k.KillerMon == "" {
		return unknownKiller
	}
	return k.KillerMon
}

// WriteText writes the match header, one roster table per side and the kill
// timeline.
func WriteText(w io.Writer, res *model.MatchResult) error {
	if res == nil {
		return nil
	}
	if res.Format != "" {
		if _, err := fmt.Fprintf(w, "Format: %s\n", res.Format); err != nil {
			return err
		}
	}
	if res.Winner != "" {
		if _, err := fmt.Fprintf(w, "Winner: %s\n", res.Winner); err != nil {
			return err
		}
	}

	for _, side := range res.Sides() {
		p := res.Players[side]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s (%s)\n", res.PlayerName(side), side)
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "Pokemon\tKills\tStatus")
		for _, species := range p.Team {
			st := p.Mons[species]
			kills := 0
			if st != nil {
				kills = st.Kills
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", species, kills, Status(st))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(res.KillLog) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Kill Timeline")
	return WriteKillLog(w, res)
}

func WriteKillLog(w io.Writer, res *model.MatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Turn\tKiller\tKiller Team\tVictim\tVictim Team\tSource")
	for _, k := range res.KillLog {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			k.Turn,
			KillerLabel(k),
			res.PlayerName(k.KillerTeam),
			k.VictimMon,
			res.PlayerName(k.VictimTeam),
			k.KillSource,
		)
	}
	return tw.Flush()
}

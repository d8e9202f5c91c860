package report

import (
	"strconv"
	"strings"

	"github.com/ZehenForever/psreplay-stats/internal/model"
)

// ExportTSV renders one player's roster as spreadsheet rows:
// species, kills, fainted (0/1), in team-preview order.
func ExportTSV(p *model.PlayerState) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for _, species := range p.Team {
		st := p.Mons[species]
		kills, died := 0, "0"
		if st != nil {
			kills = st.Kills
			if st.Died {
				died = "1"
			}
		}
		b.WriteString(species)
		b.WriteByte('\t')
		b.WriteString(strconv.Itoa(kills))
		b.WriteByte('\t')
		b.WriteString(died)
		b.WriteByte('\n')
	}
	return b.String()
}

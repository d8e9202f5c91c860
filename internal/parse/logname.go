package parse

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// gen9ou-2034567890, smogtours-gen9ou-812345, gen9ou-2034567890-abc123pw
var reReplayID = regexp.MustCompile(`^(?P<format>[a-z0-9]+(?:-[a-z0-9]+)*?)-(?P<num>\d+)(?:-[a-z0-9]+pw)?$`)

// ReplayIDFromPath extracts the replay id and its format prefix from a replay
// URL or a local file name such as "gen9ou-2034567890.json".
func ReplayIDFromPath(p string) (id string, format string, ok bool) {
	if u, err := url.Parse(p); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(strings.TrimRight(p, "/"))
	switch ext := path.Ext(base); ext {
	case ".json", ".log", ".txt", ".html":
		base = strings.TrimSuffix(base, ext)
	}
	m := reReplayID.FindStringSubmatch(base)
	if m == nil {
		return "", "", false
	}
	return base, m[reReplayID.SubexpIndex("format")], true
}

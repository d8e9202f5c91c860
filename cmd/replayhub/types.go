package main

import "github.com/ZehenForever/psreplay-stats/internal/model"

// ParseRequest is the JSON form of POST /v1/parse. A text/plain body is
// treated as {"log": body}.
type ParseRequest struct {
	ID                 string `json:"id"`
	Format             string `json:"format"`
	Log                string `json:"log"`
	UntilTurn          int    `json:"untilTurn"`
	RosterFromSwitches bool   `json:"rosterFromSwitches"`
	Save               bool   `json:"save"`
}

type ParseResponse struct {
	ReplayID string             `json:"replayId,omitempty"`
	Saved    bool               `json:"saved"`
	Result   *model.MatchResult `json:"result"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MatchSummary struct {
	ReplayID string `json:"replayId"`
	Format   string `json:"format"`
	Winner   string `json:"winner"`
	P1       string `json:"p1"`
	P2       string `json:"p2"`
	Faints   int    `json:"faints"`
	AtUnixMs int64  `json:"atUnixMs"`
}

// FeedMatchMessage is pushed to every feed subscriber when a match is parsed.
type FeedMatchMessage struct {
	Type    string             `json:"type"` // "match"
	Summary MatchSummary       `json:"summary"`
	Result  *model.MatchResult `json:"result"`
}

// FeedHelloMessage is the first message on a new feed connection.
type FeedHelloMessage struct {
	Type     string         `json:"type"` // "hello"
	ClientID string         `json:"clientId"`
	Recent   []MatchSummary `json:"recent"`
}

func summarize(replayID string, res *model.MatchResult, atUnixMs int64) MatchSummary {
	return MatchSummary{
		ReplayID: replayID,
		Format:   res.Format,
		Winner:   res.Winner,
		P1:       res.PlayerName(model.SideP1),
		P2:       res.PlayerName(model.SideP2),
		Faints:   len(res.KillLog),
		AtUnixMs: atUnixMs,
	}
}

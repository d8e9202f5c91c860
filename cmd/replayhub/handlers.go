package main

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZehenForever/psreplay-stats/internal/engine"
	"github.com/ZehenForever/psreplay-stats/internal/model"
	"github.com/ZehenForever/psreplay-stats/internal/parse"
	"github.com/ZehenForever/psreplay-stats/internal/report"
	"github.com/ZehenForever/psreplay-stats/internal/source"
	"github.com/ZehenForever/psreplay-stats/internal/store"
)

const maxLogBytes = 8 << 20

// Fetcher retrieves a replay by its page URL.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*source.Replay, error)
}

type Server struct {
	fetcher  Fetcher
	store    *store.Store // nil disables history
	feed     *Feed
	log      log.FieldLogger
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(fetcher Fetcher, st *store.Store, logger log.FieldLogger) *Server {
	return &Server{
		fetcher: fetcher,
		store:   st,
		feed:    NewFeed(),
		log:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/parse", s.postParse)
	mux.HandleFunc("/v1/replays", s.getReplay)
	mux.HandleFunc("/v1/matches", s.listMatches)
	mux.HandleFunc("/v1/matches/", s.handleMatches)
	mux.HandleFunc("/v1/feed/ws", s.getFeedWS)
	return mux
}

func (s *Server) postParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxLogBytes)
	var req ParseRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	} else {
		b, err := io.ReadAll(body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "log too large")
			return
		}
		req.Log = string(b)
		q := r.URL.Query()
		req.ID = q.Get("id")
		req.Save = q.Get("save") == "1" || q.Get("save") == "true"
	}
	if strings.TrimSpace(req.Log) == "" {
		writeError(w, http.StatusBadRequest, "log is required")
		return
	}

	res := engine.ParseLog(req.Log, engine.Options{
		Format:             req.Format,
		UntilTurn:          req.UntilTurn,
		RosterFromSwitches: req.RosterFromSwitches,
	})
	s.respondParsed(w, r, req.ID, "upload", req.Save, res)
}

func (s *Server) getReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	pageURL := strings.TrimSpace(q.Get("url"))
	if pageURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	rep, err := s.fetcher.Fetch(r.Context(), pageURL)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid replay url")
		case errors.Is(err, source.ErrUnavailable):
			s.log.WithError(err).WithField("url", pageURL).Info("replay unavailable")
			writeError(w, http.StatusBadGateway, source.ErrUnavailable.Error())
		default:
			s.log.WithError(err).WithField("url", pageURL).Warn("replay unreadable")
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	id := rep.ID
	if id == "" {
		id, _, _ = parse.ReplayIDFromPath(pageURL)
	}
	untilTurn, _ := strconv.Atoi(q.Get("untilTurn"))
	res := engine.ParseLog(rep.Log, engine.Options{Format: rep.Format, UntilTurn: untilTurn})
	s.respondParsed(w, r, id, pageURL, q.Get("save") == "1" || q.Get("save") == "true", res)
}

// respondParsed optionally stores res, publishes it to the feed and writes it.
func (s *Server) respondParsed(w http.ResponseWriter, r *http.Request, replayID, origin string, save bool, res *model.MatchResult) {
	saved := false
	if save {
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "history is disabled")
			return
		}
		if replayID == "" {
			writeError(w, http.StatusBadRequest, "replay id is required to save")
			return
		}
		if _, err := s.store.SaveMatch(r.Context(), replayID, origin, res); err != nil {
			s.log.WithError(err).WithField("replay", replayID).Error("save match")
			writeError(w, http.StatusInternalServerError, "could not save match")
			return
		}
		saved = true
	}

	summary := summarize(replayID, res, s.now().UnixMilli())
	s.log.WithFields(log.Fields{
		"replay": replayID,
		"origin": origin,
		"faints": summary.Faints,
		"saved":  saved,
	}).Info("match parsed")
	s.feed.Publish(FeedMatchMessage{Type: "match", Summary: summary, Result: res})

	writeJSON(w, http.StatusOK, ParseResponse{ReplayID: replayID, Saved: saved, Result: res})
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	limit := 50
	if q := strings.TrimSpace(r.URL.Query().Get("limit")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := s.store.ListMatches(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("list matches")
		writeError(w, http.StatusInternalServerError, "could not list matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": recs})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	// /v1/matches/{id}
	// /v1/matches/{id}/export/{side}
	p := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/matches/"), "/")
	if p == "" {
		s.listMatches(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}

	parts := strings.Split(p, "/")
	if len(parts) != 1 && (len(parts) != 3 || parts[1] != "export") {
		http.NotFound(w, r)
		return
	}

	rec, err := s.store.GetMatch(r.Context(), parts[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.log.WithError(err).Error("get match")
		writeError(w, http.StatusInternalServerError, "could not load match")
		return
	}

	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	pl := rec.Result.Players[parts[2]]
	if pl == nil {
		writeError(w, http.StatusNotFound, "no such side")
		return
	}
	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, report.ExportTSV(pl))
}

func (s *Server) getFeedWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	client := newWSClient(uuid.NewString(), c)
	logger := s.log.WithFields(log.Fields{"client": client.id, "remote": r.RemoteAddr})
	logger.Debug("ws connect")

	// hello goes out before the client can see any broadcast
	_ = client.enqueueJSON(FeedHelloMessage{Type: "hello", ClientID: client.id, Recent: s.feed.Recent()})
	s.feed.add(client)

	_ = c.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go s.writePump(client, logger)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			logger.WithError(err).Debug("ws read closed")
			break
		}
	}

	s.feed.remove(client)
	client.close()
	logger.Debug("ws disconnect")
}

func (s *Server) writePump(c *wsClient, logger log.FieldLogger) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	defer func() {
		s.feed.remove(c)
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.WithError(err).Debug("ws write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WithError(err).Debug("ws ping failed")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

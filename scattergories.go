// Scatterbox Scattergories game
//
// 2-6 players share one session identified by a 6-letter code. The host
// configures up to ten categories, then starts rounds against a common
// letter that never repeats within a session. Players privately fill in
// one answer per category; when the host ends the round, answers are
// scored against one another (10 for a sole contributor, 20 for a
// unique answer among several contributors, 5 for a shared one) and the
// round is appended to the session history. Standings accumulate over
// all closed rounds plus the round in progress.
//
// Transport:
// - POST /path/new          creates a session, body {"name": ...}
// - GET  /path/:code        embedded HTML client
// - GET  /path/:code/ws     per-session websocket, joins on connect
// - GET  /path/:code/qr     PNG QR code to share the session URL
//
// Every connected socket holds its own store subscription; each pushed
// snapshot carries the session document, live provisional scores, and
// cumulative standings, recomputed from the same pure functions the
// host's round close uses. A dropped player is removed after a grace
// period unless the same name reconnects first.

package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"scatterbox/game"
)

// ClientMessage is a participant command arriving over the websocket.
type ClientMessage struct {
	Type       string            `json:"type"` // "leave", "kick", "categories", "start_round", "pause", "resume", "submit", "end_round", "lobby"
	Target     string            `json:"target,omitempty"`     // kick
	Categories []string          `json:"categories,omitempty"` // categories
	Letter     string            `json:"letter,omitempty"`     // start_round, optional
	Answers    map[string]string `json:"answers,omitempty"`    // submit
}

// SessionMessage is pushed on every committed session change.
type SessionMessage struct {
	Type      string             `json:"type"` // "session"
	You       string             `json:"you"`
	Session   *game.Session      `json:"session"`
	Live      game.ScoredAnswers `json:"live,omitempty"`
	Standings []game.Standing    `json:"standings"`
}

// ErrorMessage reports a rejected command to the issuing client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// GoneMessage tells clients their session document was deleted.
type GoneMessage struct {
	Type string `json:"type"` // "gone"
}

type wsClient struct {
	conn *websocket.Conn
	send chan any
	once sync.Once
}

func (c *wsClient) push(msg any) {
	select {
	case c.send <- msg:
	default:
		c.close()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// gameServer glues the websocket boundary to the game state machine.
type gameServer struct {
	cfg *Config
	svc *game.Service

	mu      sync.Mutex
	present map[string]map[game.PlayerName]int // open sockets per session and name
}

func newGameServer(cfg *Config, svc *game.Service) *gameServer {
	return &gameServer{
		cfg:     cfg,
		svc:     svc,
		present: make(map[string]map[game.PlayerName]int),
	}
}

func (gs *gameServer) connected(code string, name game.PlayerName) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.present[code] == nil {
		gs.present[code] = make(map[game.PlayerName]int)
	}
	gs.present[code][name]++
}

func (gs *gameServer) disconnected(code string, name game.PlayerName) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if conns := gs.present[code]; conns != nil {
		if conns[name]--; conns[name] <= 0 {
			delete(conns, name)
		}
		if len(conns) == 0 {
			delete(gs.present, code)
		}
	}
}

func (gs *gameServer) isPresent(code string, name game.PlayerName) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.present[code][name] > 0
}

// scheduleRemoval waits out the grace period, and if the name has not
// reconnected to the session, removes that player.
func (gs *gameServer) scheduleRemoval(ctx context.Context, code string, name game.PlayerName) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(gs.cfg.playerTimeout):
	}

	if gs.isPresent(code, name) {
		return
	}

	err := gs.svc.Leave(ctx, code, string(name))
	switch game.KindOf(err) {
	case "", game.KindNotFound, game.KindNotAMember:
	default:
		logf(gs.cfg, "GAMES: Removing %q from %s failed: %v", name, code, err)
		return
	}
	if err == nil {
		logf(gs.cfg, "GAMES: Removed disconnected player %q from %s", name, code)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const deviceCookieName = "scatterbox_id"

func getOrSetDeviceID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(deviceCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func kindStatus(kind game.Kind) int {
	switch kind {
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindNotAuthorized:
		return http.StatusForbidden
	case game.KindNameTaken, game.KindSessionFull, game.KindLetterUsed, game.KindInvalidState:
		return http.StatusConflict
	case game.KindStoreUnavailable, game.KindCodeExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(kindStatus(game.KindOf(err)))
	_ = json.NewEncoder(w).Encode(errorMessage(err))
}

func errorMessage(err error) ErrorMessage {
	field := ""
	var domain *game.Error
	if errors.As(err, &domain) {
		field = domain.Field
	}
	return ErrorMessage{
		Type:    "error",
		Kind:    string(game.KindOf(err)),
		Field:   field,
		Message: game.Message(err),
	}
}

// serveCreateSession handles POST /path/new.
func (gs *gameServer) serveCreateSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		deviceID := getOrSetDeviceID(w, r)

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		session, err := gs.svc.Create(r.Context(), body.Name)
		if err != nil {
			writeError(w, err)
			return
		}

		logf(gs.cfg, "GAMES: %q (device %s) created session %s", body.Name, deviceID, session.Code)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"code": session.Code})
	}
}

// serveGameSocket handles GET /path/:code/ws?name=NAME. Connecting
// joins the session; closing the socket starts the removal grace
// period for that name.
func (gs *gameServer) serveGameSocket(ctx context.Context) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		rawName := r.URL.Query().Get("name")

		name, err := game.ParsePlayerName(rawName)
		if err != nil {
			http.Error(w, "missing or invalid name", http.StatusBadRequest)
			return
		}

		deviceID := getOrSetDeviceID(w, r)

		// Joining an existing membership slot is a reconnect, as
		// long as no live socket holds that name.
		switch err := gs.svc.Join(ctx, code, string(name)); game.KindOf(err) {
		case "":
			logf(gs.cfg, "GAMES: %q (device %s) joined %s", name, deviceID, code)
		case game.KindNameTaken:
			if gs.isPresent(code, name) {
				writeError(w, err)
				return
			}
			logf(gs.cfg, "GAMES: %q (device %s) reconnected to %s", name, deviceID, code)
		default:
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &wsClient{
			conn: conn,
			send: make(chan any, 16),
		}
		go client.writePump()

		gs.connected(code, name)

		unwatch, err := gs.svc.Watch(ctx, code, func(snapshot *game.Session) {
			if snapshot == nil {
				client.push(GoneMessage{Type: "gone"})
				return
			}
			client.push(snapshotMessage(name, snapshot))
		})
		if err != nil {
			gs.disconnected(code, name)
			client.close()
			_ = conn.Close()
			return
		}

		gs.readPump(ctx, client, code, name)

		unwatch()
		gs.disconnected(code, name)
		client.close()
		_ = conn.Close()

		if !gs.isPresent(code, name) {
			go gs.scheduleRemoval(ctx, code, name)
		}
	}
}

// snapshotMessage folds a session snapshot into the full client view:
// the document, live provisional scores for the in-progress round, and
// cumulative standings.
func snapshotMessage(you game.PlayerName, session *game.Session) SessionMessage {
	var live game.ScoredAnswers
	if len(session.Answers) > 0 {
		live = game.Score(session.Answers, session.Categories)
	}
	return SessionMessage{
		Type:      "session",
		You:       string(you),
		Session:   session,
		Live:      live,
		Standings: game.Aggregate(session.RoundHistory, live, session.PlayerNames()),
	}
}

func (gs *gameServer) readPump(ctx context.Context, client *wsClient, code string, name game.PlayerName) {
	for {
		var msg ClientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}

		var err error
		switch msg.Type {
		case "leave":
			err = gs.svc.Leave(ctx, code, string(name))
			if err == nil {
				logf(gs.cfg, "GAMES: %q left %s", name, code)
				return
			}
		case "kick":
			err = gs.svc.Kick(ctx, code, msg.Target, string(name))
		case "categories":
			err = gs.svc.UpdateCategories(ctx, code, msg.Categories, string(name))
		case "start_round":
			err = gs.svc.StartRound(ctx, code, string(name), msg.Letter)
		case "pause":
			err = gs.svc.PauseRound(ctx, code, string(name))
		case "resume":
			err = gs.svc.ResumeRound(ctx, code, string(name))
		case "submit":
			err = gs.svc.SubmitAnswers(ctx, code, string(name), msg.Answers)
		case "end_round":
			err = gs.svc.EndRound(ctx, code, string(name))
		case "lobby":
			err = gs.svc.ReturnToLobby(ctx, code, string(name))
		default:
			// ignore unknown types
			continue
		}

		if err != nil {
			client.push(errorMessage(err))
		}
	}
}

// sweepLoop periodically deletes idle sessions.
func (gs *gameServer) sweepLoop(ctx context.Context) {
	if gs.cfg.sessionTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(gs.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := gs.svc.Sweep(ctx, time.Now().Add(-gs.cfg.sessionTimeout))
			if err != nil {
				logf(gs.cfg, "GAMES: Sweep failed: %v", err)
				continue
			}
			for _, code := range swept {
				logf(gs.cfg, "GAMES: Swept idle session %s", code)
			}
		}
	}
}

// qrHandler generates a PNG QR code for the current session URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing session code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the session URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

//go:embed assets/scattergories/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetDeviceID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

// registerScattergories sets up routes so that:
//   - $path               → HTML client (create/join screen)
//   - $path/new           → create a session (POST)
//   - $path/:code         → HTML client for one session
//   - $path/:code/ws      → per-session websocket
//   - $path/:code/qr      → PNG QR code for that session URL
func registerScattergories(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, store game.Store) {
	svc := game.NewService(store)
	gs := newGameServer(cfg, svc)

	go gs.sweepLoop(ctx)

	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	mux.POST(cfg.prefix+path+"/new", gs.serveCreateSession())

	mux.GET(cfg.prefix+path+"/:code", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:code/ws", gs.serveGameSocket(ctx))

	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/session"
)

type handler struct {
	cfg RouterConfig
}

type loginPlayerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginShardRequest struct {
	Level string `json:"level"`
	Key   string `json:"key"`
}

type loginResponse struct {
	Authorized bool   `json:"authorized"`
	Session    string `json:"session,omitempty"`
	Secret     string `json:"secret,omitempty"`
}

type verifyPlayerRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type publishMetadataRequest struct {
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}

type metadataResponse struct {
	Unchanged bool            `json:"unchanged"`
	Hash      string          `json:"hash,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type addressResponse struct {
	Level   string `json:"level"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type createCharacterRequest struct {
	Name string `json:"name"`
}

// characterView is the shard view of a character.
type characterView struct {
	Name      string             `json:"name"`
	Player    string             `json:"player"`
	Level     string             `json:"level"`
	Position  character.Position `json:"position"`
	Stats     json.RawMessage    `json:"stats"`
	Inventory json.RawMessage    `json:"inventory"`
	Equipment json.RawMessage    `json:"equipment"`
}

type updateCharacterRequest struct {
	Level     string             `json:"level"`
	Position  character.Position `json:"position"`
	Stats     json.RawMessage    `json:"stats"`
	Inventory json.RawMessage    `json:"inventory"`
	Equipment json.RawMessage    `json:"equipment"`
}

func (h *handler) setSessionCookie(w http.ResponseWriter, s session.Session) {
	c := &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if !s.ExpiresAt.IsZero() {
		c.Expires = s.ExpiresAt
	}
	http.SetCookie(w, c)
}

// loginPlayer handles POST /api/players/login.
func (h *handler) loginPlayer(w http.ResponseWriter, r *http.Request) {
	var req loginPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.cfg.Credentials.LoginPlayer(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Authorized {
		writeData(w, loginResponse{})
		return
	}
	h.setSessionCookie(w, res.Session)
	writeData(w, loginResponse{Authorized: true, Session: res.Session.ID, Secret: res.Secret})
}

// loginShard handles POST /api/shards/login.
func (h *handler) loginShard(w http.ResponseWriter, r *http.Request) {
	var req loginShardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.cfg.Credentials.LoginShard(req.Level, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Authorized {
		writeData(w, loginResponse{})
		return
	}
	h.setSessionCookie(w, res.Session)
	writeData(w, loginResponse{Authorized: true, Session: res.Session.ID})
}

// logout handles POST /api/logout.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	h.cfg.Sessions.Revoke(s.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
	})
	h.cfg.Logger.Info("logged out",
		zap.String("kind", s.Kind.String()),
		zap.String("name", s.Name),
	)
	writeData(w, nil)
}

// verifyPlayer handles POST /api/shards/verify-player.
func (h *handler) verifyPlayer(w http.ResponseWriter, r *http.Request) {
	var req verifyPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, loginResponse{Authorized: h.cfg.Credentials.VerifyPlayerSecret(req.Username, req.Secret)})
}

// ping handles GET /api/shards/ping.
func (h *handler) ping(w http.ResponseWriter, _ *http.Request) {
	writeData(w, nil)
}

// publishMetadata handles PUT /api/levels/{level}/metadata.
func (h *handler) publishMetadata(w http.ResponseWriter, r *http.Request) {
	level := mux.Vars(r)["level"]
	s := sessionFrom(r.Context())
	if s.Name != level {
		writeError(w, fmt.Errorf("shard %q publishing %q: %w", s.Name, level, gateerr.ErrUnauthorized))
		return
	}

	var req publishMetadataRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, gateerr.Protocolf("payload is required"))
		return
	}
	if err := h.cfg.Levels.Publish(r.Context(), level, req.Hash, req.Payload); err != nil {
		h.logStoreError("publishing level metadata", err)
		writeError(w, err)
		return
	}
	writeData(w, nil)
}

// fetchMetadata handles GET /api/levels/{level}/metadata.
func (h *handler) fetchMetadata(w http.ResponseWriter, r *http.Request) {
	level := mux.Vars(r)["level"]
	res, err := h.cfg.Levels.Fetch(r.Context(), level, r.URL.Query().Get("hash"))
	if err != nil {
		h.logStoreError("fetching level metadata", err)
		writeError(w, err)
		return
	}
	if res.Unchanged {
		writeData(w, metadataResponse{Unchanged: true})
		return
	}
	writeData(w, metadataResponse{Hash: res.Hash, Payload: json.RawMessage(res.Payload)})
}

// levelAddress handles GET /api/levels/{level}/address.
func (h *handler) levelAddress(w http.ResponseWriter, r *http.Request) {
	dest, err := h.cfg.Coordinates.Coordinates(mux.Vars(r)["level"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, addressResponse{Level: dest.Level, Address: dest.Address, Port: dest.Port})
}

// getCharacter handles GET /api/characters/{name}.
func (h *handler) getCharacter(w http.ResponseWriter, r *http.Request) {
	c, err := h.cfg.Characters.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, characterView{
		Name:      c.Name,
		Player:    c.Owner,
		Level:     c.Level,
		Position:  c.Position,
		Stats:     character.Document(c.Stats),
		Inventory: character.Document(c.Inventory),
		Equipment: character.Document(c.Equipment),
	})
}

// updateCharacter handles PUT /api/characters/{name}.
func (h *handler) updateCharacter(w http.ResponseWriter, r *http.Request) {
	var req updateCharacterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Level) == "" {
		writeError(w, gateerr.Protocolf("level is required"))
		return
	}
	err := h.cfg.Characters.Update(r.Context(), &character.Character{
		Name:      mux.Vars(r)["name"],
		Level:     req.Level,
		Position:  req.Position,
		Stats:     req.Stats,
		Inventory: req.Inventory,
		Equipment: req.Equipment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, nil)
}

// listCharacters handles GET /api/me/characters.
func (h *handler) listCharacters(w http.ResponseWriter, r *http.Request) {
	list, err := h.cfg.Characters.List(r.Context(), sessionFrom(r.Context()).Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, list)
}

// createCharacter handles POST /api/me/characters.
func (h *handler) createCharacter(w http.ResponseWriter, r *http.Request) {
	var req createCharacterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.cfg.Characters.Create(r.Context(), sessionFrom(r.Context()).Name, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: summary})
}

// health handles GET /api/health.
func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	report := h.cfg.Health.Report()
	status := http.StatusOK
	if !report.Serving {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, Envelope{Error: !report.Serving, Data: report})
}

func (h *handler) logStoreError(op string, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.cfg.Logger.Error(op, zap.Error(err))
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
)

// ShopkeeperView is the JSON form of a registered shopkeeper.
type ShopkeeperView struct {
	ID       int    `json:"id"`
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Object   string `json:"object"`
	ObjectID string `json:"object_id,omitempty"`
	World    string `json:"world"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Active   bool   `json:"active"`
	Dirty    bool   `json:"dirty"`
	Owner    string `json:"owner,omitempty"`
}

func viewOf(sk *shopkeeper.Shopkeeper) ShopkeeperView {
	v := ShopkeeperView{
		ID:       sk.ID(),
		UniqueID: sk.UniqueID().String(),
		Name:     sk.Name(),
		Type:     sk.Type().ID,
		Object:   sk.ShopObject().Type().ID,
		ObjectID: sk.ObjectID(),
		World:    sk.WorldName(),
		X:        sk.X(),
		Y:        sk.Y(),
		Z:        sk.Z(),
		Active:   sk.IsActive(),
		Dirty:    sk.IsDirty(),
	}
	if owner, ok := shopkeeper.OwnerOf(sk); ok {
		v.Owner = owner.String()
	}
	return v
}

type CreateRequest struct {
	Creator string   `json:"creator"`
	Perms   []string `json:"perms"`
	// Operator grants every permission.
	Operator bool   `json:"operator"`
	Type     string `json:"type"`
	Object   string `json:"object"`
	World    string `json:"world"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Face     string `json:"face"`
	Name     string `json:"name"`
}

type CreateResponse struct {
	Outcome    string          `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Messages   []string        `json:"messages"`
	Shopkeeper *ShopkeeperView `json:"shopkeeper,omitempty"`
}

type ChunkRequest struct {
	CX     int  `json:"cx"`
	CZ     int  `json:"cz"`
	Unload bool `json:"unload"`
}

// Routes mounts the admin endpoints on mux. They only accept loopback clients.
func (s *Station) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/shopkeepers", s.local(s.handleList))
	mux.HandleFunc("GET /admin/v1/shopkeepers/{id}", s.local(s.handleGet))
	mux.HandleFunc("POST /admin/v1/shopkeepers", s.local(s.handleCreate))
	mux.HandleFunc("DELETE /admin/v1/shopkeepers/{id}", s.local(s.handleDelete))
	mux.HandleFunc("POST /admin/v1/worlds/{world}/chunks", s.local(s.handleChunk))
	mux.HandleFunc("POST /admin/v1/worlds/{world}/save", s.local(s.handleWorldSave))
	mux.HandleFunc("POST /admin/v1/save", s.local(s.handleSave))
	mux.HandleFunc("GET /v1/feed", s.Feed.Handler())
}

func (s *Station) local(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

// call runs fn on the loop goroutine. On error fn may still run later, so
// callers must not read what fn writes unless call returned nil.
func (s *Station) call(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	return s.Loop.Call(ctx, fn)
}

func (s *Station) handleList(rw http.ResponseWriter, r *http.Request) {
	worldName := r.URL.Query().Get("world")
	var out []ShopkeeperView
	err := s.call(r, func() {
		out = make([]ShopkeeperView, 0, s.Registry.Count())
		for _, sk := range s.Registry.All() {
			if worldName != "" && sk.WorldName() != worldName {
				continue
			}
			out = append(out, viewOf(sk))
		}
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	s.reply(rw, nil, http.StatusOK, out)
}

func (s *Station) handleGet(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(rw, "bad id", http.StatusBadRequest)
		return
	}
	var (
		view ShopkeeperView
		ok   bool
	)
	err = s.call(r, func() {
		var sk *shopkeeper.Shopkeeper
		if sk, ok = s.Registry.ByID(id); ok {
			view = viewOf(sk)
		}
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	if !ok {
		http.Error(rw, "not found", http.StatusNotFound)
		return
	}
	s.reply(rw, nil, http.StatusOK, view)
}

func (s *Station) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Creator) == "" {
		http.Error(rw, "creator is required", http.StatusBadRequest)
		return
	}
	face := world.FaceUp
	if req.Face != "" {
		f, ok := world.ParseBlockFace(req.Face)
		if !ok {
			http.Error(rw, "bad face", http.StatusBadRequest)
			return
		}
		face = f
	}
	var creator *actor.Player
	if req.Operator {
		creator = actor.NewOperator(req.Creator)
	} else {
		creator = actor.NewPlayer(req.Creator, req.Perms...)
	}

	var o struct {
		resp   CreateResponse
		status int
	}
	err := s.call(r, func() {
		typ, ok := s.Types.Match(req.Type)
		if !ok {
			o.status, o.resp.Outcome = http.StatusBadRequest, "unknown_shop_type"
			return
		}
		objType, ok := s.Objects.Match(req.Object)
		if !ok {
			o.status, o.resp.Outcome = http.StatusBadRequest, "unknown_object_type"
			return
		}
		res := typ.HandleCreation(s.Env, shopkeeper.CreationData{
			Creator:      creator,
			ShopType:     typ,
			ObjectType:   objType,
			Location:     world.Location{World: req.World, X: req.X, Y: req.Y, Z: req.Z},
			TargetedFace: face,
			Name:         req.Name,
		})
		o.resp.Outcome = res.Outcome.String()
		o.resp.Reason = res.Reason
		if res.OK() {
			v := viewOf(res.Shopkeeper)
			o.resp.Shopkeeper = &v
			o.status = http.StatusCreated
		} else {
			o.status = http.StatusUnprocessableEntity
		}
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	o.resp.Messages = creator.Messages()
	s.reply(rw, nil, o.status, o.resp)
}

func (s *Station) handleDelete(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(rw, "bad id", http.StatusBadRequest)
		return
	}
	var ok bool
	err = s.call(r, func() {
		var sk *shopkeeper.Shopkeeper
		if sk, ok = s.Registry.ByID(id); ok {
			sk.Delete()
			s.Storage.Save()
		}
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	if !ok {
		http.Error(rw, "not found", http.StatusNotFound)
		return
	}
	s.reply(rw, nil, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Station) handleChunk(rw http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PathValue("world")
	var (
		ok     bool
		active int
	)
	err := s.call(r, func() {
		var w *world.World
		if w, ok = s.Worlds.World(name); !ok {
			return
		}
		k := world.ChunkKey{CX: req.CX, CZ: req.CZ}
		if req.Unload {
			w.UnloadChunk(k)
		} else {
			w.LoadChunk(k)
		}
		active = s.Registry.ActiveCount()
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	if !ok {
		http.Error(rw, "unknown world", http.StatusNotFound)
		return
	}
	s.reply(rw, nil, http.StatusOK, map[string]any{"ok": true, "active": active})
}

func (s *Station) handleWorldSave(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("world")
	var ok bool
	err := s.call(r, func() {
		var w *world.World
		if w, ok = s.Worlds.World(name); ok {
			w.Save()
		}
	})
	if err != nil {
		s.reply(rw, err, 0, nil)
		return
	}
	if !ok {
		http.Error(rw, "unknown world", http.StatusNotFound)
		return
	}
	s.reply(rw, nil, http.StatusOK, map[string]any{"ok": true})
}

func (s *Station) handleSave(rw http.ResponseWriter, r *http.Request) {
	err := s.call(r, s.Storage.Save)
	s.reply(rw, err, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Station) reply(rw http.ResponseWriter, err error, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.Log.Warn("admin request failed", zap.Error(err))
		}
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

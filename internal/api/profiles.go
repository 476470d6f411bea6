package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/groundstation/internal/db"
	"github.com/banshee-data/groundstation/internal/httputil"
	"github.com/banshee-data/groundstation/internal/monitoring"
	"github.com/banshee-data/groundstation/internal/transport"
)

// handleProfiles handles GET, POST, PUT and DELETE on /api/profiles. PUT and
// DELETE take the profile ID as ?id=N.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	var h http.HandlerFunc
	switch r.Method {
	case http.MethodGet:
		h = s.listProfiles
	case http.MethodPost:
		h = s.createProfile
	case http.MethodPut:
		h = s.updateProfile
	case http.MethodDelete:
		h = s.deleteProfile
	default:
		httputil.MethodNotAllowed(w)
		return
	}

	if s.opts.DB == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profile storage unavailable")
		return
	}
	h(w, r)
}

func profileID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, errors.New("missing profile id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid profile id %q", raw)
	}
	return id, nil
}

func writeProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrProfileNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, db.ErrProfileExists):
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := profileID(r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		p, err := s.opts.DB.GetProfile(id)
		if err != nil {
			writeProfileError(w, err)
			return
		}
		httputil.WriteJSONOK(w, p)
		return
	}

	profiles, err := s.opts.DB.ListProfiles()
	if err != nil {
		monitoring.Logf("api: list profiles: %v", err)
		httputil.InternalServerError(w, "failed to fetch profiles")
		return
	}
	httputil.WriteJSONOK(w, profiles)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var p db.Profile
	if err := httputil.DecodeJSON(r, &p); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id, err := s.opts.DB.CreateProfile(&p)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	created, err := s.opts.DB.GetProfile(id)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var p db.Profile
	if err := httputil.DecodeJSON(r, &p); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p.ID = id
	if err := s.opts.DB.UpdateProfile(&p); err != nil {
		writeProfileError(w, err)
		return
	}
	updated, err := s.opts.DB.GetProfile(id)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	httputil.WriteJSONOK(w, updated)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := profileID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.opts.DB.DeleteProfile(id); err != nil {
		writeProfileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// profileConnector builds a connector for a stored profile.
func (s *Server) profileConnector(p *db.Profile) (transport.Connector, error) {
	switch p.Kind {
	case transport.KindSerial:
		cfg, err := p.SerialConfig()
		if err != nil {
			return nil, err
		}
		return s.serialConnector(cfg)
	case transport.KindWireless:
		cfg, err := p.WirelessConfig()
		if err != nil {
			return nil, err
		}
		return s.wirelessConnector(cfg)
	case transport.KindSocket:
		cfg, err := p.SocketConfig()
		if err != nil {
			return nil, err
		}
		return s.socketConnector(cfg)
	}
	return nil, fmt.Errorf("unknown transport kind %q", p.Kind)
}

func (s *Server) connectProfile(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profile storage unavailable")
		return
	}
	id, err := profileID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p, err := s.opts.DB.GetProfile(id)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	c, err := s.profileConnector(p)
	if err != nil {
		if errors.Is(err, errNoCentral) {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	if !s.connect(w, r, c) {
		return
	}
	if err := s.opts.DB.MarkProfileUsed(id, s.opts.Clock.Now()); err != nil {
		monitoring.Logf("api: mark profile %d used: %v", id, err)
	}
}

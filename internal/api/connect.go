package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/groundstation/internal/httputil"
	"github.com/banshee-data/groundstation/internal/pipeline"
	"github.com/banshee-data/groundstation/internal/transport"
)

var errNoCentral = errors.New("wireless adapter unavailable")

func (s *Server) connect(w http.ResponseWriter, r *http.Request, c transport.Connector) bool {
	st, err := s.pipe.Connect(r.Context(), c)
	if err != nil {
		writeConnectError(w, err)
		return false
	}
	httputil.WriteJSONOK(w, st)
	return true
}

func (s *Server) serialConnector(cfg transport.SerialConfig) (transport.Connector, error) {
	if cfg.Port == "" {
		return nil, errors.New("port is required")
	}
	opts, err := cfg.Options.Normalize()
	if err != nil {
		return nil, err
	}
	cfg.Options = opts
	return transport.NewSerialConnector(cfg, s.opts.SerialPorts), nil
}

// wirelessConnector fills unset request fields from the configured defaults.
func (s *Server) wirelessConnector(cfg transport.WirelessConfig) (transport.Connector, error) {
	if s.opts.Central == nil {
		return nil, errNoCentral
	}
	def := s.opts.Wireless
	if len(cfg.Filter.NamePrefixes) == 0 && len(cfg.Filter.ServiceUUIDs) == 0 {
		cfg.Filter = def.Filter
	}
	if cfg.Service == "" {
		cfg.Service = def.Service
	}
	if cfg.Characteristic == "" {
		cfg.Characteristic = def.Characteristic
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	return transport.NewWirelessConnector(cfg, s.opts.Central), nil
}

func (s *Server) socketConnector(cfg transport.SocketConfig) (transport.Connector, error) {
	if cfg.Host == "" {
		return nil, errors.New("host is required")
	}
	def := s.opts.Socket
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	return transport.NewSocketConnector(cfg), nil
}

func (s *Server) connectSerial(w http.ResponseWriter, r *http.Request) {
	var cfg transport.SerialConfig
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, err := s.serialConnector(cfg)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.connect(w, r, c)
}

func (s *Server) connectWireless(w http.ResponseWriter, r *http.Request) {
	var cfg transport.WirelessConfig
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, err := s.wirelessConnector(cfg)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.connect(w, r, c)
}

func (s *Server) connectSocket(w http.ResponseWriter, r *http.Request) {
	var cfg transport.SocketConfig
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	c, err := s.socketConnector(cfg)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.connect(w, r, c)
}

// disconnect is idempotent: with no session it still answers 200.
func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.Disconnect(); err != nil && !errors.Is(err, pipeline.ErrNoSession) {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.pipe.Status())
}

func (s *Server) startStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipe.StartStream()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) stopStream(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.pipe.StopStream())
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	s.pipe.Clear()
	httputil.WriteJSONOK(w, s.pipe.State().Snapshot())
}

func (s *Server) listSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.opts.ListPorts()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if ports == nil {
		ports = []string{}
	}
	httputil.WriteJSONOK(w, map[string]any{
		"ports":      ports,
		"baud_rates": transport.BaudRates,
		"default":    transport.DefaultBaudRate,
	})
}

// scanWireless discovers advertising devices. Query parameters prefix and
// service (repeatable) override the configured filter; timeout is a Go
// duration.
func (s *Server) scanWireless(w http.ResponseWriter, r *http.Request) {
	if s.opts.Central == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, errNoCentral.Error())
		return
	}

	q := r.URL.Query()
	filter := s.opts.Wireless.Filter
	if q.Has("prefix") || q.Has("service") {
		filter = transport.WirelessFilter{NamePrefixes: q["prefix"], ServiceUUIDs: q["service"]}
	}
	timeout := s.opts.Wireless.ScanTimeout
	if raw := q.Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httputil.BadRequest(w, "timeout must be a positive duration")
			return
		}
		timeout = d
	}

	found, err := transport.Discover(r.Context(), s.opts.Central, filter, timeout)
	if err != nil {
		writeConnectError(w, err)
		return
	}
	if found == nil {
		found = []transport.Advertisement{}
	}
	httputil.WriteJSONOK(w, map[string]any{"devices": found})
}

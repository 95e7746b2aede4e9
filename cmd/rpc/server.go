package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/crypto"
	"github.com/canopy-network/vsmt/smt"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

const (
	colon = ":"

	SoftwareVersion = "0.1.0"
	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"
)

// Server is the read only query RPC over the committed versions of a tree
type Server struct {
	// store holds every committed version
	store lib.VersionedStoreI
	// hasher is the hash function the tree was built with
	hasher crypto.HasherI
	// config is the node configuration
	config lib.Config
	// server is the running http server, nil until Start()
	server *http.Server

	metrics *lib.Metrics
	logger  lib.LoggerI
}

// NewServer constructs and returns a new query RPC server
func NewServer(store lib.VersionedStoreI, hasher crypto.HasherI, config lib.Config, metrics *lib.Metrics, logger lib.LoggerI) *Server {
	if logger == nil {
		logger = lib.NewNullLogger()
	}
	if hasher == nil {
		hasher = crypto.DefaultHasher()
	}
	return &Server{store: store, hasher: hasher, config: config, metrics: metrics, logger: logger}
}

// Handler returns the full handler chain: cors, then the request timeout, then the router
func (s *Server) Handler() http.Handler {
	// Create CORS policy
	cor := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions, http.MethodPost},
	})
	// Create a default timeout for HTTP requests
	timeout := time.Duration(s.config.TimeoutS) * time.Second
	return cor.Handler(http.TimeoutHandler(createRouter(s), timeout, lib.ErrServerTimeout().Error()))
}

// Start serves the RPC in the background
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              colon + s.config.RPCPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(s.config.TimeoutS) * time.Second,
	}
	go func() {
		defer lib.CatchPanic(s.logger)
		s.logger.Infof("Starting RPC server at 0.0.0.0:%s", s.config.RPCPort)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("RPC server failed with err: %s", err.Error())
		}
	}()
}

// Stop gracefully shuts the RPC server down
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutS)*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(err.Error())
	}
}

// readOnlyView is a helper function that opens a committed version, nil is the latest
func (s *Server) readOnlyView(version *lib.VersionID, callback func(v *smt.View) lib.ErrorI) lib.ErrorI {
	if version == nil {
		latest, err := s.store.Latest()
		if err != nil {
			return err
		}
		version = &latest.ID
	}
	snapshot, err := s.store.Checkout(*version)
	if err != nil {
		return err
	}
	return callback(smt.NewView(snapshot, s.hasher, s.metrics))
}

// logHandler serves as a middleware that logs incoming RPC calls
type logHandler struct {
	path string
	h    httprouter.Handle
	log  lib.LoggerI
}

// Handle
func (h logHandler) Handle(resp http.ResponseWriter, req *http.Request, p httprouter.Params) {
	h.log.Debugf("%s %s", req.Method, h.path)
	h.h(resp, req, p)
}

// unmarshal reads request body and unmarshals it into ptr
func (s *Server) unmarshal(w http.ResponseWriter, r *http.Request, ptr any) bool {
	defer func() { _ = r.Body.Close() }()
	bz, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
	if err != nil {
		write(w, ErrReadBody(err), http.StatusBadRequest)
		return false
	}
	if len(bz) == 0 {
		return true
	}
	if err = json.Unmarshal(bz, ptr); err != nil {
		write(w, ErrInvalidParams(err), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps an error to its http status and writes it
func writeError(w http.ResponseWriter, err lib.ErrorI) {
	code := http.StatusBadRequest
	switch {
	case lib.IsStoreUnavailable(err):
		code = http.StatusInternalServerError
	case lib.HasCode(err, lib.StorageModule, lib.CodeUnknownVersion):
		code = http.StatusNotFound
	}
	write(w, err, code)
}

// write marshaled payload to w
func write(w http.ResponseWriter, payload any, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}

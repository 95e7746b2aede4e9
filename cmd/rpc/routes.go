package rpc

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// vsmt RPC Paths
const (
	VersionRoutePath  = "/v1/"
	VersionsRoutePath = "/v1/versions"
	RootRoutePath     = "/v1/root"
	GetRoutePath      = "/v1/get"
	ProveRoutePath    = "/v1/prove"
	VerifyRoutePath   = "/v1/verify"
	MetricsRoutePath  = "/metrics"
)

const (
	VersionRouteName  = "version"
	VersionsRouteName = "versions"
	RootRouteName     = "root"
	GetRouteName      = "get"
	ProveRouteName    = "prove"
	VerifyRouteName   = "verify"
	MetricsRouteName  = "metrics"
)

// routes contains the method and path for a vsmt command
type routes map[string]struct {
	Method string
	Path   string
}

// routePaths is a mapping from route names to their corresponding HTTP methods and paths
var routePaths = routes{
	VersionRouteName:  {Method: http.MethodGet, Path: VersionRoutePath},
	VersionsRouteName: {Method: http.MethodGet, Path: VersionsRoutePath},
	RootRouteName:     {Method: http.MethodPost, Path: RootRoutePath},
	GetRouteName:      {Method: http.MethodPost, Path: GetRoutePath},
	ProveRouteName:    {Method: http.MethodPost, Path: ProveRoutePath},
	VerifyRouteName:   {Method: http.MethodPost, Path: VerifyRoutePath},
	MetricsRouteName:  {Method: http.MethodGet, Path: MetricsRoutePath},
}

// httpRouteHandlers is a custom type that maps strings to httprouter handle functions
type httpRouteHandlers map[string]httprouter.Handle

// createRouter initializes and returns a new HTTP router with the query handlers
// there are no write routes, the tree is only mutated by its local owner
func createRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		VersionRouteName:  s.Version,
		VersionsRouteName: s.Versions,
		RootRouteName:     s.Root,
		GetRouteName:      s.Get,
		ProveRouteName:    s.Prove,
		VerifyRouteName:   s.Verify,
	}
	router := httprouter.New()
	for name, handler := range r {
		path := routePaths[name]
		router.Handle(path.Method, path.Path, logHandler{path: path.Path, h: handler, log: s.logger}.Handle)
	}
	// expose the prometheus collectors next to the queries when enabled
	if s.metrics != nil && s.config.MetricsEnabled {
		path := routePaths[MetricsRouteName]
		router.Handler(path.Method, path.Path, s.metrics.Handler())
	}
	return router
}

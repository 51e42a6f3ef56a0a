package server

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/chorus/internal/api/v1"
	"github.com/gosuda/chorus/internal/api/ws"
)

func registerAPIRoutes(api huma.API, store v1.DataStore, collaborator v1.Collaborator) {
	v1.RegisterSessionRoutes(api, store, collaborator)
	v1.RegisterAgentRoutes(api, store)
	v1.RegisterMessageRoutes(api, store)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/chat/{sessionID}", hub.ServeChat)
}

// wsOriginPatterns converts CORS origins into the host patterns accepted by
// websocket.AcceptOptions. "*" allows any origin.
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

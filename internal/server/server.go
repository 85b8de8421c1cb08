package server

import (
	"log"
	"net/http"
)

// Handler assembles the HTTP surface: the event websocket, the capture
// control API, and the recognition-credential endpoint.
func Handler(hub *Hub, ctrl Controller, tokenHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub)
	registerAPIRoutes(mux, hub, ctrl)
	mux.Handle("GET /api/deepgram/token", tokenHandler)

	return mux
}

func Serve(addr string, hub *Hub, ctrl Controller, tokenHandler http.Handler) error {
	log.Printf("control API at http://%s", addr)
	return http.ListenAndServe(addr, Handler(hub, ctrl, tokenHandler))
}

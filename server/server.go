package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/room"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

// Server exposes the room manager over websockets plus a couple of JSON
// endpoints.
type Server struct {
	manager       *room.Manager
	originAllowed func(string) bool
	upgrader      websocket.Upgrader
	sendBuffer    int
}

func New(manager *room.Manager, allowedOriginPrefixes []string, sendBuffer int) *Server {
	s := &Server{
		manager:       manager,
		originAllowed: OriginPolicy(allowedOriginPrefixes),
		sendBuffer:    sendBuffer,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

// OriginPolicy allows requests without an Origin and origins starting with
// one of prefixes.
func OriginPolicy(prefixes []string) func(string) bool {
	return func(origin string) bool {
		if origin == "" {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(origin, p) {
				return true
			}
		}
		return false
	}
}

func (s *Server) Router() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/ws", s.HandleSocket).Methods("GET")
	router.HandleFunc("/health", s.HandleHealth).Methods("GET")
	router.HandleFunc("/rooms", s.HandleRooms).Methods("GET")
	router.NotFoundHandler = http.HandlerFunc(notFound)

	c := cors.New(cors.Options{
		AllowOriginFunc:  s.originAllowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Clients:   s.manager.Connections(),
		Rooms:     len(s.manager.Rooms()),
	})
}

func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.manager.Rooms())
}

func (s *Server) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.WithFields(log.Fields{"function": "Server.HandleSocket"}).Warn("upgrade failed: " + err.Error())
		return
	}
	c := newConn(ws, s.manager, s.sendBuffer)
	c.serve()
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	logger := log.WithFields(log.Fields{"function": "Server.ListenAndServe", "addr": addr})
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logger.Info("listening")

	select {
	case err := <-errc:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: "no route for " + r.URL.Path})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithFields(log.Fields{"function": "writeJSON"}).Warn("could not encode response: " + err.Error())
	}
}

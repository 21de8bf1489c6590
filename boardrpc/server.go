// Package boardrpc implements the HTTP RPC surface for the bulletin
// board: CreateBoard, AddEntries, ListEntries, ListBoards and
// ModifyBoard over JSON/HTTP, plus a client trustees and protocol
// managers drive it with.
package boardrpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/log"
	"github.com/sequent-io/e2e-core/metrics"
)

// Config configures the board RPC server.
type Config struct {
	Host    string
	Port    int
	Service *board.Service
}

// API serves the board RPCs over HTTP.
type API struct {
	router  *chi.Mux
	service *board.Service
}

// New builds the router and starts serving conf.Host:conf.Port.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("boardrpc: missing configuration")
	}
	if conf.Service == nil {
		return nil, fmt.Errorf("boardrpc: missing board service")
	}
	a := &API{service: conf.Service}
	a.initRouter()
	go func() {
		addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
		log.Infow("starting board RPC server", "addr", addr)
		if err := http.ListenAndServe(addr, a.router); err != nil {
			log.Fatalf("board RPC server stopped: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes.
func (a *API) Router() *chi.Mux {
	return a.router
}

func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(requestMetrics)

	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) { httpWriteOK(w) })
	a.router.Get("/metrics", metrics.Handler().ServeHTTP)
	a.router.Post(BoardsEndpoint, a.createBoard)
	a.router.Get(BoardsEndpoint, a.listBoards)
	a.router.Post(BoardEndpoint, a.modifyBoard)
	a.router.Post(EntriesEndpoint, a.addEntries)
	a.router.Get(EntriesEndpoint, a.listEntries)
}

// requestMetrics records every request's route pattern and final HTTP
// status in metrics.BoardRPCRequests.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.BoardRPCRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

func (a *API) createBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Withf("%v", err).Write(w)
		return
	}
	id := req.UUID
	if id == uuid.Nil {
		id = uuid.New()
	}
	b, cp, err := a.service.CreateBoard(id, req.Name, req.Permissions, req.SignerPK, req.Signature)
	if err != nil {
		fromBoardError(err).Write(w)
		return
	}
	metrics.BoardEntriesAppended.WithLabelValues("config").Inc()
	httpWriteJSON(w, CreateBoardResponse{Board: *b, Checkpoint: *cp})
}

func (a *API) listBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := a.service.ListBoards(nil, nil, nil)
	if err != nil {
		fromBoardError(err).Write(w)
		return
	}
	httpWriteJSON(w, ListBoardsResponse{Boards: boards})
}

func (a *API) modifyBoard(w http.ResponseWriter, r *http.Request) {
	id, uerr := uuid.Parse(chi.URLParam(r, BoardURLParam))
	if uerr != nil {
		ErrMalformedBoardID.Withf("%v", uerr).Write(w)
		return
	}
	var req ModifyBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Withf("%v", err).Write(w)
		return
	}
	b, err := a.service.ModifyBoard(id, req.Board, req.SignerPK, req.Signature)
	if err != nil {
		fromBoardError(err).Write(w)
		return
	}
	httpWriteJSON(w, b)
}

func (a *API) addEntries(w http.ResponseWriter, r *http.Request) {
	id, uerr := uuid.Parse(chi.URLParam(r, BoardURLParam))
	if uerr != nil {
		ErrMalformedBoardID.Withf("%v", uerr).Write(w)
		return
	}
	var req AddEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Withf("%v", err).Write(w)
		return
	}
	entries, cp, err := a.service.AddEntries(id, req.Entries)
	if err != nil {
		fromBoardError(err).Write(w)
		return
	}
	metrics.BoardEntriesAppended.WithLabelValues("data").Add(float64(len(entries)))
	httpWriteJSON(w, AddEntriesResponse{Entries: entries, Checkpoint: *cp})
}

func (a *API) listEntries(w http.ResponseWriter, r *http.Request) {
	id, uerr := uuid.Parse(chi.URLParam(r, BoardURLParam))
	if uerr != nil {
		ErrMalformedBoardID.Withf("%v", uerr).Write(w)
		return
	}
	var startSeq uint64
	if raw := r.URL.Query().Get("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ErrInvalidArgument.Withf("from: %v", err).Write(w)
			return
		}
		startSeq = v
	}
	entries, last, err := a.service.ListEntries(id, startSeq)
	if err != nil {
		fromBoardError(err).Write(w)
		return
	}
	httpWriteJSON(w, ListEntriesResponse{Entries: entries, LastSequenceID: last})
}

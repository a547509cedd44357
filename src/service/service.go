package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/ashwinbangalore/irohaBG/src/loader"
	"github.com/ashwinbangalore/irohaBG/src/ordering"
	"github.com/ashwinbangalore/irohaBG/src/peers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxTxSize bounds the body of a transaction submission.
const maxTxSize = 1 << 20

// Node is the part of a node the HTTP API reads from.
type Node interface {
	GetStats() map[string]string
	GetBlock(height uint64) (*ledger.Block, error)
	GetBlocks(from, to uint64) ([]*ledger.Block, error)
	GetPeers() []*peers.Peer
	SubmitTransaction(tx *ledger.Transaction) error
}

// Service serves the HTTP API of a node.
type Service struct {
	bindAddress string
	node        Node
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService creates the API of n. metrics, when not nil, is served on
// /metrics.
func NewService(bindAddress string, n Node, metrics http.Handler, logger *logrus.Entry) *Service {
	service := &Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger.WithField("component", "service"),
	}

	service.registerHandlers(metrics)

	return service
}

func (s *Service) registerHandlers(metrics http.Handler) {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/block/{height:[0-9]+}", s.makeHandler(s.GetBlock)).Methods("GET")
	s.router.HandleFunc("/blocks", s.makeHandler(s.GetBlocks)).Methods("GET")
	s.router.HandleFunc("/peers", s.makeHandler(s.GetPeers)).Methods("GET")
	s.router.HandleFunc("/tx", s.makeHandler(s.SubmitTransaction)).Methods("POST")
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods("GET")
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router, for embedding the API in another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.router)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["height"]

	height, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing height parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, err := s.node.GetBlock(height)
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving block %d", height)
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	data, err := block.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// GetBlocks returns the blocks in [from, to], at most
// loader.MaxBlocksPerRequest of them. to defaults to from.
func (s *Service) GetBlocks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := strconv.ParseUint(query.Get("from"), 10, 64)
	if err != nil {
		http.Error(w, "invalid from parameter", http.StatusBadRequest)
		return
	}

	to := from
	if t := query.Get("to"); t != "" {
		to, err = strconv.ParseUint(t, 10, 64)
		if err != nil {
			http.Error(w, "invalid to parameter", http.StatusBadRequest)
			return
		}
	}

	blocks, err := s.node.GetBlocks(from, to)
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving blocks [%d, %d]", from, to)
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	writeBlocks(w, blocks)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

// SubmitTransaction decodes a signed transaction and hands it to the ordering
// gate.
func (s *Service) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx := new(ledger.Transaction)
	if err := tx.Unmarshal(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.SubmitTransaction(tx); err != nil {
		s.logger.WithError(err).WithField("tx", tx.Hex()).Debug("Submitting transaction")
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"hash": tx.Hex()})
}

// statusOf maps node errors to HTTP status codes.
func statusOf(err error) int {
	var verr ledger.ValidationError
	switch {
	case errors.Is(err, loader.ErrNotFound),
		common.IsStore(err, common.KeyNotFound),
		common.IsStore(err, common.TooLate):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	json.NewEncoder(w).Encode(v)
}

// Blocks are written in the ledger's canonical encoding, so that clients can
// recompute block hashes from the response.
func writeBlocks(w http.ResponseWriter, blocks []*ledger.Block) {
	raw := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		data, err := b.Marshal()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		raw = append(raw, data)
	}

	writeJSON(w, raw)
}

package console

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hathorqa/qaconsole/src/addressindex"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/hathorqa/qaconsole/src/registry"
	"github.com/hathorqa/qaconsole/src/resolver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// apiServer is the thin JSON surface the browser UI drives. All the real
// behavior lives in the registry/resolver/index packages.
type apiServer struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	index    *addressindex.Index
	logger   *zap.Logger
}

func newAPIServer(reg *registry.Registry, res *resolver.Resolver, index *addressindex.Index, logger *zap.Logger) *apiServer {
	return &apiServer{
		registry: reg,
		resolver: res,
		index:    index,
		logger:   logger.With(zap.String("component", "api")),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wallets", s.handleWallets)
	mux.HandleFunc("/api/wallets/", s.handleWallet)
	mux.HandleFunc("/api/tx/", s.handleTxStatus)
	mux.HandleFunc("/api/address/", s.handleAddressLookup)
	return mux
}

func (s *apiServer) handleWallets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		var req struct {
			FriendlyName string `json:"friendly_name"`
			Network      string `json:"network"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec, err := s.registry.Add(model.WalletMetadata{
			FriendlyName: req.FriendlyName,
			Network:      req.Network,
		})
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *apiServer) handleWallet(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/wallets/"), "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rec := s.registry.Get(id)
		if rec == nil {
			writeError(w, http.StatusNotFound, registry.ErrWalletNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case action == "start" && r.Method == http.MethodPost:
		if err := s.registry.Start(r.Context(), id); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, s.registry.Get(id))
	case action == "stop" && r.Method == http.MethodPost:
		if err := s.registry.Stop(r.Context(), id); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, s.registry.Get(id))
	case action == "addresses" && r.Method == http.MethodGet:
		records, err := s.index.ListForWallet(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *apiServer) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/tx/"), "/")
	if len(parts) != 2 || parts[1] != "status" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	hash := parts[0]
	status := s.resolver.Resolve(r.Context(), hash, r.URL.Query().Get("wallet"))
	writeJSON(w, http.StatusOK, map[string]string{
		"hash":   hash,
		"status": string(status),
	})
}

func (s *apiServer) handleAddressLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	address := strings.TrimPrefix(r.URL.Path, "/api/address/")
	walletID, err := s.index.FindWallet(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if walletID == "" {
		writeError(w, http.StatusNotFound, errors.Errorf("address %s not indexed", address))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":   address,
		"wallet_id": walletID,
	})
}

func statusFor(err error) int {
	if errors.Is(err, registry.ErrWalletNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, registry.ErrDuplicateWallet) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

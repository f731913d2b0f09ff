package gateway

import (
	"encoding/json"
	"net/http"

	"neuroswarm/internal/capability"
	"neuroswarm/internal/errs"
)

// registerRequest is the device registration body.
type registerRequest struct {
	WalletAddress string                   `json:"wallet_address"`
	Hardware      *capability.HardwareSpec `json:"hardware,omitempty"`
}

// submitRequest is the result submission body.
type submitRequest struct {
	TaskID        string          `json:"task_id"`
	Result        json.RawMessage `json:"result"`
	WalletAddress string          `json:"wallet_address"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("malformed request body: %v", err))
		return
	}

	node, err := s.registry.Register(r.Context(), req.WalletAddress, req.Hardware)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	node, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	history, err := s.matcher.TaskHistoryFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	node, err := s.registry.Heartbeat(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.catalog.ListAvailable(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	t, err := s.matcher.AssignNext(r.Context(), r.PathValue("node"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if t == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("malformed request body: %v", err))
		return
	}
	if req.TaskID == "" || req.WalletAddress == "" {
		s.writeError(w, errs.Validation("task_id and wallet_address are required"))
		return
	}

	entry, err := s.matcher.SubmitResult(r.Context(), req.TaskID, req.Result, req.WalletAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"reward":  entry,
	})
}

func (s *Server) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.NetworkStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWalletStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.WalletStats(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	history, err := s.ledger.HistoryFor(r.Context(), wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var total float64
	for _, entry := range history {
		total += entry.Amount
	}

	nodes, err := s.registry.ListByWallet(r.Context(), wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	perDevice := make(map[string]float64, len(nodes))
	for _, node := range nodes {
		perDevice[node.ID] = node.Earnings
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"wallet_address": wallet,
		"total":          total,
		"per_device":     perDevice,
		"history":        history,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"swarm_id":      s.swarm.ID(),
		"swarm_status":  s.swarm.Status(),
		"swarm_members": s.swarm.MemberCount(),
		"leader_id":     s.swarm.LeaderID(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindAuthorization, errs.KindAuthentication:
		status = http.StatusForbidden
	case errs.KindState:
		status = http.StatusUnprocessableEntity
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("internal error")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

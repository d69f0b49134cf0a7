package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"campaignd/internal/providers/relay"
	"campaignd/internal/util"
)

const (
	outcomeOK          = "ok"
	outcomeRejected    = "rejected"
	outcomeRateLimit   = "rate_limit"
	outcomeServerError = "server_error"
	outcomeTimeout     = "timeout"
)

type weightedOutcome struct {
	Kind   string
	Weight float64
}

type server struct {
	cfg   config
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
	newID func() string
	sleep func(time.Duration)
}

func newServer(cfg config, rng *rand.Rand) *server {
	if len(cfg.Outcomes) == 0 {
		cfg.Outcomes = []string{outcomeOK}
	}
	return &server{cfg: cfg, rng: rng, newID: util.NewMessageID, sleep: time.Sleep}
}

func (s *server) Register(r *mux.Router) {
	r.HandleFunc("/v1/messages", s.handleSend).Methods(http.MethodPost)
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
		return
	}

	var req relay.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid json")
		return
	}
	if req.To == "" || req.From == "" || req.Subject == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_field", "from, to and subject are required")
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.Delay):
		}
	}

	status, code := classifyOutcome(s.nextOutcome())
	switch {
	case code == outcomeTimeout:
		s.sleep(s.cfg.TimeoutDelay)
		writeError(w, status, code, "upstream timed out")
	case status >= 300:
		writeError(w, status, code, "mock failure: "+code)
	default:
		writeJSON(w, status, relay.SendResponse{ID: s.newID(), Status: "queued"})
	}
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx%uint64(len(s.cfg.Outcomes)))]
	case "weighted":
		s.rngMu.Lock()
		ok := s.rng.Float64() <= s.cfg.SuccessRate
		r := s.rng.Float64()
		s.rngMu.Unlock()
		if ok {
			return outcomeOK
		}
		return pickWeighted(r, s.cfg.FailureWeights)
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

// classifyOutcome maps an outcome token (optionally "kind:status") to the
// HTTP status the relay answers with.
func classifyOutcome(raw string) (int, string) {
	kind, statusRaw, _ := strings.Cut(strings.TrimSpace(raw), ":")
	override, _ := strconv.Atoi(statusRaw)
	pick := func(def int) int {
		if override >= 100 {
			return override
		}
		return def
	}

	switch kind {
	case "", outcomeOK:
		return pick(http.StatusAccepted), outcomeOK
	case outcomeRejected:
		return pick(http.StatusUnprocessableEntity), outcomeRejected
	case outcomeRateLimit:
		return pick(http.StatusTooManyRequests), outcomeRateLimit
	case outcomeServerError:
		return pick(http.StatusInternalServerError), outcomeServerError
	case outcomeTimeout:
		return pick(http.StatusGatewayTimeout), outcomeTimeout
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, relay.SendResponse{Status: "failed", Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{outcomeOK}
	}
	return out
}

func parseWeightedOutcomes(s string) []weightedOutcome {
	var out []weightedOutcome
	for _, p := range strings.Split(s, ",") {
		kind, weight, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok || strings.TrimSpace(kind) == "" {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil || w <= 0 {
			continue
		}
		out = append(out, weightedOutcome{Kind: strings.TrimSpace(kind), Weight: w})
	}
	return out
}

func pickWeighted(r float64, items []weightedOutcome) string {
	if len(items) == 0 {
		return outcomeRejected
	}
	var total float64
	for _, it := range items {
		total += it.Weight
	}
	target := r * total
	var cumulative float64
	for _, it := range items {
		cumulative += it.Weight
		if target <= cumulative {
			return it.Kind
		}
	}
	return items[len(items)-1].Kind
}

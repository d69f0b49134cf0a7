package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"campaignd/internal/httpserver"
	"campaignd/internal/logging"
)

type config struct {
	APIKey            string        `envconfig:"RELAY_API_KEY" default:"mock_key"`
	Port              string        `envconfig:"PORT" default:"8090"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"json"`
	OutcomeMode       string        `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw       string        `envconfig:"MOCK_OUTCOMES" default:"ok"`
	SuccessRate       float64       `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	FailureWeightsRaw string        `envconfig:"MOCK_FAILURE_WEIGHTS" default:"rejected:1"`
	Delay             time.Duration `envconfig:"MOCK_DELAY" default:"0s"`
	TimeoutDelay      time.Duration `envconfig:"MOCK_TIMEOUT_DELAY" default:"12s"`

	Outcomes       []string
	FailureWeights []weightedOutcome
}

func main() {
	cfg := loadConfig()
	logging.Init("mock-provider", cfg.LogFormat, "info")

	s := newServer(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))

	router := mux.NewRouter()
	s.Register(router)
	router.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)

	slog.Info("mock relay listening", "port", cfg.Port, "mode", cfg.OutcomeMode, "outcomes", cfg.Outcomes)
	if err := http.ListenAndServe(":"+cfg.Port, httpserver.Logging(router)); err != nil {
		slog.Error("mock relay server failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock relay config load failed", "err", err)
		os.Exit(1)
	}
	cfg.OutcomeMode = strings.ToLower(strings.TrimSpace(cfg.OutcomeMode))
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.FailureWeights = parseWeightedOutcomes(cfg.FailureWeightsRaw)
	if len(cfg.FailureWeights) == 0 {
		cfg.FailureWeights = []weightedOutcome{{Kind: outcomeRejected, Weight: 1}}
	}
	return cfg
}

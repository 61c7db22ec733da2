package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/quizchain/quizchain/internal/api"
	"github.com/quizchain/quizchain/internal/config"
	dbstore "github.com/quizchain/quizchain/internal/db"
	"github.com/quizchain/quizchain/internal/diag"
	"github.com/quizchain/quizchain/internal/logging"
	"github.com/quizchain/quizchain/internal/middleware"
	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/oracle"
	"github.com/quizchain/quizchain/internal/registry"
	"github.com/quizchain/quizchain/internal/services"
)

func main() {
	cfgPath := os.Getenv("QUIZCHAIN_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Server.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	sqliteDB, err := openDatabase(cfg.Database.Path, os.Getenv("QUIZCHAIN_MIGRATIONS_DIR"))
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = sqliteDB.Close() }()

	store, err := dbstore.NewSQLiteStore(sqliteDB)
	if err != nil {
		log.Fatal("init store", zap.Error(err))
	}

	registryAddr := models.NormalizeAddress(cfg.Ledger.RegistryAddress)
	adminAddr := models.NormalizeAddress(cfg.Ledger.AdminAddress)
	if registryAddr.IsZero() {
		registryAddr = "0x0000000000000000000000000000000000000001"
	}
	if adminAddr.IsZero() {
		adminAddr = "0x0000000000000000000000000000000000000002"
	}

	reg := registry.New(registry.Params{
		Address: registryAddr,
		Admin:   adminAddr,
		Journal: store,
		Logger:  log,
	})

	st, err := store.LoadState()
	if err != nil {
		log.Fatal("load state", zap.Error(err))
	}
	reg.Restore(st)
	if st.Config == nil {
		seedOracleConfig(reg, adminAddr, cfg, log)
	}

	var grader oracle.Grader
	if cfg.Grader.APIKey != "" {
		g, err := oracle.NewGenAIGrader(context.Background(), cfg.Grader.APIKey, cfg.Grader.Model)
		if err != nil {
			log.Fatal("init grader", zap.Error(err))
		}
		grader = g
	} else {
		log.Warn("no grader API key configured; evaluations will use the degraded heuristic")
	}

	runner := oracle.NewRunner(store, grader, log)
	network := oracle.NewNetwork(oracle.NetworkParams{
		Runner:    runner,
		Resolver:  reg,
		QueueSize: cfg.Oracle.QueueSize,
		Workers:   cfg.Oracle.Workers,
		Timeout:   cfg.Oracle.EvalTimeout.Std(),
		Logger:    log,
	})
	defer network.Close()
	reg.SetNetwork(network)

	bypass := registry.NewBypassController(reg, adminAddr, log)
	guard := diag.NewGuard(reg, log)
	monitor := diag.NewDesyncMonitor(cfg.Ledger.MaxHeightJump)
	auth := services.NewAuthService(store, middleware.SignToken)

	router := api.NewRouter(api.Params{
		Registry:      reg,
		Bypass:        bypass,
		Guard:         guard,
		Monitor:       monitor,
		Content:       store,
		Auth:          auth,
		Logger:        log,
		VerifyTimeout: cfg.Oracle.VerifyTimeout.Std(),
		ReloadState: func() error {
			st, err := store.LoadState()
			if err != nil {
				return err
			}
			reg.Restore(st)
			return nil
		},
	})

	// Operators can repair a broken oracle configuration on disk and the
	// server picks it up without a restart.
	stopWatch, err := config.Watch(cfgPath, log, func(next *config.Config) {
		seedOracleConfig(reg, adminAddr, next, log)
	})
	if err != nil {
		log.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	commit := os.Getenv("QUIZCHAIN_COMMIT")
	buildTime := os.Getenv("QUIZCHAIN_BUILD_TIME")

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "QuizChain API",
			"height":     reg.Height(),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.Recover(log, middleware.RequestLog(log, middleware.WithAuth(mux)))

	log.Info("quizchain server listening", zap.String("addr", cfg.Server.Addr))
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// seedOracleConfig applies the config file's oracle section to the registry.
func seedOracleConfig(reg *registry.Registry, admin models.Address, cfg *config.Config, log *zap.Logger) {
	oc := &models.OracleConfig{
		SubscriptionID:    cfg.Oracle.SubscriptionID,
		OracleAddress:     models.NormalizeAddress(cfg.Oracle.OracleAddress),
		EvaluationScript:  cfg.Oracle.EvaluationScript,
		AuthorizedCallers: map[models.Address]bool{},
	}
	if cfg.Oracle.NetworkID != "" {
		h, err := models.ParseHash32(cfg.Oracle.NetworkID)
		if err != nil {
			log.Warn("invalid oracle network_id in config", zap.Error(err))
		} else {
			oc.NetworkID = h
		}
	}
	for _, c := range cfg.Oracle.AuthorizedCallers {
		oc.AuthorizedCallers[models.NormalizeAddress(c)] = true
	}
	if err := reg.SetOracleConfig(admin, oc); err != nil {
		log.Error("seed oracle config", zap.Error(err))
		return
	}
	if err := reg.SetUseOracle(admin, cfg.Oracle.Enabled); err != nil {
		log.Error("seed oracle flag", zap.Error(err))
	}
	if !oc.OracleAddress.IsZero() {
		if err := reg.RegisterEndpoint(admin, oc.OracleAddress); err != nil {
			log.Error("register oracle endpoint", zap.Error(err))
		}
	}
}

// Command server exposes the replay engine over HTTP: jobs are submitted to a
// bounded worker pool and their results fetched by id.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"momentum-backtest/services/arrowpipeline"
	"momentum-backtest/services/config"
	"momentum-backtest/services/data"
	"momentum-backtest/services/engine"
)

type jobStatus string

const (
	statusQueued  jobStatus = "queued"
	statusRunning jobStatus = "running"
	statusDone    jobStatus = "done"
	statusFailed  jobStatus = "failed"
)

// backtestRequest is the POST payload. Either CSVPath or a symbol/time range
// must be provided; engine parameters are optional and clamped server-side.
type backtestRequest struct {
	Symbol  string `json:"symbol"`
	From    string `json:"from"`
	To      string `json:"to"`
	CSVPath string `json:"csv_path"`

	Length         *int     `json:"length"`
	UpperThreshold *float64 `json:"upper_threshold"`
	LowerThreshold *float64 `json:"lower_threshold"`
	WaitBars       *int     `json:"wait_bars"`
	Policy         string   `json:"policy"`
	RewardRatio    *float64 `json:"reward_ratio"`
	ATRMultiplier  *float64 `json:"atr_multiplier"`
	MaxHoldBars    *int     `json:"max_hold_bars"`
	InitialCapital *float64 `json:"initial_capital"`
	MaxRisk        *float64 `json:"max_risk_per_trade"`
}

type job struct {
	ID        uuid.UUID          `json:"id"`
	Status    jobStatus          `json:"status"`
	Error     string             `json:"error,omitempty"`
	Symbol    string             `json:"symbol"`
	Submitted time.Time          `json:"submitted_at"`
	Finished  *time.Time         `json:"finished_at,omitempty"`
	Stats     *engine.Statistics `json:"statistics,omitempty"`
	Trades    []*engine.Trade    `json:"trades,omitempty"`
	Bars      int                `json:"bars,omitempty"`
	Skipped   int                `json:"skipped,omitempty"`

	req backtestRequest
}

type server struct {
	cfg   *config.Config
	log   *zap.Logger
	jobs  chan *job
	arrow *arrowpipeline.Pipeline

	mu    sync.RWMutex
	store map[uuid.UUID]*job
}

func newServer(cfg *config.Config, log *zap.Logger) *server {
	return &server{
		cfg:   cfg,
		log:   log,
		jobs:  make(chan *job, 64),
		arrow: arrowpipeline.NewPipeline(log),
		store: make(map[uuid.UUID]*job),
	}
}

func (s *server) start(ctx context.Context) {
	workers := s.cfg.Server.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	s.log.Info("starting replay workers", zap.Int("workers", workers))
	for i := 0; i < workers; i++ {
		go s.worker(ctx, i)
	}
}

func (s *server) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			s.run(ctx, id, j)
		}
	}
}

func (s *server) run(ctx context.Context, workerID int, j *job) {
	s.setStatus(j, statusRunning, "")
	s.log.Info("job started",
		zap.Int("worker", workerID),
		zap.String("job_id", j.ID.String()),
		zap.String("symbol", j.Symbol))

	path := j.req.CSVPath
	var err error
	if path == "" {
		path, err = data.Export(ctx, data.ExportOptions{
			URL:      s.cfg.ClickHouse.HTTPURL,
			Database: s.cfg.ClickHouse.Database,
			Table:    s.cfg.ClickHouse.Table,
			User:     s.cfg.ClickHouse.User,
			Password: s.cfg.ClickHouse.Password,
			Symbol:   j.Symbol,
			Interval: s.cfg.Data.Interval,
			From:     j.req.From,
			To:       j.req.To,
		}, fmt.Sprintf("./jobs/%s.csv", j.ID))
		if err != nil {
			s.fail(j, fmt.Errorf("export bars: %w", err))
			return
		}
	}

	bars, _, err := data.Load(path, s.log)
	if err != nil {
		s.fail(j, fmt.Errorf("load bars: %w", err))
		return
	}

	params, err := paramsFromRequest(j.req)
	if err != nil {
		s.fail(j, err)
		return
	}

	res := engine.New(params, s.log).Replay(bars)

	now := time.Now().UTC()
	s.mu.Lock()
	j.Status = statusDone
	j.Finished = &now
	j.Stats = &res.Stats
	j.Trades = res.Trades
	j.Bars = res.Bars
	j.Skipped = res.Skipped
	s.mu.Unlock()

	s.log.Info("job finished",
		zap.String("job_id", j.ID.String()),
		zap.Int("trades", len(res.Trades)),
		zap.Int("bars", res.Bars))
}

func (s *server) fail(j *job, err error) {
	s.log.Error("job failed", zap.String("job_id", j.ID.String()), zap.Error(err))
	s.setStatus(j, statusFailed, err.Error())
}

func (s *server) setStatus(j *job, st jobStatus, errMsg string) {
	s.mu.Lock()
	j.Status = st
	j.Error = errMsg
	if st == statusFailed {
		now := time.Now().UTC()
		j.Finished = &now
	}
	s.mu.Unlock()
}

func (s *server) routes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleSubmit)
		api.GET("/backtest/:id", s.handleGet)
		api.GET("/backtest/:id/arrow", s.handleGetArrow)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().Unix()})
	})
}

func (s *server) handleSubmit(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CSVPath == "" && (req.Symbol == "" || req.From == "" || req.To == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv_path or symbol+from+to required"})
		return
	}
	if _, err := paramsFromRequest(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := &job{
		ID:        uuid.New(),
		Status:    statusQueued,
		Symbol:    req.Symbol,
		Submitted: time.Now().UTC(),
		req:       req,
	}
	s.mu.Lock()
	s.store[j.ID] = j
	s.mu.Unlock()

	select {
	case s.jobs <- j:
		c.JSON(http.StatusAccepted, gin.H{"id": j.ID, "status": j.Status})
	default:
		s.setStatus(j, statusFailed, "queue full")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue full"})
	}
}

func (s *server) handleGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	s.mu.RLock()
	j, ok := s.store[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.JSON(http.StatusOK, j)
}

// handleGetArrow streams the closed trades of a finished job as an Arrow IPC
// stream, for columnar consumers that skip the JSON surface.
func (s *server) handleGetArrow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	s.mu.RLock()
	j, ok := s.store[id]
	var trades []*engine.Trade
	var status jobStatus
	if ok {
		status = j.Status
		trades = j.Trades
	}
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	if status != statusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "job not finished", "status": status})
		return
	}
	if len(trades) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run produced no closed trades"})
		return
	}
	payload, err := s.arrow.EncodeTrades(trades)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
}

func paramsFromRequest(req backtestRequest) (engine.Params, error) {
	p := engine.DefaultParams()
	if req.Length != nil {
		p.SetLength(*req.Length)
	}
	if req.UpperThreshold != nil || req.LowerThreshold != nil {
		upper, lower := p.UpperThreshold, p.LowerThreshold
		if req.UpperThreshold != nil {
			upper = *req.UpperThreshold
		}
		if req.LowerThreshold != nil {
			lower = *req.LowerThreshold
		}
		p.SetThresholds(upper, lower)
	}
	if req.WaitBars != nil {
		p.SetWaitBars(*req.WaitBars)
	}
	if req.RewardRatio != nil {
		p.SetRewardRatio(*req.RewardRatio)
	}
	if req.ATRMultiplier != nil {
		p.SetATRMultiplier(*req.ATRMultiplier)
	}
	if req.MaxHoldBars != nil {
		p.SetMaxHoldBars(*req.MaxHoldBars)
	}
	if req.InitialCapital != nil {
		p.SetInitialCapital(*req.InitialCapital)
	}
	if req.MaxRisk != nil {
		p.SetMaxRiskPerTrade(*req.MaxRisk)
	}
	switch strings.ToLower(req.Policy) {
	case "", "signal":
		p.SetPolicy(engine.PolicySignal)
	case "riskreward":
		p.SetPolicy(engine.PolicyRiskReward)
	case "vreversal":
		p.SetPolicy(engine.PolicyVReversal)
	default:
		return p, fmt.Errorf("unknown policy %q", req.Policy)
	}
	return p, nil
}

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newServer(cfg, log)
	srv.start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.routes(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/54b3r/hrassist-go/internal/chunker"
	"github.com/54b3r/hrassist-go/internal/rag"
)

// newReingestCron parses schedule and returns a stopped scheduler that
// rebuilds the index from PolicyDir. Standard five-field expressions and
// descriptors such as "@daily" or "@every 6h" are accepted.
func (s *Server) newReingestCron(ctx context.Context) (*cron.Cron, error) {
	sched, err := cron.ParseStandard(s.cfg.ReingestSchedule)
	if err != nil {
		return nil, &rag.ConfigError{Field: "reingest_schedule", Reason: err.Error()}
	}
	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() { s.reingest(ctx) }))
	return c, nil
}

// reingest rebuilds the index from PolicyDir. A rebuild already in flight,
// scheduled or uploaded, causes this run to be skipped.
func (s *Server) reingest(ctx context.Context) {
	log := s.log.With(slog.String("trigger", "schedule"), slog.String("dir", s.cfg.PolicyDir))
	if !s.ingestMu.TryLock() {
		s.metrics.ingestTotal.WithLabelValues("rejected").Inc()
		log.Warn("reingest: skipped, rebuild already in progress")
		return
	}
	defer s.ingestMu.Unlock()

	report, err := s.rag.Ingest(ctx, []string{s.cfg.PolicyDir}, chunker.Config{})
	s.metrics.ingestTotal.WithLabelValues(outcomeFor(err)).Inc()
	if err != nil {
		log.Error("reingest: rebuild failed, previous index kept", slog.Any("error", err))
		return
	}
	s.metrics.indexEntries.Set(float64(report.Chunks))
	log.Info("reingest: index rebuilt",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("skipped", len(report.Skipped)),
	)
}

// validateSchedule checks the reingest settings without starting anything.
func validateSchedule(cfg *Config) error {
	if cfg.ReingestSchedule == "" {
		return nil
	}
	if cfg.PolicyDir == "" {
		return &rag.ConfigError{Field: "policy_dir", Reason: "required when a reingest schedule is set"}
	}
	if _, err := cron.ParseStandard(cfg.ReingestSchedule); err != nil {
		return &rag.ConfigError{Field: "reingest_schedule", Reason: fmt.Sprintf("%q: %v", cfg.ReingestSchedule, err)}
	}
	return nil
}

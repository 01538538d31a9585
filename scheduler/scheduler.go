package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"stock_monitor/models"
	"stock_monitor/services/monitor"
	"stock_monitor/services/notifier"
)

// retryBatchSize caps how many undelivered alerts a single retry pass
// picks up.
const retryBatchSize = 25

// Scheduler manages the recurring monitoring jobs.
type Scheduler struct {
	cron         *gocron.Scheduler
	orchestrator *monitor.Orchestrator
	recommender  *monitor.RecommendationUpdater
	notifier     notifier.Notifier
	queue        *monitor.AlertQueue
	threshold    float64
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(orch *monitor.Orchestrator, rec *monitor.RecommendationUpdater, n notifier.Notifier, threshold float64) *Scheduler {
	return &Scheduler{
		cron:         gocron.NewScheduler(time.UTC),
		orchestrator: orch,
		recommender:  rec,
		notifier:     n,
		queue:        orch.Queue(),
		threshold:    threshold,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Daily monitoring run after market close
	s.cron.Every(1).Day().At("16:30").Do(func() {
		s.runMonitoring(models.FrequencyDaily)
	})

	// Weekly universe runs on Friday after close
	s.cron.Every(1).Week().Friday().At("17:00").Do(func() {
		s.runMonitoring(models.FrequencyWeekly)
	})

	// Monthly universe runs on the first of the month
	s.cron.Every(1).Month(1).At("17:30").Do(func() {
		s.runMonitoring(models.FrequencyMonthly)
	})

	// Retry undelivered alerts between runs
	s.cron.Every(5).Minutes().Do(func() {
		s.retryAlerts()
	})

	// Refresh analyst recommendations weekly, off-market
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.refreshRecommendations()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// runMonitoring executes one full pipeline pass for the given frequency.
func (s *Scheduler) runMonitoring(frequency string) {
	log.Printf("Scheduled %s monitoring run starting...", frequency)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	stats, err := s.orchestrator.Run(ctx, monitor.RunOptions{
		AlertThreshold: s.threshold,
		AlertsEnabled:  true,
		Frequency:      frequency,
	})
	if err != nil {
		log.Printf("Scheduled %s run failed: %v", frequency, err)
		return
	}

	log.Printf("Scheduled %s run finished: state=%s symbols=%d alerts=%d/%d",
		frequency, stats.State, stats.SymbolsProcessed, stats.AlertsSent, stats.AlertsDetected)
}

// retryAlerts re-delivers alerts that failed or were left pending.
func (s *Scheduler) retryAlerts() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := s.queue.RetryPending(ctx, s.notifier, retryBatchSize)
	if err != nil {
		log.Printf("Alert retry pass failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Alert retry pass delivered %d alerts", n)
	}
}

// refreshRecommendations updates analyst recommendations for the daily universe.
func (s *Scheduler) refreshRecommendations() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.recommender.Refresh(ctx, models.FrequencyDaily); err != nil {
		log.Printf("Recommendation refresh failed: %v", err)
	}
}

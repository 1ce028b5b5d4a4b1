package worker

import (
	"context"
	"errors"
	"time"

	"github.com/zhiyin-next/internal/config"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/provider"
	"github.com/zhiyin-next/internal/queue"

	"github.com/go-co-op/gocron/v2"
	"github.com/hibiken/asynq"
)

// ReviewPartnerLister 列出需要考核的大使
type ReviewPartnerLister interface {
	ListReviewCodes() ([]string, error)
}

// ReviewEnqueuer 年度考核任务投递
type ReviewEnqueuer interface {
	Enabled() bool
	EnqueuePartnerYearEndReview(payload queue.PartnerYearEndReviewPayload, opts ...asynq.Option) error
}

// Scheduler 年度边界调度服务
type Scheduler struct {
	name      string
	cron      string
	location  *time.Location
	partners  ReviewPartnerLister
	enqueuer  ReviewEnqueuer
	reviewer  YearEndReviewer
	scheduler gocron.Scheduler
	now       func() time.Time
}

// NewScheduler 由容器构建调度服务
func NewScheduler(cfg *config.AmbassadorConfig, c *provider.Container) (*Scheduler, error) {
	if cfg == nil || c == nil {
		return nil, errors.New("scheduler dependencies missing")
	}
	var enqueuer ReviewEnqueuer
	if c.QueueClient != nil {
		enqueuer = c.QueueClient
	}
	return newScheduler(cfg.YearEndReview, c.PartnerService, enqueuer, c.PartnerService)
}

func newScheduler(cfg config.YearEndReviewConfig, partners ReviewPartnerLister, enqueuer ReviewEnqueuer, reviewer YearEndReviewer) (*Scheduler, error) {
	if !cfg.Enabled {
		return nil, errors.New("year end review disabled")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		name:     "scheduler",
		cron:     cfg.Cron,
		location: loc,
		partners: partners,
		enqueuer: enqueuer,
		reviewer: reviewer,
		now:      time.Now,
	}, nil
}

// Name 服务名称
func (s *Scheduler) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 启动调度并阻塞至 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("scheduler not initialized")
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(s.location))
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.CronJob(s.cron, false),
		gocron.NewTask(func() {
			year := s.now().In(s.location).Year() - 1
			if _, err := s.RunYearEndReview(context.Background(), year); err != nil {
				logger.Warnw("scheduler_year_end_review_failed", "year", year, "error", err)
			}
		}),
		gocron.WithName("partner_year_end_review"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	s.scheduler = sched
	sched.Start()
	logger.Infow("scheduler_started", "cron", s.cron, "timezone", s.location.String())
	<-ctx.Done()
	return nil
}

// Stop 停止调度
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- s.scheduler.Shutdown()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunYearEndReview 为全部未删除的大使发起指定年度的考核
// 队列可用时逐个投递任务，否则同步执行。
func (s *Scheduler) RunYearEndReview(ctx context.Context, year int) (int, error) {
	codes, err := s.partners.ListReviewCodes()
	if err != nil {
		return 0, err
	}
	useQueue := s.enqueuer != nil && s.enqueuer.Enabled()
	dispatched := 0
	var firstErr error
	for _, code := range codes {
		if useQueue {
			err = s.enqueuer.EnqueuePartnerYearEndReview(queue.PartnerYearEndReviewPayload{PartnerCode: code, Year: year})
		} else if s.reviewer != nil {
			_, err = s.reviewer.ReviewYearEnd(ctx, code, year)
		}
		if err != nil {
			logger.Warnw("scheduler_year_end_review_dispatch_failed", "partner_code", code, "year", year, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		dispatched++
	}
	logger.Infow("scheduler_year_end_review_dispatched", "year", year, "partners", len(codes), "dispatched", dispatched, "queued", useQueue)
	return dispatched, firstErr
}

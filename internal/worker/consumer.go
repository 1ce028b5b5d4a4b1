package worker

import (
	"context"
	"errors"

	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/provider"
	"github.com/zhiyin-next/internal/queue"
	"github.com/zhiyin-next/internal/service"

	"github.com/hibiken/asynq"
)

// YearEndReviewer 年度等级考核执行者
type YearEndReviewer interface {
	ReviewYearEnd(ctx context.Context, code string, year int) (*service.YearEndReviewResult, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	reviewer YearEndReviewer
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil {
		return &Consumer{}
	}
	return &Consumer{reviewer: c.PartnerService}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPartnerYearEndReview, c.handlePartnerYearEndReview)
}

func (c *Consumer) handlePartnerYearEndReview(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.reviewer == nil || task == nil {
		logger.Debugw("worker_year_end_review_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePartnerYearEndReviewPayload(task)
	if err != nil {
		logger.Warnw("worker_year_end_review_unmarshal_failed", "error", err)
		return asynq.SkipRetry
	}
	if payload.PartnerCode == "" || payload.Year <= 0 {
		logger.Debugw("worker_year_end_review_skip_invalid_payload", "partner_code", payload.PartnerCode, "year", payload.Year)
		return nil
	}
	result, err := c.reviewer.ReviewYearEnd(ctx, payload.PartnerCode, payload.Year)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrValidation):
			logger.Debugw("worker_year_end_review_skip", "partner_code", payload.PartnerCode, "year", payload.Year, "error", err)
			return nil
		default:
			logger.Warnw("worker_year_end_review_failed", "partner_code", payload.PartnerCode, "year", payload.Year, "error", err)
			return err
		}
	}
	if result != nil && !result.Applied {
		logger.Debugw("worker_year_end_review_already_done", "partner_code", payload.PartnerCode, "year", payload.Year)
	}
	return nil
}

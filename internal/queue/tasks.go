package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhiyin-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPartnerYearEndReview 大使年度等级考核任务
	TaskPartnerYearEndReview = constants.TaskPartnerYearEndReview
)

// PartnerYearEndReviewPayload 年度考核任务载荷
type PartnerYearEndReviewPayload struct {
	PartnerCode string `json:"partner_code"`
	Year        int    `json:"year"`
}

// TaskID 同一大使同一年度只排一次
func (p PartnerYearEndReviewPayload) TaskID() string {
	return fmt.Sprintf("%s:%s:%d", TaskPartnerYearEndReview, strings.ToUpper(strings.TrimSpace(p.PartnerCode)), p.Year)
}

// NewPartnerYearEndReviewTask 创建年度考核任务
func NewPartnerYearEndReviewTask(payload PartnerYearEndReviewPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPartnerYearEndReview, body), nil
}

// ParsePartnerYearEndReviewPayload 解析年度考核任务载荷
func ParsePartnerYearEndReviewPayload(task *asynq.Task) (PartnerYearEndReviewPayload, error) {
	var payload PartnerYearEndReviewPayload
	if task == nil {
		return payload, fmt.Errorf("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	payload.PartnerCode = strings.ToUpper(strings.TrimSpace(payload.PartnerCode))
	return payload, nil
}

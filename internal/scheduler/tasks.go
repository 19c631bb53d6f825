// Package scheduler defines the asynq task types that defer work
// beyond a request: admission-denied retries, batch sends, transcript
// enrichment retries and the daily digest.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSendBatch = "outreach.send_batch"

const TaskRetryItem = "outreach.retry_item"

const TaskDailyDigest = "notify.daily_digest"

const TaskEnrichmentRetry = "transcripts.retry_enrichment"

type SendBatchPayload struct {
	Channel     string   `json:"channel"`
	OutreachIDs []string `json:"outreachIds"`
}

type RetryItemPayload struct {
	OutreachID string `json:"outreachId"`
}

type EnrichmentRetryPayload struct {
	MeetingID string `json:"meetingId"`
}

func NewSendBatchTask(payload SendBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendBatch, data), nil
}

func ParseSendBatchPayload(task *asynq.Task) (SendBatchPayload, error) {
	var payload SendBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SendBatchPayload{}, err
	}
	return payload, nil
}

func NewRetryItemTask(payload RetryItemPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetryItem, data), nil
}

func ParseRetryItemPayload(task *asynq.Task) (RetryItemPayload, error) {
	var payload RetryItemPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RetryItemPayload{}, err
	}
	return payload, nil
}

func NewDailyDigestTask() *asynq.Task {
	return asynq.NewTask(TaskDailyDigest, nil)
}

func NewEnrichmentRetryTask(payload EnrichmentRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEnrichmentRetry, data), nil
}

func ParseEnrichmentRetryPayload(task *asynq.Task) (EnrichmentRetryPayload, error) {
	var payload EnrichmentRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EnrichmentRetryPayload{}, err
	}
	return payload, nil
}

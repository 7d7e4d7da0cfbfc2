package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retreat/internal/domain"
	"retreat/internal/metrics"
	"retreat/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskDelete       = "delete"
	TaskUpdateStatus = "update_status"
	TaskAppendForm   = "append_form"
)

const (
	syncPending   = "pending"
	syncRetry     = "retry"
	syncCompleted = "completed"
	syncFailed    = "failed"
)

// taskPayload is persisted in SyncTask.Payload as JSON.
type taskPayload struct {
	ReservationID int64                  `json:"reservation_id,omitempty"`
	Reservation   *models.Reservation    `json:"reservation,omitempty"`
	Status        string                 `json:"status,omitempty"`
	Form          *models.FormSubmission `json:"form,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and applies them to Google Sheets.
type SheetsWorker struct {
	repo          domain.SyncQueueRepository
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults. redisClient may be nil.
func NewSheetsWorker(repo domain.SyncQueueRepository, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		repo:          repo,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory
// queue. payload is a *models.Reservation for upsert, a status string for
// update_status and a *models.FormSubmission for append_form.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, reservationID int64, payload interface{}) error {
	p, err := buildPayload(taskType, reservationID, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:      taskType,
		ReservationID: p.ReservationID,
		Payload:       string(raw),
		Status:        syncPending,
	}
	if err := w.repo.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("Memory queue full, task left to polling")
	}
	return nil
}

func buildPayload(taskType string, reservationID int64, payload interface{}) (taskPayload, error) {
	p := taskPayload{ReservationID: reservationID}

	switch taskType {
	case TaskUpsert:
		r, ok := payload.(*models.Reservation)
		if !ok || r == nil {
			return p, errors.New("upsert requires a reservation payload")
		}
		p.Reservation = r
		if p.ReservationID == 0 {
			p.ReservationID = r.ID
		}
	case TaskUpdateStatus:
		status, ok := payload.(string)
		if !ok || status == "" {
			return p, errors.New("update_status requires a status payload")
		}
		p.Status = status
	case TaskDelete:
	case TaskAppendForm:
		f, ok := payload.(*models.FormSubmission)
		if !ok || f == nil {
			return p, errors.New("append_form requires a form payload")
		}
		p.Form = f
		return p, nil
	case "":
		return p, errors.New("task type is required")
	default:
		return p, fmt.Errorf("unknown task type: %s", taskType)
	}

	if p.ReservationID == 0 {
		return p, errors.New("reservation id is required")
	}
	return p, nil
}

// Start runs the main loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Sheets worker started")
	defer w.logger.Info().Msg("Sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.repo.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending sync tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSheetTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, syncCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark sync task completed")
	}
	metrics.IncSync("success")
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, p taskPayload) error {
	switch taskType {
	case TaskUpsert:
		if p.Reservation == nil {
			return errors.New("reservation payload missing")
		}
		return w.sheets.UpsertReservation(ctx, p.Reservation)
	case TaskDelete:
		if p.ReservationID == 0 {
			return errors.New("reservation id missing")
		}
		return w.sheets.DeleteReservationRow(ctx, p.ReservationID)
	case TaskUpdateStatus:
		if p.ReservationID == 0 || p.Status == "" {
			return errors.New("reservation id or status missing")
		}
		return w.sheets.UpdateReservationStatus(ctx, p.ReservationID, p.Status)
	case TaskAppendForm:
		if p.Form == nil {
			return errors.New("form payload missing")
		}
		return w.sheets.AppendForm(ctx, p.Form)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, syncRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark sync task for retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("Sheets sync failed, will retry")
	metrics.IncSync("retry")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.repo.UpdateSyncTaskStatus(ctx, task.ID, syncFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark sync task failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("Sheets sync task failed")
	w.pushDeadLetter(ctx, task)
	metrics.IncSync("failed")
}

func decodePayload(raw string) (taskPayload, error) {
	var p taskPayload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}

type failedTaskLister interface {
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// DeadLetters returns up to limit failed tasks parked in redis, newest first.
// Without redis the failed rows of the sync queue are listed instead.
func (w *SheetsWorker) DeadLetters(ctx context.Context, limit int64) ([]models.SyncTask, error) {
	if w.redis == nil {
		lister, ok := w.repo.(failedTaskLister)
		if !ok {
			return nil, nil
		}
		tasks, err := lister.GetFailedSyncTasks(ctx)
		if err != nil {
			return nil, err
		}
		if int64(len(tasks)) > limit {
			tasks = tasks[:limit]
		}
		return tasks, nil
	}
	raw, err := w.redis.LRange(ctx, w.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]models.SyncTask, 0, len(raw))
	for _, item := range raw {
		var t models.SyncTask
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

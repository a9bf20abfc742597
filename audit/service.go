package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry holds one audit record to be written.
type Entry struct {
	GuildID        int64
	Action         string
	ActorIdentity  int64
	TargetIdentity int64
	Amount         int64
	Reason         string
	Detail         interface{}
}

// FromEvent maps a guild event to an audit entry.
func FromEvent(ev hook.Event) Entry {
	detail := map[string]interface{}{}
	if ev.GuildName != "" {
		detail["guild"] = ev.GuildName
	}
	if ev.Detail != "" {
		detail["detail"] = ev.Detail
	}
	if ev.Level != 0 {
		detail["level"] = ev.Level
	}
	if ev.Kind == hook.BankChanged || ev.Kind == hook.UpgradePurchased {
		detail["balance"] = ev.Balance
	}
	if ev.RankPriority != 0 {
		detail["rank_priority"] = ev.RankPriority
	}
	return Entry{
		GuildID:        ev.GuildID,
		Action:         string(ev.Kind),
		ActorIdentity:  ev.ActorIdentity,
		TargetIdentity: ev.Identity,
		Amount:         ev.Amount,
		Reason:         ev.Reason,
		Detail:         detail,
	}
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
	sub      *hook.Subscription
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Attach records every event published on bus.
func (svc *Service) Attach(bus *hook.Bus) {
	svc.sub = bus.Subscribe(hook.Any, 900, "audit", func(_ context.Context, ev hook.Event) {
		svc.Log(FromEvent(ev))
	})
}

// Log enqueues an audit entry for async DB write.
func (svc *Service) Log(entry Entry) {
	detailJSON, _ := json.Marshal(entry.Detail)
	record := &model.AuditLog{
		GuildID:        entry.GuildID,
		Action:         entry.Action,
		ActorIdentity:  entry.ActorIdentity,
		TargetIdentity: entry.TargetIdentity,
		Amount:         entry.Amount,
		Reason:         entry.Reason,
		Detail:         datatypes.JSON(detailJSON),
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action), zap.Int64("guild_id", entry.GuildID))
	}
}

// Recent returns the newest records for a guild, or for all guilds when
// guildID is 0.
func (svc *Service) Recent(ctx context.Context, guildID int64, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if guildID != 0 {
		q = q.Where("guild_id = ?", guildID)
	}
	var logs []model.AuditLog
	return logs, q.Find(&logs).Error
}

// Stop detaches from the bus, flushes remaining entries and shuts down the
// worker. It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() {
		if svc.sub != nil {
			svc.sub.Unsubscribe()
		}
		close(svc.stopCh)
	})
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

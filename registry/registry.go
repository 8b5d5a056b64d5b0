package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Registry 投票注册表，拥有全部投票及其选项
type Registry interface {
	Create(ctx context.Context, draft Draft) (*models.Poll, error)
	Find(ctx context.Context, id string) (*models.Poll, error)
	List(ctx context.Context, filter Filter) ([]models.Poll, error)
	Publish(ctx context.Context, id string) (*models.Poll, error)
	Close(ctx context.Context, id string) (*models.Poll, error)
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Stats 管理面板的汇总数据
type Stats struct {
	TotalPolls int64 `json:"total_polls"`
	TotalVotes int64 `json:"total_votes"`
	Active     int64 `json:"active"`
	Draft      int64 `json:"draft"`
	Closed     int64 `json:"closed"`
}

// Draft 创建投票的输入
type Draft struct {
	Title               string
	Description         string
	CreatedBy           string
	StartDate           *time.Time
	EndDate             *time.Time
	Options             []OptionDraft
	VotingMethod        models.VotingMethod
	AllowAnonymous      bool
	RequireVerification bool
	// Status 为空时默认active，也可以显式指定draft
	Status       models.PollStatus
	Constituency string
	ElectionType string
}

type OptionDraft struct {
	Text  string
	Party string
	Bio   string
}

// GormRegistry 基于GORM的注册表实现
type GormRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db, now: time.Now}
}

// Create 校验草稿，分配标识符并持久化
func (r *GormRegistry) Create(ctx context.Context, draft Draft) (*models.Poll, error) {
	poll, err := r.build(draft)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Create(poll).Error; err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}

	logging.For("registry", "Create").WithFields(logrus.Fields{
		"poll_id": poll.ID,
		"status":  poll.Status,
		"options": len(poll.Options),
	}).Info("投票创建成功")
	return poll, nil
}

func (r *GormRegistry) build(draft Draft) (*models.Poll, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, invalid("title is required")
	}

	status := draft.Status
	if status == "" {
		status = models.StatusActive
	}
	if status != models.StatusActive && status != models.StatusDraft {
		return nil, invalid("new polls must be draft or active")
	}

	method := draft.VotingMethod
	if method == "" {
		method = models.SingleChoice
	}
	if !method.Valid() {
		return nil, invalid("unknown voting method")
	}

	start := r.now()
	if draft.StartDate != nil {
		start = *draft.StartDate
	}
	if draft.EndDate != nil && draft.EndDate.Before(start) {
		return nil, invalid("end date is before start date")
	}

	id := uuid.NewString()
	options := make([]models.PollOption, 0, len(draft.Options))
	for _, od := range draft.Options {
		text := strings.TrimSpace(od.Text)
		if text == "" {
			continue
		}
		options = append(options, models.PollOption{
			ID:       uuid.NewString(),
			PollID:   id,
			Position: len(options),
			Text:     text,
			Party:    strings.TrimSpace(od.Party),
			Bio:      strings.TrimSpace(od.Bio),
		})
	}
	// 草稿可以少于两个选项，发布时再检查
	if status != models.StatusDraft && len(options) < 2 {
		return nil, models.ErrInvalidPoll
	}

	return &models.Poll{
		ID:                  id,
		Title:               title,
		Description:         strings.TrimSpace(draft.Description),
		CreatedBy:           draft.CreatedBy,
		StartDate:           start,
		EndDate:             draft.EndDate,
		Options:             options,
		VotingMethod:        method,
		AllowAnonymous:      draft.AllowAnonymous,
		RequireVerification: draft.RequireVerification,
		Status:              status,
		Constituency:        strings.TrimSpace(draft.Constituency),
		ElectionType:        strings.TrimSpace(draft.ElectionType),
	}, nil
}

// Find 按ID精确查找，不存在时返回nil
func (r *GormRegistry) Find(ctx context.Context, id string) (*models.Poll, error) {
	var poll *models.Poll
	// 在读事务中加载，保证投票和选项是同一快照
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := LoadPoll(tx, id)
		poll = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// LoadPoll 在给定事务内加载投票及有序选项
func LoadPoll(tx *gorm.DB, id string) (*models.Poll, error) {
	var poll models.Poll
	err := tx.Preload("Options", orderedOptions).Where("id = ?", id).First(&poll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}
	return &poll, nil
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// List 按过滤条件列出投票
func (r *GormRegistry) List(ctx context.Context, filter Filter) ([]models.Poll, error) {
	var polls []models.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := filter.apply(tx.Model(&models.Poll{}))
		return q.Preload("Options", orderedOptions).Find(&polls).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	return polls, nil
}

// Publish 草稿 -> 进行中，需要至少两个选项
func (r *GormRegistry) Publish(ctx context.Context, id string) (*models.Poll, error) {
	return r.transition(ctx, "Publish", id, func(p *models.Poll) error {
		if p.Status != models.StatusDraft {
			return models.ErrInvalidTransition
		}
		if len(p.Options) < 2 {
			return models.ErrInvalidPoll
		}
		p.Status = models.StatusActive
		return nil
	})
}

// Close 进行中 -> 已关闭
func (r *GormRegistry) Close(ctx context.Context, id string) (*models.Poll, error) {
	return r.transition(ctx, "Close", id, func(p *models.Poll) error {
		if p.Status != models.StatusActive {
			return models.ErrInvalidTransition
		}
		p.Status = models.StatusClosed
		return nil
	})
}

func (r *GormRegistry) transition(ctx context.Context, method, id string, apply func(*models.Poll) error) (*models.Poll, error) {
	var poll *models.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := LoadPoll(tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return models.ErrPollNotFound
		}
		if err := apply(p); err != nil {
			return err
		}
		if err := tx.Model(&models.Poll{}).Where("id = ?", p.ID).Update("status", p.Status).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		poll = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.For("registry", method).WithFields(logrus.Fields{"poll_id": id, "status": poll.Status}).Info("投票状态已更新")
	return poll, nil
}

// CloseExpired 将已过截止时间的进行中投票标记为已关闭
func (r *GormRegistry) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Poll{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.StatusActive, now).
		Update("status", models.StatusClosed)
	if res.Error != nil {
		return 0, fmt.Errorf("close expired polls: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logging.For("registry", "CloseExpired").WithField("count", res.RowsAffected).Info("已关闭过期投票")
	}
	return res.RowsAffected, nil
}

// Stats 按存储状态统计投票数量和总票数
func (r *GormRegistry) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Status models.PollStatus
		Polls  int64
		Votes  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Poll{}).
		Select("status, COUNT(*) AS polls, COALESCE(SUM(total_votes), 0) AS votes").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("poll stats: %w", err)
	}

	stats := &Stats{}
	for _, row := range rows {
		stats.TotalPolls += row.Polls
		stats.TotalVotes += row.Votes
		switch row.Status {
		case models.StatusActive:
			stats.Active = row.Polls
		case models.StatusDraft:
			stats.Draft = row.Polls
		case models.StatusClosed:
			stats.Closed = row.Polls
		}
	}
	return stats, nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidPoll, reason)
}

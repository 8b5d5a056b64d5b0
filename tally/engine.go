package tally

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/registry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier 接收每次计票后的投票快照
type Notifier interface {
	PollUpdated(poll *models.Poll)
}

// MarkerStore 已投票标记的快速路径缓存
type MarkerStore interface {
	HasVoted(ctx context.Context, pollID, userID string) (bool, error)
	MarkVoted(ctx context.Context, pollID, userID string) error
}

// BallotRequest 一次投票提交
type BallotRequest struct {
	Selections []string
	// Ranking 为排序投票预留
	Ranking   map[string]int
	Anonymous bool
}

// Receipt 计票成功后的结果
type Receipt struct {
	Poll   *models.Poll
	Ballot *models.Ballot
}

// Engine 计票引擎，所有选项计数和总票数只通过SubmitBallot修改
type Engine struct {
	db       *gorm.DB
	locker   Locker
	markers  MarkerStore
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithMarkers(m MarkerStore) Option {
	return func(e *Engine) { e.markers = m }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithTimeout 单次提交的超时时间，超时映射为SubmissionFailed
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		locker:  NewLocalLocker(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now 引擎使用的当前时间
func (e *Engine) Now() time.Time {
	return e.now()
}

// SubmitBallot 校验并记录一张选票，返回更新后的投票快照
func (e *Engine) SubmitBallot(ctx context.Context, pollID, userID string, req BallotRequest) (*Receipt, error) {
	log := logging.For("tally", "SubmitBallot").WithFields(logrus.Fields{"poll_id": pollID, "user_id": userID})

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// 锁外预检查，尽早拒绝无效请求
	poll, err := e.snapshot(ctx, pollID)
	if err != nil {
		return nil, submissionFailed(err)
	}
	if poll == nil {
		return nil, models.ErrPollNotFound
	}
	if err := precheck(poll, req, e.now()); err != nil {
		return nil, err
	}
	if e.markers != nil {
		voted, err := e.markers.HasVoted(ctx, pollID, userID)
		if err != nil {
			log.WithError(err).Debug("已投票标记查询失败，回退数据库")
		} else if voted {
			return nil, models.ErrAlreadyVoted
		}
	}

	var receipt *Receipt
	err = e.locker.WithLock(ctx, "poll:"+pollID, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, err := e.apply(tx, pollID, userID, req)
			receipt = r
			return err
		})
	})
	if err != nil {
		var domainErr *models.Error
		if errors.As(err, &domainErr) {
			log.WithField("code", domainErr.Code).Info("选票被拒绝")
			return nil, err
		}
		log.WithError(err).Error("选票记录失败")
		return nil, submissionFailed(err)
	}

	if e.markers != nil {
		// 使用独立上下文，提交已经完成
		if err := e.markers.MarkVoted(context.Background(), pollID, userID); err != nil {
			log.WithError(err).Debug("写入已投票标记失败")
		}
	}
	if e.notifier != nil {
		e.notifier.PollUpdated(receipt.Poll)
	}

	log.WithField("total_votes", receipt.Poll.TotalVotes).Info("选票已记录")
	return receipt, nil
}

func (e *Engine) snapshot(ctx context.Context, pollID string) (*models.Poll, error) {
	var poll *models.Poll
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := registry.LoadPoll(tx, pollID)
		poll = p
		return err
	})
	return poll, err
}

// apply 在锁和事务内重新读取投票、完整校验并原子地更新计数
func (e *Engine) apply(tx *gorm.DB, pollID, userID string, req BallotRequest) (*Receipt, error) {
	poll, err := registry.LoadPoll(tx, pollID)
	if err != nil {
		return nil, err
	}
	if poll == nil {
		return nil, models.ErrPollNotFound
	}
	now := e.now()
	if err := precheck(poll, req, now); err != nil {
		return nil, err
	}

	var prior int64
	if err := tx.Model(&models.Ballot{}).Where("poll_id = ? AND user_id = ?", pollID, userID).Count(&prior).Error; err != nil {
		return nil, err
	}
	if prior > 0 {
		return nil, models.ErrAlreadyVoted
	}

	if err := checkSelections(poll, req.Selections); err != nil {
		return nil, err
	}

	ballot := &models.Ballot{
		ID:         uuid.NewString(),
		PollID:     pollID,
		UserID:     userID,
		Selections: append([]string(nil), req.Selections...),
		Anonymous:  req.Anonymous,
		CreatedAt:  now,
	}
	if poll.RequireVerification {
		ballot.VerificationCode = newVerificationCode()
	}
	if err := tx.Create(ballot).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrAlreadyVoted
		}
		return nil, fmt.Errorf("insert ballot: %w", err)
	}

	for _, optionID := range req.Selections {
		res := tx.Model(&models.PollOption{}).
			Where("id = ? AND poll_id = ?", optionID, pollID).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1))
		if res.Error != nil {
			return nil, fmt.Errorf("increment option: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return nil, fmt.Errorf("increment option %s: %d rows affected", optionID, res.RowsAffected)
		}
	}

	// 每张选票总票数只加一，与选择数量无关
	res := tx.Model(&models.Poll{}).Where("id = ?", pollID).UpdateColumn("total_votes", gorm.Expr("total_votes + ?", 1))
	if res.Error != nil {
		return nil, fmt.Errorf("increment total: %w", res.Error)
	}

	updated, err := registry.LoadPoll(tx, pollID)
	if err != nil {
		return nil, err
	}
	return &Receipt{Poll: updated, Ballot: ballot}, nil
}

// precheck 不依赖用户历史的校验，顺序即错误优先级
func precheck(poll *models.Poll, req BallotRequest, now time.Time) error {
	if !Votable(poll, now) {
		return models.ErrPollNotVotable
	}
	empty := len(req.Selections) == 0
	if poll.VotingMethod == models.RankedChoice {
		empty = empty && len(req.Ranking) == 0
	}
	if empty {
		return models.ErrEmptySelection
	}
	if poll.VotingMethod == models.RankedChoice {
		return models.ErrUnsupportedMethod
	}
	if req.Anonymous && !poll.AllowAnonymous {
		return models.ErrAnonymousNotAllowed
	}
	return nil
}

func checkSelections(poll *models.Poll, selections []string) error {
	if len(selections) == 0 {
		return models.ErrEmptySelection
	}
	switch poll.VotingMethod {
	case models.SingleChoice:
		if len(selections) != 1 {
			return models.ErrTooManySelections
		}
	case models.MultipleChoice:
		seen := make(map[string]bool, len(selections))
		for _, id := range selections {
			if seen[id] {
				return models.ErrDuplicateSelection
			}
			seen[id] = true
		}
	default:
		return models.ErrUnsupportedMethod
	}
	for _, id := range selections {
		if poll.Option(id) == nil {
			return models.ErrUnknownOption
		}
	}
	return nil
}

func newVerificationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func submissionFailed(err error) error {
	return fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
}

package registry

import (
	"context"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
)

// IDFilter 概率型存在性判断，用于拦截从未创建过的投票ID
type IDFilter interface {
	Add(ctx context.Context, item string) error
	MightContain(ctx context.Context, item string) (bool, error)
	MarkReady(ctx context.Context) error
}

// CachedRegistry 在注册表前加一层布隆过滤器，防止缓存穿透式的无效查询
type CachedRegistry struct {
	Registry
	filter IDFilter
}

// NewCachedRegistry filter为nil时直接透传
func NewCachedRegistry(inner Registry, filter IDFilter) *CachedRegistry {
	return &CachedRegistry{Registry: inner, filter: filter}
}

// Create 写入数据库后更新布隆过滤器
func (r *CachedRegistry) Create(ctx context.Context, draft Draft) (*models.Poll, error) {
	poll, err := r.Registry.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	if r.filter != nil {
		if err := r.filter.Add(ctx, poll.ID); err != nil {
			// 过滤器错误只记录日志，不影响返回结果
			logging.For("registry", "CachedRegistry.Create").WithError(err).Warn("更新布隆过滤器失败")
		}
	}
	return poll, nil
}

// Find 布隆过滤器判定不存在时直接返回nil
func (r *CachedRegistry) Find(ctx context.Context, id string) (*models.Poll, error) {
	if r.filter != nil {
		ok, err := r.filter.MightContain(ctx, id)
		if err == nil && !ok {
			return nil, nil
		}
		if err != nil {
			logging.For("registry", "CachedRegistry.Find").WithError(err).Debug("布隆过滤器不可用，回退数据库")
		}
	}
	return r.Registry.Find(ctx, id)
}

// Prewarm 将已有投票ID写入布隆过滤器并标记就绪
func (r *CachedRegistry) Prewarm(ctx context.Context) error {
	if r.filter == nil {
		return nil
	}
	polls, err := r.Registry.List(ctx, Filter{})
	if err != nil {
		return err
	}
	for _, p := range polls {
		if err := r.filter.Add(ctx, p.ID); err != nil {
			return err
		}
	}
	if err := r.filter.MarkReady(ctx); err != nil {
		return err
	}
	logging.For("registry", "Prewarm").WithField("polls", len(polls)).Info("布隆过滤器预热完成")
	return nil
}

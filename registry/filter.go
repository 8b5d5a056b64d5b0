package registry

import (
	"strings"

	"electrafusion-backend/models"

	"gorm.io/gorm"
)

// SortOrder 列表排序方式
type SortOrder string

const (
	SortInsertion  SortOrder = ""
	SortRecent     SortOrder = "recent"
	SortPopular    SortOrder = "popular"
	SortEndingSoon SortOrder = "ending_soon"
)

func (s SortOrder) Valid() bool {
	switch s {
	case SortInsertion, SortRecent, SortPopular, SortEndingSoon:
		return true
	}
	return false
}

// Filter 列表过滤条件，零值表示返回全部投票
type Filter struct {
	Statuses []models.PollStatus
	// Search 对标题、描述、选区做不区分大小写的子串匹配
	Search       string
	ElectionType string
	Constituency string
	Sort         SortOrder
	Limit        int
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		q = q.Where("(INSTR(LOWER(title), ?) > 0 OR INSTR(LOWER(description), ?) > 0 OR INSTR(LOWER(constituency), ?) > 0)", s, s, s)
	}
	if f.ElectionType != "" {
		q = q.Where("election_type = ?", f.ElectionType)
	}
	if c := strings.ToLower(strings.TrimSpace(f.Constituency)); c != "" {
		q = q.Where("INSTR(LOWER(constituency), ?) > 0", c)
	}

	switch f.Sort {
	case SortRecent:
		q = q.Order("created_at DESC").Order("seq DESC")
	case SortPopular:
		q = q.Order("total_votes DESC").Order("seq ASC")
	case SortEndingSoon:
		// 没有截止时间的投票不参与排序，直接排除
		q = q.Where("end_date IS NOT NULL").Order("end_date ASC").Order("seq ASC")
	default:
		q = q.Order("seq ASC")
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

package tally

import (
	"fmt"
	"time"

	"electrafusion-backend/models"
)

// Votable 有效可投票状态：状态为active且处于[开始, 截止]区间内
// 每次访问重新计算，不缓存
func Votable(poll *models.Poll, now time.Time) bool {
	if poll.Status != models.StatusActive {
		return false
	}
	if now.Before(poll.StartDate) {
		return false
	}
	return poll.EndDate == nil || !now.After(*poll.EndDate)
}

// LeadingOption 票数最多的选项，平票时取存储顺序中的第一个
func LeadingOption(poll *models.Poll) *models.PollOption {
	var leading *models.PollOption
	for i := range poll.Options {
		if leading == nil || poll.Options[i].Votes > leading.Votes {
			leading = &poll.Options[i]
		}
	}
	return leading
}

// Percentage 选项得票占总选票的百分比，四舍五入(0.5向上)
func Percentage(option *models.PollOption, poll *models.Poll) int64 {
	if poll.TotalVotes <= 0 {
		return 0
	}
	return (option.Votes*200 + poll.TotalVotes) / (2 * poll.TotalVotes)
}

// TimeRemaining 距截止时间的剩余时间描述
// 非active或没有截止时间时返回nil
func TimeRemaining(poll *models.Poll, now time.Time) *string {
	if poll.Status != models.StatusActive || poll.EndDate == nil {
		return nil
	}

	var s string
	diff := poll.EndDate.Sub(now)
	switch {
	case diff <= 0:
		s = "Ended"
	case diff >= 24*time.Hour:
		s = plural(int64(diff/(24*time.Hour)), "day")
	case diff >= time.Hour:
		s = plural(int64(diff/time.Hour), "hour")
	default:
		s = plural(int64(diff/time.Minute), "minute")
	}
	return &s
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s left", unit)
	}
	return fmt.Sprintf("%d %ss left", n, unit)
}

// OptionResult 单个选项的统计结果
type OptionResult struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Party      string `json:"party,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Votes      int64  `json:"votes"`
	Percentage int64  `json:"percentage"`
}

// Results 投票的派生统计视图
type Results struct {
	PollID        string            `json:"poll_id"`
	Title         string            `json:"title"`
	Status        models.PollStatus `json:"status"`
	Votable       bool              `json:"votable"`
	VotingMethod  string            `json:"voting_method"`
	TotalVotes    int64             `json:"total_votes"`
	Options       []OptionResult    `json:"options"`
	Leading       *OptionResult     `json:"leading_option"`
	TimeRemaining *string           `json:"time_remaining"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// Summarize 根据投票快照计算统计结果
func Summarize(poll *models.Poll, now time.Time) Results {
	res := Results{
		PollID:        poll.ID,
		Title:         poll.Title,
		Status:        poll.Status,
		Votable:       Votable(poll, now),
		VotingMethod:  string(poll.VotingMethod),
		TotalVotes:    poll.TotalVotes,
		Options:       make([]OptionResult, len(poll.Options)),
		TimeRemaining: TimeRemaining(poll, now),
		ComputedAt:    now,
	}
	for i := range poll.Options {
		o := &poll.Options[i]
		res.Options[i] = OptionResult{
			ID:         o.ID,
			Text:       o.Text,
			Party:      o.Party,
			Bio:        o.Bio,
			Votes:      o.Votes,
			Percentage: Percentage(o, poll),
		}
	}
	if lead := LeadingOption(poll); lead != nil {
		for i := range res.Options {
			if res.Options[i].ID == lead.ID {
				res.Leading = &res.Options[i]
				break
			}
		}
	}
	return res
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/registry"
	"electrafusion-backend/tally"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxListLimit = 200

// CreatePollInput defines the expected input structure for creating a poll
type CreatePollInput struct {
	Title               string              `json:"title" binding:"max=200"`
	Description         string              `json:"description" binding:"max=2000"`
	StartDate           *time.Time          `json:"start_date"`
	EndDate             *time.Time          `json:"end_date"`
	Options             []CreateOptionInput `json:"options" binding:"max=50,dive"`
	VotingMethod        models.VotingMethod `json:"voting_method"`
	AllowAnonymous      bool                `json:"allow_anonymous"`
	RequireVerification bool                `json:"require_verification"`
	Status              models.PollStatus   `json:"status"`
	Constituency        string              `json:"constituency" binding:"max=200"`
	ElectionType        string              `json:"election_type" binding:"max=50"`
}

// CreateOptionInput defines the structure for options when creating a poll
type CreateOptionInput struct {
	Text  string `json:"text" binding:"max=200"`
	Party string `json:"party,omitempty" binding:"max=200"`
	Bio   string `json:"bio,omitempty" binding:"max=2000"`
}

func (in CreatePollInput) draft(createdBy string) registry.Draft {
	d := registry.Draft{
		Title:               in.Title,
		Description:         in.Description,
		CreatedBy:           createdBy,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		VotingMethod:        in.VotingMethod,
		AllowAnonymous:      in.AllowAnonymous,
		RequireVerification: in.RequireVerification,
		Status:              in.Status,
		Constituency:        in.Constituency,
		ElectionType:        in.ElectionType,
	}
	for _, o := range in.Options {
		d.Options = append(d.Options, registry.OptionDraft{Text: o.Text, Party: o.Party, Bio: o.Bio})
	}
	return d
}

type PollHandler struct {
	polls  registry.Registry
	engine *tally.Engine
}

func NewPollHandler(polls registry.Registry, engine *tally.Engine) *PollHandler {
	return &PollHandler{polls: polls, engine: engine}
}

// parseFilter 解析列表查询参数
func parseFilter(c *gin.Context) (registry.Filter, error) {
	f := registry.Filter{
		Search:       c.Query("q"),
		ElectionType: c.Query("electionType"),
		Constituency: c.Query("constituency"),
		Sort:         registry.SortOrder(c.Query("sort")),
	}

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.PollStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return f, fmt.Errorf("unknown status %q", s)
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if !f.Sort.Valid() {
		return f, fmt.Errorf("unknown sort order %q", f.Sort)
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		f.Limit = n
	}
	return f, nil
}

// GetPolls handles GET /api/polls
func (h *PollHandler) GetPolls(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		abortInvalidRequest(c, err)
		return
	}

	polls, err := h.polls.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if polls == nil {
		polls = []models.Poll{}
	}
	c.JSON(http.StatusOK, polls)
}

// findPoll 查找投票，不存在时写入404并返回nil
func (h *PollHandler) findPoll(c *gin.Context) *models.Poll {
	poll, err := h.polls.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil
	}
	if poll == nil {
		abortWithError(c, models.ErrPollNotFound)
		return nil
	}
	return poll
}

// GetPoll handles GET /api/polls/:id
func (h *PollHandler) GetPoll(c *gin.Context) {
	poll := h.findPoll(c)
	if poll == nil {
		return
	}
	c.JSON(http.StatusOK, poll)
}

// GetResults handles GET /api/polls/:id/results
func (h *PollHandler) GetResults(c *gin.Context) {
	poll := h.findPoll(c)
	if poll == nil {
		return
	}
	c.JSON(http.StatusOK, tally.Summarize(poll, h.engine.Now()))
}

// GetStats handles GET /api/polls/stats (admin only)
func (h *PollHandler) GetStats(c *gin.Context) {
	stats, err := h.polls.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CreatePoll handles POST /api/polls (admin only)
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	user := currentUser(c)
	poll, err := h.polls.Create(c.Request.Context(), input.draft(user.ID))
	if err != nil {
		abortWithError(c, err)
		return
	}

	logging.For("handlers", "CreatePoll").WithFields(logrus.Fields{
		"poll_id":    poll.ID,
		"created_by": user.ID,
		"status":     poll.Status,
	}).Info("投票已创建")
	c.JSON(http.StatusCreated, poll)
}

// PublishPoll handles POST /api/polls/:id/publish (admin only)
func (h *PollHandler) PublishPoll(c *gin.Context) {
	poll, err := h.polls.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// ClosePoll handles POST /api/polls/:id/close (admin only)
func (h *PollHandler) ClosePoll(c *gin.Context) {
	poll, err := h.polls.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

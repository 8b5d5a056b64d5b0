package handlers

import (
	"net/http"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/tally"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BallotInput is the body of POST /api/polls/:id/ballots
type BallotInput struct {
	Selections []string       `json:"selections"`
	Ranking    map[string]int `json:"ranking,omitempty"`
	Anonymous  bool           `json:"anonymous"`
}

// BallotResponse 投票成功后返回的更新后的投票、选票和统计结果
type BallotResponse struct {
	Poll    *models.Poll   `json:"poll"`
	Ballot  *models.Ballot `json:"ballot"`
	Results tally.Results  `json:"results"`
}

// SubmitBallot handles POST /api/polls/:id/ballots
func (h *PollHandler) SubmitBallot(c *gin.Context) {
	var input BallotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	user := currentUser(c)
	pollID := c.Param("id")
	log := logging.For("handlers", "SubmitBallot").WithFields(logrus.Fields{
		"poll_id": pollID,
		"user_id": user.ID,
	})

	receipt, err := h.engine.SubmitBallot(c.Request.Context(), pollID, user.ID, tally.BallotRequest{
		Selections: input.Selections,
		Ranking:    input.Ranking,
		Anonymous:  input.Anonymous,
	})
	if err != nil {
		log.WithError(err).Debug("选票被拒绝")
		abortWithError(c, err)
		return
	}

	log.WithField("total_votes", receipt.Poll.TotalVotes).Info("选票已记录")
	c.JSON(http.StatusCreated, BallotResponse{
		Poll:    receipt.Poll,
		Ballot:  receipt.Ballot,
		Results: tally.Summarize(receipt.Poll, h.engine.Now()),
	})
}

package tally

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"electrafusion-backend/models"
	"electrafusion-backend/registry"
	"electrafusion-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func ts(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

type fixture struct {
	db     *gorm.DB
	reg    *registry.GormRegistry
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	db := testutil.NewDB(t)
	opts = append([]Option{WithClock(clock)}, opts...)
	return &fixture{db: db, reg: registry.NewGormRegistry(db), engine: NewEngine(db, opts...)}
}

func (f *fixture) poll(t *testing.T, d registry.Draft) *models.Poll {
	t.Helper()
	if d.Title == "" {
		d.Title = "Test poll"
	}
	if d.Options == nil {
		d.Options = []registry.OptionDraft{{Text: "A"}, {Text: "B"}, {Text: "C"}}
	}
	if d.StartDate == nil {
		d.StartDate = ts(-time.Hour)
	}
	p, err := f.reg.Create(context.Background(), d)
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, id string) *models.Poll {
	t.Helper()
	p, err := f.reg.Find(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *fixture) ballots(t *testing.T, pollID string) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.Ballot{}).Where("poll_id = ?", pollID).Count(&n).Error)
	return n
}

func assertUnchanged(t *testing.T, f *fixture, before *models.Poll) {
	t.Helper()
	after := f.reload(t, before.ID)
	assert.Equal(t, before.TotalVotes, after.TotalVotes)
	for i := range before.Options {
		assert.Equal(t, before.Options[i].Votes, after.Options[i].Votes)
	}
	assert.Equal(t, before.TotalVotes, f.ballots(t, before.ID))
}

func TestSingleChoiceScenario(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{Options: []registry.OptionDraft{{Text: "A"}, {Text: "B"}}})
	a, b := p.Options[0], p.Options[1]

	receipt, err := f.engine.SubmitBallot(context.Background(), p.ID, "user-1", BallotRequest{Selections: []string{a.ID}})
	require.NoError(t, err)

	got := receipt.Poll
	assert.Equal(t, int64(1), got.Option(a.ID).Votes)
	assert.Equal(t, int64(0), got.Option(b.ID).Votes)
	assert.Equal(t, int64(1), got.TotalVotes)
	assert.Equal(t, a.ID, LeadingOption(got).ID)
	assert.Equal(t, int64(100), Percentage(got.Option(a.ID), got))
	assert.Equal(t, int64(0), Percentage(got.Option(b.ID), got))

	assert.Equal(t, p.ID, receipt.Ballot.PollID)
	assert.Equal(t, []string{a.ID}, receipt.Ballot.Selections)
	assert.Empty(t, receipt.Ballot.VerificationCode)
	assert.Equal(t, int64(1), f.ballots(t, p.ID))
}

func TestMultipleChoiceCountsBallotOnce(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{VotingMethod: models.MultipleChoice})
	a, b, c := p.Options[0].ID, p.Options[1].ID, p.Options[2].ID

	_, err := f.engine.SubmitBallot(context.Background(), p.ID, "u1", BallotRequest{Selections: []string{a, b}})
	require.NoError(t, err)
	receipt, err := f.engine.SubmitBallot(context.Background(), p.ID, "u2", BallotRequest{Selections: []string{a, b, c}})
	require.NoError(t, err)

	got := receipt.Poll
	assert.Equal(t, int64(2), got.TotalVotes)
	var sum int64
	for _, o := range got.Options {
		sum += o.Votes
	}
	assert.Equal(t, int64(5), sum)
	assert.GreaterOrEqual(t, sum, got.TotalVotes)
	assert.Equal(t, int64(2), got.Option(a).Votes)
	assert.Equal(t, int64(1), got.Option(c).Votes)
}

func TestAlreadyVoted(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{})

	_, err := f.engine.SubmitBallot(context.Background(), p.ID, "user-1", BallotRequest{Selections: []string{p.Options[0].ID}})
	require.NoError(t, err)
	before := f.reload(t, p.ID)

	_, err = f.engine.SubmitBallot(context.Background(), p.ID, "user-1", BallotRequest{Selections: []string{p.Options[1].ID}})
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)
	assertUnchanged(t, f, before)
}

func TestRankingIgnoredOutsideRankedChoice(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{})

	_, err := f.engine.SubmitBallot(context.Background(), p.ID, "user-1", BallotRequest{Selections: []string{p.Options[0].ID}})
	require.NoError(t, err)
	before := f.reload(t, p.ID)

	// 非排序投票只看selections，空选择优先于重复投票
	_, err = f.engine.SubmitBallot(context.Background(), p.ID, "user-1", BallotRequest{Ranking: map[string]int{p.Options[1].ID: 1}})
	assert.ErrorIs(t, err, models.ErrEmptySelection)
	_, err = f.engine.SubmitBallot(context.Background(), p.ID, "user-2", BallotRequest{Ranking: map[string]int{p.Options[1].ID: 1}})
	assert.ErrorIs(t, err, models.ErrEmptySelection)
	assertUnchanged(t, f, before)
}

func TestRejections(t *testing.T) {
	f := newFixture(t)
	single := f.poll(t, registry.Draft{})
	multi := f.poll(t, registry.Draft{VotingMethod: models.MultipleChoice})
	ranked := f.poll(t, registry.Draft{VotingMethod: models.RankedChoice})
	expired := f.poll(t, registry.Draft{StartDate: ts(-48 * time.Hour), EndDate: ts(-time.Minute)})
	future := f.poll(t, registry.Draft{StartDate: ts(time.Hour)})
	draft := f.poll(t, registry.Draft{Status: models.StatusDraft})
	closed := f.poll(t, registry.Draft{})
	_, err := f.reg.Close(context.Background(), closed.ID)
	require.NoError(t, err)
	named := f.poll(t, registry.Draft{AllowAnonymous: false})

	sa, sb := single.Options[0].ID, single.Options[1].ID
	ma := multi.Options[0].ID

	tests := []struct {
		name string
		poll *models.Poll
		req  BallotRequest
		want error
	}{
		{"past end date while stored active", expired, BallotRequest{Selections: []string{expired.Options[0].ID}}, models.ErrPollNotVotable},
		{"before start date", future, BallotRequest{Selections: []string{future.Options[0].ID}}, models.ErrPollNotVotable},
		{"draft", draft, BallotRequest{Selections: []string{draft.Options[0].ID}}, models.ErrPollNotVotable},
		{"closed", closed, BallotRequest{Selections: []string{closed.Options[0].ID}}, models.ErrPollNotVotable},
		{"not votable beats empty", expired, BallotRequest{}, models.ErrPollNotVotable},
		{"empty selection", single, BallotRequest{}, models.ErrEmptySelection},
		{"ranked choice", ranked, BallotRequest{Ranking: map[string]int{ranked.Options[0].ID: 1}}, models.ErrUnsupportedMethod},
		{"ranked choice with selections", ranked, BallotRequest{Selections: []string{ranked.Options[0].ID}}, models.ErrUnsupportedMethod},
		{"single with two selections", single, BallotRequest{Selections: []string{sa, sb}}, models.ErrTooManySelections},
		{"single unknown option", single, BallotRequest{Selections: []string{"nope"}}, models.ErrUnknownOption},
		{"option from another poll", single, BallotRequest{Selections: []string{ma}}, models.ErrUnknownOption},
		{"multiple duplicate", multi, BallotRequest{Selections: []string{ma, ma}}, models.ErrDuplicateSelection},
		{"multiple unknown option", multi, BallotRequest{Selections: []string{ma, "nope"}}, models.ErrUnknownOption},
		{"anonymous not allowed", named, BallotRequest{Selections: []string{named.Options[0].ID}, Anonymous: true}, models.ErrAnonymousNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := f.reload(t, tc.poll.ID)
			receipt, err := f.engine.SubmitBallot(context.Background(), tc.poll.ID, "user-1", tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, receipt)
			assertUnchanged(t, f, before)
		})
	}

	_, err = f.engine.SubmitBallot(context.Background(), "missing", "user-1", BallotRequest{Selections: []string{"x"}})
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestVotableUntilEndDateInclusive(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{EndDate: ts(0)})

	_, err := f.engine.SubmitBallot(context.Background(), p.ID, "u1", BallotRequest{Selections: []string{p.Options[0].ID}})
	assert.NoError(t, err)
}

func TestVerificationCodeAndAnonymous(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{RequireVerification: true, AllowAnonymous: true})

	receipt, err := f.engine.SubmitBallot(context.Background(), p.ID, "u1", BallotRequest{Selections: []string{p.Options[0].ID}, Anonymous: true})
	require.NoError(t, err)
	assert.Len(t, receipt.Ballot.VerificationCode, 10)
	assert.True(t, receipt.Ballot.Anonymous)

	var stored models.Ballot
	require.NoError(t, f.db.Where("id = ?", receipt.Ballot.ID).First(&stored).Error)
	assert.Equal(t, receipt.Ballot.VerificationCode, stored.VerificationCode)
	assert.Equal(t, []string{p.Options[0].ID}, stored.Selections)
}

func TestConcurrentBallotsDoNotRace(t *testing.T) {
	f := newFixture(t)
	p := f.poll(t, registry.Draft{VotingMethod: models.MultipleChoice})
	a, b := p.Options[0].ID, p.Options[1].ID

	const voters = 25
	var wg sync.WaitGroup
	errs := make(chan error, voters*2)
	for i := 0; i < voters; i++ {
		wg.Add(2)
		user := fmt.Sprintf("user-%d", i)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				_, err := f.engine.SubmitBallot(context.Background(), p.ID, user, BallotRequest{Selections: []string{a, b}})
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)

	var accepted, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, models.ErrAlreadyVoted):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, voters, accepted)
	assert.Equal(t, voters, duplicates)

	got := f.reload(t, p.ID)
	assert.Equal(t, int64(voters), got.TotalVotes)
	assert.Equal(t, int64(voters), got.Option(a).Votes)
	assert.Equal(t, int64(voters), got.Option(b).Votes)
	assert.Equal(t, int64(voters), f.ballots(t, p.ID))
}

type stuckLocker struct{}

func (stuckLocker) WithLock(ctx context.Context, _ string, _ func() error) error {
	<-ctx.Done()
	return ctx.Err()
}

type brokenLocker struct{}

func (brokenLocker) WithLock(context.Context, string, func() error) error {
	return errors.New("redis: connection refused")
}

func TestSubmissionFailuresLeaveNoEffect(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"timeout waiting for lock", []Option{WithLocker(stuckLocker{}), WithTimeout(20 * time.Millisecond)}},
		{"lock backend error", []Option{WithLocker(brokenLocker{})}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.opts...)
			p := f.poll(t, registry.Draft{})

			_, err := f.engine.SubmitBallot(context.Background(), p.ID, "u1", BallotRequest{Selections: []string{p.Options[0].ID}})
			assert.ErrorIs(t, err, models.ErrSubmissionFailed)
			assertUnchanged(t, f, p)
		})
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	polls []*models.Poll
}

func (n *recordingNotifier) PollUpdated(p *models.Poll) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.polls = append(n.polls, p)
}

type memoryMarkers struct {
	mu    sync.Mutex
	voted map[string]bool
}

func (m *memoryMarkers) HasVoted(_ context.Context, pollID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voted[pollID+"/"+userID], nil
}

func (m *memoryMarkers) MarkVoted(_ context.Context, pollID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voted[pollID+"/"+userID] = true
	return nil
}

func TestNotifierAndMarkers(t *testing.T) {
	notifier := &recordingNotifier{}
	markers := &memoryMarkers{voted: map[string]bool{}}
	f := newFixture(t, WithNotifier(notifier), WithMarkers(markers))
	p := f.poll(t, registry.Draft{})

	_, err := f.engine.SubmitBallot(context.Background(), p.ID, "u1", BallotRequest{Selections: []string{p.Options[0].ID}})
	require.NoError(t, err)

	require.Len(t, notifier.polls, 1)
	assert.Equal(t, int64(1), notifier.polls[0].TotalVotes)
	assert.True(t, markers.voted[p.ID+"/u1"])

	// marker hit rejects before touching the database
	markers.voted[p.ID+"/u2"] = true
	_, err = f.engine.SubmitBallot(context.Background(), p.ID, "u2", BallotRequest{Selections: []string{p.Options[0].ID}})
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)
	assert.Len(t, notifier.polls, 1)
}

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), "k", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Empty(t, l.locks)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	cancel()
	err := l.WithLock(ctx, "k", func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

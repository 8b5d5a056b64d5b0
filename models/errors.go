package models

// Error is a domain error with a stable code for API clients
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = &Error{"InvalidCredentials", "invalid email or password"}
	ErrUserAlreadyExists  = &Error{"UserAlreadyExists", "a user with this email already exists"}
	ErrInvalidPoll        = &Error{"InvalidPoll", "a poll needs a title and at least two non-empty options"}
	ErrPollNotVotable     = &Error{"PollNotVotable", "this poll is not accepting votes"}
	ErrEmptySelection     = &Error{"EmptySelection", "select at least one option"}
	ErrAlreadyVoted       = &Error{"AlreadyVoted", "you have already voted in this poll"}
	ErrTooManySelections  = &Error{"TooManySelections", "this poll accepts exactly one selection"}
	ErrUnknownOption      = &Error{"UnknownOption", "selected option does not belong to this poll"}
	ErrDuplicateSelection = &Error{"DuplicateSelection", "an option was selected more than once"}
	ErrUnsupportedMethod  = &Error{"UnsupportedMethod", "ranked-choice voting is not supported yet"}
	ErrSubmissionFailed   = &Error{"SubmissionFailed", "the ballot could not be recorded, please retry"}

	ErrPollNotFound        = &Error{"PollNotFound", "poll not found"}
	ErrUnauthenticated     = &Error{"Unauthenticated", "sign in to continue"}
	ErrForbidden           = &Error{"Forbidden", "you are not allowed to do this"}
	ErrInvalidTransition   = &Error{"InvalidTransition", "the poll cannot move to that status"}
	ErrAnonymousNotAllowed = &Error{"AnonymousNotAllowed", "this poll does not accept anonymous ballots"}
	ErrPasswordTooLong     = &Error{"PasswordTooLong", "password must be at most 72 bytes"}
	ErrNotVoter            = &Error{"NotVoter", "this account is not allowed to vote"}
)

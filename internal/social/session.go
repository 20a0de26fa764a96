package social

// Role marks who authored a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the chat transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is the append-only chat history of one session.
type Transcript struct {
	Turns []Turn `json:"turns"`
}

// Append adds a turn at the end.
func (t *Transcript) Append(role Role, text string) {
	t.Turns = append(t.Turns, Turn{Role: role, Text: text})
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.Turns) }

// Last returns the most recent turn, or false if empty.
func (t *Transcript) Last() (Turn, bool) {
	if len(t.Turns) == 0 {
		return Turn{}, false
	}
	return t.Turns[len(t.Turns)-1], true
}

// ChatState is the conversational router's state.
type ChatState string

const (
	AwaitingQuery ChatState = "awaiting_query"
	Processing    ChatState = "processing"
)

// SessionContext is everything one authenticated session has gathered.
// Core operations receive it explicitly and mutate only the fields they own.
type SessionContext struct {
	ID              string                       `json:"id"`
	LocalUser       string                       `json:"localUser"`
	Following       map[Platform][]Account       `json:"following,omitempty"`
	Communities     []Community                  `json:"communities,omitempty"`
	Interests       map[Platform]InterestSummary `json:"interests,omitempty"`
	Candidates      map[Platform][]Candidate     `json:"candidates,omitempty"`
	Corpus          map[Platform][]string        `json:"corpus,omitempty"`
	Recommendations map[Platform]Recommendation  `json:"recommendations,omitempty"`
	Transcript      Transcript                   `json:"transcript"`
	ChatState       ChatState                    `json:"chatState"`
	Analyzed        bool                         `json:"analyzed"`
}

// NewSessionContext creates an empty context for localUser.
func NewSessionContext(id, localUser string) *SessionContext {
	s := &SessionContext{ID: id, LocalUser: localUser, ChatState: AwaitingQuery}
	s.ensureMaps()
	return s
}

func (s *SessionContext) ensureMaps() {
	if s.Following == nil {
		s.Following = make(map[Platform][]Account)
	}
	if s.Interests == nil {
		s.Interests = make(map[Platform]InterestSummary)
	}
	if s.Candidates == nil {
		s.Candidates = make(map[Platform][]Candidate)
	}
	if s.Corpus == nil {
		s.Corpus = make(map[Platform][]string)
	}
	if s.Recommendations == nil {
		s.Recommendations = make(map[Platform]Recommendation)
	}
}

// Normalize restores invariants after decoding from a store.
func (s *SessionContext) Normalize() {
	s.ensureMaps()
	if s.ChatState == "" {
		s.ChatState = AwaitingQuery
	}
}

// HasCandidates reports whether the platform has any collected candidates.
func (s *SessionContext) HasCandidates(p Platform) bool {
	return len(s.Candidates[p]) > 0
}

// CandidateCount returns the number of candidates across all platforms.
func (s *SessionContext) CandidateCount() int {
	n := 0
	for _, c := range s.Candidates {
		n += len(c)
	}
	return n
}

// ClearTranscript empties the chat history, as on logout.
func (s *SessionContext) ClearTranscript() {
	s.Transcript = Transcript{}
	s.ChatState = AwaitingQuery
	s.Analyzed = false
}

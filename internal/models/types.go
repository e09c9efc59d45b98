package models

import "time"

// Timing selects how AI suggestions are delivered during a task.
type Timing string

const (
	TimingJIT      Timing = "jit"
	TimingAlwaysOn Timing = "always_on"
)

// Reflection selects whether a rationale must accompany every idea.
type Reflection string

const (
	ReflectionRequired Reflection = "required"
	ReflectionOptional Reflection = "optional"
)

// Condition is one cell of the 2x2 design.
type Condition struct {
	Timing     Timing     `json:"timing"`
	Reflection Reflection `json:"reflection"`
}

// AssignedCondition binds a condition to the task slot it is run in.
type AssignedCondition struct {
	Condition
	TaskID int `json:"taskId"`
}

// ConditionOrder is the counterbalanced sequence of four main tasks.
type ConditionOrder []AssignedCondition

// Phase is the participant's position in the study.
type Phase string

const (
	PhaseConsent    Phase = "consent"
	PhasePreSurvey  Phase = "pre-survey"
	PhaseTutorial   Phase = "tutorial"
	PhaseExperiment Phase = "experiment"
	PhaseTransfer   Phase = "transfer"
	PhasePostSurvey Phase = "post-survey"
	PhaseComplete   Phase = "complete"
)

// Interaction actions written to a session's audit trail.
const (
	ActionTaskStart            = "task_start"
	ActionHelpRequest          = "help_request"
	ActionSuggestionsGenerated = "ai_suggestions_generated"
	ActionSuggestionAccepted   = "ai_suggestion_accepted"
	ActionSuggestionDismissed  = "ai_suggestion_dismissed"
	ActionSuggestionsClosed    = "suggestions_closed"
	ActionIdeaSubmit           = "idea_submit"
	ActionRationaleCancel      = "rationale_cancel"
	ActionTaskComplete         = "task_complete"
	ActionTaskAbandoned        = "task_abandoned"
)

// RationaleJustification marks a rationale written for a submitted idea.
const RationaleJustification = "idea_justification"

type Demographics struct {
	Age                    int      `json:"age"`
	Gender                 string   `json:"gender"`
	AcademicLevel          string   `json:"academicLevel"`
	Major                  string   `json:"major"`
	DataScienceFamiliarity int      `json:"dataScienceFamiliarity"`
	AIExperience           int      `json:"aiExperience"`
	PriorCourses           []string `json:"priorCourses,omitempty"`
}

type Idea struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	AIInfluenced   bool      `json:"aiInfluenced"`
	AISuggestionID string    `json:"aiSuggestionId,omitempty"`
}

// Suggestion is one AI-generated prompt. Accepted and Dismissed are mutually
// exclusive and never revert once set.
type Suggestion struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Accepted  bool      `json:"accepted"`
	Dismissed bool      `json:"dismissed"`
}

// Resolved reports whether the participant already responded.
func (s Suggestion) Resolved() bool { return s.Accepted || s.Dismissed }

type Rationale struct {
	IdeaID    string    `json:"ideaId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

type Interaction struct {
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// Questionnaire holds post-task ratings on 1..7 scales.
type Questionnaire struct {
	Agency        []int `json:"agency"`
	Dependence    int   `json:"dependence"`
	CognitiveLoad []int `json:"cognitiveLoad"`
}

type Session struct {
	SessionID     string         `json:"sessionId"`
	Condition     Condition      `json:"condition"`
	TaskID        int            `json:"taskId"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	Ideas         []Idea         `json:"ideas"`
	AISuggestions []Suggestion   `json:"aiSuggestions"`
	Rationales    []Rationale    `json:"rationales"`
	Interactions  []Interaction  `json:"interactions"`
	Questionnaire *Questionnaire `json:"questionnaire"`
	Completed     bool           `json:"completed"`
}

// SessionUpdate merges into a stored session; nil fields are left unchanged.
type SessionUpdate struct {
	Ideas         []Idea         `json:"ideas,omitempty"`
	AISuggestions []Suggestion   `json:"aiSuggestions,omitempty"`
	Rationales    []Rationale    `json:"rationales,omitempty"`
	Questionnaire *Questionnaire `json:"questionnaire,omitempty"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	Completed     *bool          `json:"completed,omitempty"`
}

type TransferTask struct {
	TaskNumber     int       `json:"taskNumber"`
	Ideas          []string  `json:"ideas"`
	CompletionTime int       `json:"completionTime"`
	Timestamp      time.Time `json:"timestamp"`
}

type PostStudy struct {
	ConditionPreference []int  `json:"conditionPreference"`
	LearningRating      int    `json:"learningRating"`
	UsefulnessRating    int    `json:"usefulnessRating"`
	Feedback            string `json:"feedback,omitempty"`
}

// Participant is the full per-participant document.
type Participant struct {
	ParticipantID  string         `json:"participantId"`
	Ordinal        int            `json:"-"`
	Demographics   *Demographics  `json:"demographics"`
	ConditionOrder ConditionOrder `json:"conditionOrder"`
	Sessions       []Session      `json:"sessions"`
	TransferTasks  []TransferTask `json:"transferTasks"`
	PostStudy      *PostStudy     `json:"postStudy"`
	Completed      bool           `json:"completed"`
	Phase          Phase          `json:"phase"`
	ConditionIndex int            `json:"conditionIndex"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Dataset is one entry of the fixed task catalog.
type Dataset struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Variables   []string `json:"variables"`
}

// Researcher may read exports and statistics.
type Researcher struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

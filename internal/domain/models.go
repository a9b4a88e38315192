// Package domain provides domain models and business logic for the Relevance Estimation Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the pipeline stage a task message belongs to.
// These values must match the database enum task_type.
type TaskType string

const (
	TaskTypePreprocessing TaskType = "preprocessing"
	TaskTypeExecution     TaskType = "execution"
	TaskTypeFinalization  TaskType = "finalization"
)

// Valid returns true if the task type is one of the known pipeline stages.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypePreprocessing, TaskTypeExecution, TaskTypeFinalization:
		return true
	default:
		return false
	}
}

// SnapshotEntityType identifies the kind of entity captured in a job snapshot.
// These values must match the database enum snapshot_entity_type.
type SnapshotEntityType string

const (
	SnapshotEntityProjectDefinition  SnapshotEntityType = "project_definition"
	SnapshotEntityResearchQuestion   SnapshotEntityType = "research_question"
	SnapshotEntityQuestionDefinition SnapshotEntityType = "question_definition"
)

// SemanticKind classifies a flattened key-semantic value on an article.
// These values must match the database enum semantic_kind.
type SemanticKind string

const (
	SemanticKindTopic   SemanticKind = "topic"
	SemanticKindEntity  SemanticKind = "entity"
	SemanticKindKeyword SemanticKind = "keyword"
)

// TaskMessage is the unit of work flowing through the pipeline. Exactly one
// of the stage-specific fields is meaningful for a given Type: execution
// messages carry ArticleID, the other stages operate on the job alone.
type TaskMessage struct {
	Type      TaskType  `json:"type"`
	JobID     uuid.UUID `json:"job_id"`
	ProjectID uuid.UUID `json:"project_id"`
	ModelName string    `json:"model_name"`
	ArticleID uuid.UUID `json:"article_id,omitempty"`

	// Questions are the research questions frozen at job creation, each with
	// its combined definition list (project definitions followed by the
	// question's own definitions).
	Questions []ResearchQuestionSpec `json:"questions"`
}

// ResearchQuestionSpec is a research question together with the definitions
// that scope its interpretation. Order is significant: relevance rows are
// indexed by position in the job's question list.
type ResearchQuestionSpec struct {
	Question            string   `json:"question"`
	CombinedDefinitions []string `json:"combined_definitions"`
}

// EstimateRelevanceJob tracks one batch relevance-estimation run over a
// project's articles. TotalArticles is fixed at creation; CompletedArticles
// advances only through the completion gate's atomic increment.
type EstimateRelevanceJob struct {
	ID                uuid.UUID  `json:"id"`
	ProjectID         uuid.UUID  `json:"project_id"`
	ModelName         string     `json:"model_name"`
	TotalArticles     int        `json:"total_articles"`
	CompletedArticles int        `json:"completed_articles"`
	CreatedAt         time.Time  `json:"created_at"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
}

// IsComplete returns true once every article has passed the completion gate.
func (j *EstimateRelevanceJob) IsComplete() bool {
	return j.CompletedArticles >= j.TotalArticles
}

// ProgressPercent returns completion as an integer percentage, floored.
// An empty job reports 100 once finalized and 0 before that.
func (j *EstimateRelevanceJob) ProgressPercent() int {
	if j.TotalArticles == 0 {
		if j.FinalizedAt != nil {
			return 100
		}
		return 0
	}
	return j.CompletedArticles * 100 / j.TotalArticles
}

// Snapshot freezes one entity's state at job creation time. Estimation reads
// questions and definitions from snapshots, never from the live tables, so
// edits made while a job runs do not affect its results.
type Snapshot struct {
	ID         uuid.UUID          `json:"id"`
	JobID      uuid.UUID          `json:"job_id"`
	EntityType SnapshotEntityType `json:"entity_type"`
	EntityID   uuid.UUID          `json:"entity_id"`
	Payload    []byte             `json:"payload"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ArticleRelevance is the scored verdict for one (article, job, question)
// triple. RelevanceIndex is the question's zero-based position in the job's
// question list; the (ArticleID, JobID, RelevanceIndex) triple is unique.
type ArticleRelevance struct {
	ArticleID          uuid.UUID `json:"article_id"`
	JobID              uuid.UUID `json:"job_id"`
	RelevanceIndex     int       `json:"relevance_index"`
	Question           string    `json:"question"`
	RelevanceScore     float64   `json:"relevance_score"`
	ContributionScore  float64   `json:"contribution_score"`
	IsRelevant         bool      `json:"is_relevant"`
	IsContributing     bool      `json:"is_contributing"`
	RelevanceReason    string    `json:"relevance_reason,omitempty"`
	ContributionReason string    `json:"contribution_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// RelevanceThreshold is the score above which an article counts as relevant
// or contributing for a question.
const RelevanceThreshold = 0.7

// Relevance is the scoring service's verdict for one question, before it is
// bound to an article and job.
type Relevance struct {
	Question           string  `json:"question"`
	RelevanceScore     float64 `json:"relevance_score"`
	ContributionScore  float64 `json:"contribution_score"`
	IsRelevant         bool    `json:"is_relevant"`
	IsContributing     bool    `json:"is_contributing"`
	RelevanceReason    string  `json:"relevance_reason"`
	ContributionReason string  `json:"contribution_reason"`
}

// ApplyThreshold recomputes the boolean verdicts from the scores. The scoring
// service's own booleans are advisory; the threshold contract is enforced here.
func (r *Relevance) ApplyThreshold() {
	r.IsRelevant = r.RelevanceScore > RelevanceThreshold
	r.IsContributing = r.ContributionScore > RelevanceThreshold
}

// KeySemantics holds the semantic structure extracted from an article's text.
type KeySemantics struct {
	Topics   []string `json:"topics"`
	Entities []string `json:"entities"`
	Keywords []string `json:"keywords"`
}

// Flatten converts the grouped semantics into ordered per-article rows,
// topics first, then entities, then keywords, with a running index.
func (k KeySemantics) Flatten(articleID uuid.UUID) []ArticleKeySemantic {
	out := make([]ArticleKeySemantic, 0, len(k.Topics)+len(k.Entities)+len(k.Keywords))
	idx := 0
	appendAll := func(kind SemanticKind, values []string) {
		for _, v := range values {
			out = append(out, ArticleKeySemantic{
				ArticleID:     articleID,
				SemanticIndex: idx,
				Kind:          kind,
				Value:         v,
			})
			idx++
		}
	}
	appendAll(SemanticKindTopic, k.Topics)
	appendAll(SemanticKindEntity, k.Entities)
	appendAll(SemanticKindKeyword, k.Keywords)
	return out
}

// JobProgress is the externally visible progress of a project's latest job.
type JobProgress struct {
	JobID             uuid.UUID          `json:"job_id"`
	ModelName         string             `json:"model_name"`
	TotalArticles     int                `json:"total_articles"`
	CompletedArticles int                `json:"completed_articles"`
	Progress          int                `json:"progress"`
	Finalized         bool               `json:"finalized"`
	ProcessedArticles []ProcessedArticle `json:"processed_articles"`
}

// ProcessedArticle is an article that has passed the completion gate for the
// reported job, with its per-question verdicts.
type ProcessedArticle struct {
	Article    Article            `json:"article"`
	Relevances []ArticleRelevance `json:"relevances"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project is a screening project: a set of articles screened against a set
// of research questions.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	Definitions       []ProjectDefinition `json:"definitions,omitempty"`
	ResearchQuestions []ResearchQuestion  `json:"research_questions,omitempty"`
}

// ProjectDefinition is a project-wide term definition that scopes every
// research question in the project.
type ProjectDefinition struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	Definition string    `json:"definition"`
}

// ResearchQuestion is one question articles are screened against.
type ResearchQuestion struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	QuestionText string    `json:"question_text"`

	Definitions []QuestionDefinition `json:"definitions,omitempty"`
}

// QuestionDefinition is a term definition scoped to a single question.
type QuestionDefinition struct {
	ID                 uuid.UUID `json:"id"`
	ResearchQuestionID uuid.UUID `json:"research_question_id"`
	Definition         string    `json:"definition"`
}

// QuestionSpecs builds the frozen question list for a new job: every question
// in project order, each carrying the project definitions followed by its own.
func (p *Project) QuestionSpecs() []ResearchQuestionSpec {
	projectDefs := make([]string, 0, len(p.Definitions))
	for _, d := range p.Definitions {
		projectDefs = append(projectDefs, d.Definition)
	}

	specs := make([]ResearchQuestionSpec, 0, len(p.ResearchQuestions))
	for _, q := range p.ResearchQuestions {
		combined := make([]string, 0, len(projectDefs)+len(q.Definitions))
		combined = append(combined, projectDefs...)
		for _, d := range q.Definitions {
			combined = append(combined, d.Definition)
		}
		specs = append(specs, ResearchQuestionSpec{
			Question:            q.QuestionText,
			CombinedDefinitions: combined,
		})
	}
	return specs
}

// Article is one document under screening.
type Article struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Authors   string    `json:"authors,omitempty"`
	Year      int       `json:"year,omitempty"`
	Title     string    `json:"title"`
	DOI       string    `json:"doi,omitempty"`
	Link      string    `json:"link,omitempty"`
	Abstract  string    `json:"abstract,omitempty"`
	MustRead  bool      `json:"must_read"`
	CreatedAt time.Time `json:"created_at"`

	KeySemantics []ArticleKeySemantic `json:"key_semantics,omitempty"`
	Relevances   []ArticleRelevance   `json:"relevances,omitempty"`
}

// Content returns the text submitted to the scoring service.
func (a *Article) Content() string {
	if a.Abstract == "" {
		return a.Title
	}
	return a.Title + "\n\n" + a.Abstract
}

// ArticleKeySemantic is one flattened semantic value attached to an article,
// ordered by SemanticIndex across all kinds.
type ArticleKeySemantic struct {
	ArticleID     uuid.UUID    `json:"article_id"`
	SemanticIndex int          `json:"semantic_index"`
	Kind          SemanticKind `json:"kind"`
	Value         string       `json:"value"`
}

// Package activities provides Temporal activity implementations for the
// relevance estimation pipeline.
//
// Activity inputs and outputs are defined as serializable structs that cross
// the Temporal serialization boundary. Each activity receives an input struct
// and returns an output struct (or error). All fields must be exported for
// JSON serialization by the Temporal SDK's default data converter.
package activities

import (
	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
)

// PreprocessInput contains the parameters for the job preprocessing activity.
type PreprocessInput struct {
	// Task is the preprocessing task message the workflow was started with.
	Task domain.TaskMessage
}

// PreprocessOutput contains the results of the job preprocessing activity.
type PreprocessOutput struct {
	// ArticleIDs are the project's article IDs, one execution task each.
	ArticleIDs []uuid.UUID

	// TotalArticles is the article count fixed on the job at creation time.
	TotalArticles int
}

// ProcessArticleInput contains the parameters for the per-article
// estimation activity.
type ProcessArticleInput struct {
	// Task is the execution task message for one article. Its Questions
	// carry the frozen question list in scoring order.
	Task domain.TaskMessage
}

// ProcessArticleOutput contains the results of the per-article estimation
// activity. Exactly one of Inserted, AlreadyProcessed, and Dropped is true.
type ProcessArticleOutput struct {
	// Inserted reports that this call scored the article and won the
	// completion gate.
	Inserted bool

	// AlreadyProcessed reports that relevance rows for the article already
	// existed, so the delivery was a duplicate and no work was redone.
	AlreadyProcessed bool

	// Dropped reports that the article no longer exists. Dropped articles
	// never advance the job's completed counter.
	Dropped bool

	// Completed and Total are the job's counters as observed by this call.
	// For Inserted they come from the gate's atomic increment; for
	// AlreadyProcessed they come from a fresh job read; for Dropped they
	// are zero and must not be used for completion checks.
	Completed int
	Total     int
}

// FinalizeInput contains the parameters for the job finalization activity.
type FinalizeInput struct {
	// Task is the finalization task message for the job.
	Task domain.TaskMessage
}

// FinalizeOutput contains the results of the job finalization activity.
type FinalizeOutput struct {
	// Finalized reports whether this call performed the finalization.
	// False means another delivery finalized the job first.
	Finalized bool
}

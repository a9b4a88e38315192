// Package temporal provides Temporal workflow client integration for the
// relevance estimation service.
//
// This package handles workflow client initialization, workflow/activity
// registration, and worker lifecycle management.
//
// # Overview
//
// The temporal package provides:
//
//   - Client: Temporal client wrapper for starting/managing workflows
//   - Worker: Worker process for executing workflows and activities
//   - Workflow definition for driving an estimate relevance job
//   - Activity implementations for the per-article processing steps
//
// # Client Setup
//
// Create a Temporal client:
//
//	cfg := temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "relevance",
//	    TaskQueue: "relevance-tasks",
//	}
//
//	c, err := temporal.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	jobClient := temporal.NewJobWorkflowClient(c, cfg.TaskQueue)
//	defer jobClient.Close()
//
// # Starting Workflows
//
// Start a relevance estimation workflow for a job:
//
//	task := domain.TaskMessage{
//	    Type:      domain.TaskTypePreprocessing,
//	    JobID:     job.ID,
//	    ProjectID: job.ProjectID,
//	    ModelName: job.ModelName,
//	    Questions: questionSpecs,
//	}
//	workflowID, runID, err := jobClient.StartEstimateRelevanceWorkflow(ctx, task,
//	    workflows.EstimateRelevanceWorkflow)
//
// The workflow ID is derived from the job ID, so retried start attempts for
// the same job collapse into ErrWorkflowAlreadyStarted.
//
// # Worker Setup
//
// Create and start a worker:
//
//	manager, err := temporal.NewWorkerManager(client, temporal.DefaultWorkerConfig("relevance-tasks"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manager.RegisterWorkflow(workflows.EstimateRelevanceWorkflow)
//	manager.RegisterActivity(jobActivities)
//
//	if err := manager.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Activity Types
//
// Activities are grouped by responsibility:
//
//   - Preprocess: snapshot verification and article enumeration
//   - ProcessArticle: fetch, extract semantics, score, persist, advance
//   - FinalizeJob: mark the job finalized and emit the completion event
//
// # Error Handling
//
// Client operations return errors matchable with errors.Is against the
// package sentinels:
//
//	if errors.Is(err, temporal.ErrWorkflowAlreadyStarted) {
//	    // A workflow for this job is already running.
//	}
//
//	if errors.Is(err, temporal.ErrWorkflowNotFound) {
//	    // The workflow does not exist or has already completed.
//	}
//
// # Thread Safety
//
// The Temporal client is safe for concurrent use. Workers manage their
// own goroutines for activity execution.
package temporal

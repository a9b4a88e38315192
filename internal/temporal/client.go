package temporal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/litscreen/relevance-service/internal/domain"
)

// QueryProgress is the query name used to retrieve relevance job workflow
// progress. It lives here (not in the workflows package) so the server layer
// and the workflow implementation can reference it without a dependency from
// server to workflows.
const QueryProgress = "progress"

const (
	// DefaultWorkflowExecutionTimeout bounds a whole relevance job run. A
	// job that has not finished scoring in this window is stuck, not slow.
	DefaultWorkflowExecutionTimeout = 4 * time.Hour

	// DefaultHealthCheckTimeout bounds Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second
)

// Sentinel errors for workflow operations. Callers match them with errors.Is
// through the TemporalError wrapper.
var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID is
	// already running. Because workflow IDs are derived from job IDs this is
	// how a duplicate start for the same job surfaces.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")
)

// TemporalError carries the failed operation, a sentinel category, and the
// workflow identifiers alongside the underlying SDK error.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	RunID      string
	Err        error
}

func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s", e.WorkflowID)
		if e.RunID != "" {
			msg += fmt.Sprintf(", runID=%s", e.RunID)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TemporalError) Unwrap() error { return e.Err }

// Is matches against the error's sentinel category so errors.Is works on
// the wrapper.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTemporalError classifies an SDK error under a sentinel category.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{Op: op, WorkflowID: workflowID, RunID: runID, Err: err}

	var notFound *serviceerror.NotFound
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	switch {
	case errors.As(err, &notFound):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStarted):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.Is(err, context.Canceled):
		te.Kind = ErrClientClosed
	default:
		te.Kind = ErrConnectionFailed
	}

	return te
}

// TLSConfig contains TLS configuration for the Temporal connection.
type TLSConfig struct {
	// Enabled enables TLS for the connection.
	Enabled bool

	// CertPath and KeyPath point to the client certificate pair (PEM).
	CertPath string
	KeyPath  string

	// CACertPath points to the CA certificate file (PEM).
	CACertPath string

	// ServerName is the expected server name for certificate verification.
	ServerName string

	// InsecureSkipVerify disables certificate verification. Testing only.
	InsecureSkipVerify bool
}

func (t *TLSConfig) buildTLSConfig() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify,
		ServerName:         t.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	if t.CertPath != "" && t.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if t.CACertPath != "" {
		caCert, err := os.ReadFile(t.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// ClientConfig contains configuration for connecting to the Temporal server.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the default task queue for starting workflows.
	TaskQueue string

	// TLS contains optional TLS configuration.
	TLS *TLSConfig

	// Logger receives the SDK's internal log output. Nil uses the SDK default.
	Logger sdklog.Logger

	// HealthCheckTimeout bounds health check calls. Zero uses the default.
	HealthCheckTimeout time.Duration
}

// NewClient dials the Temporal server with the given configuration.
func NewClient(cfg ClientConfig) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("configure TLS: %w", err)
		}
		options.ConnectionOptions = client.ConnectionOptions{TLS: tlsConfig}
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// WorkflowIDForJob returns the deterministic workflow ID for a job, so
// redelivered start attempts for the same job collapse into one execution.
func WorkflowIDForJob(jobID uuid.UUID) string {
	return fmt.Sprintf("relevance-job-%s", jobID)
}

// JobWorkflowClient starts and inspects relevance job workflows. It is safe
// for concurrent use; Close is idempotent.
type JobWorkflowClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	healthCheckTimeout time.Duration
	closed             bool
}

// NewJobWorkflowClient wraps an existing Temporal client for the given task
// queue.
func NewJobWorkflowClient(c client.Client, taskQueue string) *JobWorkflowClient {
	return &JobWorkflowClient{
		client:             c,
		taskQueue:          taskQueue,
		healthCheckTimeout: DefaultHealthCheckTimeout,
	}
}

// Close closes the underlying Temporal client connection.
func (c *JobWorkflowClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *JobWorkflowClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Health checks connectivity to the Temporal server.
func (c *JobWorkflowClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartEstimateRelevanceWorkflow starts a relevance estimation workflow for
// the job carried by the task message. A second start attempt for the same
// job returns ErrWorkflowAlreadyStarted. The workflow function must be
// registered with the worker separately.
func (c *JobWorkflowClient) StartEstimateRelevanceWorkflow(ctx context.Context, task domain.TaskMessage, workflowFunc interface{}) (workflowID, runID string, err error) {
	if c.isClosed() {
		return "", "", &TemporalError{Op: "StartEstimateRelevanceWorkflow", Kind: ErrClientClosed}
	}

	workflowID = WorkflowIDForJob(task.JobID)
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, workflowFunc, task)
	if err != nil {
		return "", "", wrapTemporalError("StartEstimateRelevanceWorkflow", err, workflowID, "")
	}
	return workflowID, run.GetRunID(), nil
}

// Client returns the underlying Temporal client for advanced operations.
func (c *JobWorkflowClient) Client() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue name.
func (c *JobWorkflowClient) TaskQueue() string {
	return c.taskQueue
}

package loadgen

import "time"

// Run modes.
const (
	ModeEnqueue = "enqueue" // submit through /v1/enqueue and wait for the queue to drain
	ModeProcess = "process" // submit through synchronous /v1/process batches
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumNodes   int           // Number of synthetic identifiers to generate
	Workers    int           // Number of concurrent submitters
	Mode       string        // enqueue or process
	BatchSize  int           // Identifiers per process call (process mode)
	Timeout    time.Duration // HTTP request timeout
	DrainWait  time.Duration // How long to wait for the queue to drain (enqueue mode)
	OutputFile string        // Output file for generated identifiers
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Identifier is one synthetic node submitted to the service.
type Identifier struct {
	NodeID   string `json:"nodeId"`
	Username string `json:"username,omitempty"`
}

// ackResponse mirrors the enqueue acknowledgement body.
type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// envelope mirrors the invocation envelope returned by /v1/process.
type envelope struct {
	StatusCode        int           `json:"statusCode"`
	Body              envelopeBody  `json:"body"`
	BatchItemFailures []itemFailure `json:"batchItemFailures"`
}

type envelopeBody struct {
	Processed       int       `json:"processed"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	ProfilesScraped int       `json:"profiles_scraped"`
	Outcomes        []outcome `json:"outcomes"`
}

type itemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// outcome carries the per-node fields the verifier needs; the rest of the
// body is ignored.
type outcome struct {
	NodeID    string        `json:"node_id"`
	Success   bool          `json:"success"`
	Attempted bool          `json:"attempted"`
	Fault     *outcomeFault `json:"fault,omitempty"`
}

type outcomeFault struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// Stats holds load run statistics.
type Stats struct {
	NodesGenerated  int
	NodesSubmitted  int
	Accepted        int
	Duplicates      int
	Rejected        int
	SubmitFailed    int
	Processed       int
	Succeeded       int
	Failed          int
	ProfilesScraped int
	RedeliverySlots int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

package loadgen

import "time"

// HTTP status code constants.
const (
	StatusOK          = 200
	StatusAccepted    = 202
	StatusTooManyReqs = 429
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DrainPollInterval    = 2 * time.Second
	PercentageMultiplier = 100
)

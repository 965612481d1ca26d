package errs

import "errors"

var (
	InternalError = errors.New("internal error")

	WorkerNotFound       = errors.New("worker not found")
	NoWorkerAvailable    = errors.New("no worker available")
	AllWorkersAtCapacity = errors.New("all workers at capacity")

	JobNotFound    = errors.New("job not found")
	JobNotPending  = errors.New("job is not pending")
	InvalidStatus  = errors.New("invalid job status")
	VideoNotFound  = errors.New("video not found")
	IdentityDenied = errors.New("client certificate identity does not match worker")

	PlatformNotConnected = errors.New("platform is not connected for this project")
)

package mdp

// Job is an opaque unit of work addressed to a named target function,
// carrying an ordered list of byte-string arguments. A Job is immutable
// once constructed.
type Job struct {
	TargetName string
	Args       [][]byte
}

// NewJob constructs a Job from a target name and string arguments, the
// shape most callers (and the square-worker demo) reach for.
func NewJob(target string, args ...string) Job {
	bargs := make([][]byte, len(args))
	for i, a := range args {
		bargs[i] = []byte(a)
	}
	return Job{TargetName: target, Args: bargs}
}

// Result is the envelope a worker returns: the identity of the worker
// that executed the job, whether it succeeded, and either the user
// result (success) or a human-readable diagnostic (failure).
type Result struct {
	WorkerID string
	OK       bool
	Payload  []byte
}

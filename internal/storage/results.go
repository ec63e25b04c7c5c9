package storage

import "errors"

type Status string

const (
	StatusSuccess     Status = "success"
	StatusSkipped     Status = "skipped"
	StatusOverwritten Status = "overwritten"
	StatusFailed      Status = "failed"
)

// ObjectRef addresses one (name, version) pair.
type ObjectRef struct {
	Name    string
	Version string
}

func (r ObjectRef) String() string {
	return r.Name + "@" + r.Version
}

// OpResult is the per-item outcome of a batch operation. Batch operations
// never return an error for an individual item; failures are captured here.
type OpResult struct {
	Ref      ObjectRef
	Status   Status
	Metadata *ObjectMetadata
	Err      string

	// cause preserves the error chain for in-process callers; results that
	// crossed a process boundary only carry Err.
	cause error
}

func (r OpResult) Failed() bool {
	return r.Status == StatusFailed
}

// AsError maps the result to an error for single-item callers: failed results
// carry their message, skipped results surface the version conflict, anything
// else is nil.
func (r OpResult) AsError() error {
	switch r.Status {
	case StatusFailed:
		if r.cause != nil {
			return r.cause
		}
		if r.Err != "" {
			return errors.New(r.Err)
		}
		return errors.New("operation failed")
	case StatusSkipped:
		return ErrVersionConflict
	default:
		return nil
	}
}

// OpResults is a batch result container keyed by "name@version".
type OpResults map[string]OpResult

func (rs OpResults) Put(r OpResult) {
	rs[r.Ref.String()] = r
}

func (rs OpResults) Get(ref ObjectRef) (OpResult, bool) {
	r, ok := rs[ref.String()]
	return r, ok
}

// Failed returns the refs of every failed item.
func (rs OpResults) Failed() []ObjectRef {
	var refs []ObjectRef
	for _, r := range rs {
		if r.Failed() {
			refs = append(refs, r.Ref)
		}
	}
	return refs
}

func Success(ref ObjectRef, meta *ObjectMetadata) OpResult {
	return OpResult{Ref: ref, Status: StatusSuccess, Metadata: meta}
}

func Skipped(ref ObjectRef) OpResult {
	return OpResult{Ref: ref, Status: StatusSkipped}
}

func Overwritten(ref ObjectRef, meta *ObjectMetadata) OpResult {
	return OpResult{Ref: ref, Status: StatusOverwritten, Metadata: meta}
}

func Failed(ref ObjectRef, err error) OpResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return OpResult{Ref: ref, Status: StatusFailed, Err: msg, cause: err}
}

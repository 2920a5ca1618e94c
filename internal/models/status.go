package models

// JobStatus はジョブの状態
type JobStatus string

// ジョブステータス
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusTerminated JobStatus = "terminated"
	// JobStatusUnknown は照会時にのみ返され、保存はされない
	JobStatusUnknown JobStatus = "unknown"
)

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusRunning:    true,
		JobStatusTerminated: true,
	},
	JobStatusRunning: {
		JobStatusCompleted:  true,
		JobStatusTerminated: true,
	},
	JobStatusCompleted:  {},
	JobStatusTerminated: {},
}

// CanTransition reports whether a stored status may move from one value to another.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusTerminated
}

// OverallStatus はワーカー全体の状態
type OverallStatus string

const (
	OverallIdle    OverallStatus = "idle"
	OverallRunning OverallStatus = "running"
	OverallError   OverallStatus = "error"
)

package models

// SummaryKind は要約処理の結果種別
type SummaryKind string

const (
	// SummaryReady は要約本文が得られた
	SummaryReady SummaryKind = "summarized"
	// SummaryUnavailable は要約できなかった（無効化・未設定・空応答）。呼び出し側は文字起こしをそのまま保存する
	SummaryUnavailable SummaryKind = "unavailable"
)

// Summary は Summarizer の戻り値
type Summary struct {
	Kind   SummaryKind `json:"kind"`
	Text   string      `json:"text,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// RemoteState は外部要約タスクの状態
type RemoteState string

const (
	RemotePending RemoteState = "pending"
	RemoteDone    RemoteState = "done"
	RemoteFailed  RemoteState = "failed"
)

// RemoteStatus は外部要約タスクのポーリング結果
type RemoteStatus struct {
	State   RemoteState `json:"state"`
	Summary string      `json:"summary,omitempty"`
	Message string      `json:"message,omitempty"`
}

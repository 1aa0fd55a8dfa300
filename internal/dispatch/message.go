package dispatch

// Message kinds exchanged with the pipeline backend. Inbound messages are
// log_batch, result_ready and run_finished; the launcher sends poll.
const (
	KindLogBatch    = "log_batch"
	KindResultReady = "result_ready"
	KindRunFinished = "run_finished"
	KindPoll        = "poll"
)

// Message is the one-shot wire frame of the backend's message channel. The
// populated fields depend on Kind; unknown kinds are ignored by the
// dispatcher so the backend can grow new ones.
type Message struct {
	Kind string `json:"kind"`

	// log_batch: a delta fragment plus the stream length after it. The
	// backend may piggyback a status value on the fragment.
	Content   string `json:"content,omitempty"`
	NewOffset int    `json:"new_offset,omitempty"`
	Status    string `json:"status,omitempty"`

	// result_ready: the encoded artifact payload and its file name.
	Data string `json:"data,omitempty"`
	Name string `json:"name,omitempty"`

	// run_finished: optional full transcript and result fields.
	Logs           string `json:"logs,omitempty"`
	ResultFileData string `json:"result_file_data,omitempty"`
	ResultFileName string `json:"result_file_name,omitempty"`

	// poll (outbound): the launcher's current read cursor.
	Offset int `json:"offset,omitempty"`
}

// PollRequest builds the outbound poll message for the given cursor.
func PollRequest(offset int) Message {
	return Message{Kind: KindPoll, Offset: offset}
}

package event

import "time"

type Type string

const (
	TypeConnected Type = "connected"
	TypeStepStart Type = "step_start"
	TypeStream    Type = "stream"
	TypeStepEnd   Type = "step_end"
	TypeJobDone   Type = "job_done"
	TypeError     Type = "error"
)

// Event is the JSON message delivered to observers of a job.
type Event struct {
	Type      Type      `json:"event"`
	JobID     string    `json:"job_id,omitempty"`
	Step      string    `json:"step,omitempty"`
	Order     int       `json:"order,omitempty"`
	Stream    string    `json:"stream,omitempty"`
	Data      string    `json:"data,omitempty"`
	Status    string    `json:"status,omitempty"`
	Exit      *int      `json:"exit,omitempty"`
	Error     string    `json:"error,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

func StepStart(jobID, step string, order int) Event {
	return Event{Type: TypeStepStart, JobID: jobID, Step: step, Order: order}
}

func Stream(jobID, step string, order int, stream, data string) Event {
	return Event{Type: TypeStream, JobID: jobID, Step: step, Order: order, Stream: stream, Data: data}
}

func StepEnd(jobID, step string, order int, status string, exit *int) Event {
	return Event{Type: TypeStepEnd, JobID: jobID, Step: step, Order: order, Status: status, Exit: exit}
}

func JobDone(jobID, status, errText string) Event {
	return Event{Type: TypeJobDone, JobID: jobID, Status: status, Error: errText}
}

func Connected(jobID, status string) Event {
	return Event{Type: TypeConnected, JobID: jobID, Status: status}
}

func Failure(detail string) Event {
	return Event{Type: TypeError, Detail: detail}
}

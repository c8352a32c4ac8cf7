package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportFileMessage asks the worker to copy one data file into the local
// store. It carries only the file name; the worker reads the rows itself.
type ImportFileMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	Filename    string    `json:"filename"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewImportFileMessage creates a message with a fresh job id
func NewImportFileMessage(filename string) *ImportFileMessage {
	return &ImportFileMessage{
		JobID:       uuid.New(),
		Filename:    filename,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ImportFileMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportFileMessageFromJSON decodes and validates a message body.
func ImportFileMessageFromJSON(data []byte) (*ImportFileMessage, error) {
	var msg ImportFileMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == uuid.Nil {
		return nil, fmt.Errorf("import message: missing job id")
	}
	if strings.TrimSpace(msg.Filename) == "" {
		return nil, fmt.Errorf("import message: missing filename")
	}
	return &msg, nil
}

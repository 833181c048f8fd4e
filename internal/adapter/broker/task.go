package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
)

func encodeTask(photoID int64) ([]byte, error) {
	value, err := json.Marshal(domain.RepairTask{
		PhotoID:   photoID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return value, nil
}

// DecodeTask parses a message body produced by either producer.
func DecodeTask(body []byte) (domain.RepairTask, error) {
	var task domain.RepairTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if task.PhotoID <= 0 {
		return task, fmt.Errorf("message has no photo id")
	}
	return task, nil
}

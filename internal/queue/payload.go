package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TaskTypeProcess is the asynq task type of a supply-list document job
const TaskTypeProcess = "supplylist:process"

// JobPayload describes one document to process
type JobPayload struct {
	JobID      string `json:"jobId"`
	FileID     string `json:"fileId"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType,omitempty"`
	FileURL    string `json:"fileUrl,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	FileBuffer []byte `json:"-"` // set by UnmarshalJSON
}

// MarshalJSON writes FileBuffer as base64
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	aux := struct {
		Alias
		FileBuffer string `json:"fileBuffer,omitempty"`
	}{Alias: Alias(p)}
	if len(p.FileBuffer) > 0 {
		aux.FileBuffer = base64.StdEncoding.EncodeToString(p.FileBuffer)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts fileBuffer as a base64 string or as a Node.js Buffer object
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Validate checks that the payload names a job and a file source
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.FileBuffer) == 0 && p.FilePath == "" && p.FileURL == "" {
		return fmt.Errorf("job %s has no file source (buffer, path or URL)", p.JobID)
	}
	return nil
}

package utils

import "time"

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	IDs       []string    `json:"ids,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// TypedErrorResponse carries the error taxonomy so callers can retry with
// the offending ids removed.
func TypedErrorResponse(message, error, code, reason string, ids []string) APIResponse {
	resp := ErrorResponse(message, error)
	resp.Code = code
	resp.Reason = reason
	resp.IDs = ids
	return resp
}

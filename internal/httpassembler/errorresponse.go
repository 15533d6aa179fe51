package httpassembler

import (
	"encoding/json"
	"fmt"
)

// errorBody is the JSON shape of a 400 response payload.
type errorBody struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

// buildErrorResponse renders a complete HTTP/1.1 400 Bad Request response,
// ready to write to the connection before it is closed.
func buildErrorResponse(err error) []byte {
	details := err.Error()
	message := "Bad Request"
	if pe, ok := err.(*ProtocolError); ok && pe.TooLarge {
		message = "Request Too Large"
	}
	body, marshalErr := json.Marshal(errorBody{Message: message, Details: details})
	if marshalErr != nil {
		body = []byte(`{"message":"Bad Request","details":"unrepresentable error"}`)
	}
	head := fmt.Sprintf(
		"HTTP/1.1 400 Bad Request\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		len(body),
	)
	return append([]byte(head), body...)
}

package logger

const (
	FieldService = "service"

	FieldRoomID     = "room_id"
	FieldRoomNumber = "room_number"
	FieldUID        = "uid"
	FieldCmd        = "cmd"
	FieldState      = "state"
	FieldAttempt    = "attempt"

	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
)

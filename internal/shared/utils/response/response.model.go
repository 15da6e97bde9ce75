package response

// APIResponse is the uniform envelope every endpoint returns. Flow-required
// outcomes (OTP step, forced password change) are not errors; they carry a
// redirect target in Data instead.
type APIResponse struct {
	Error   bool        `json:"error"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

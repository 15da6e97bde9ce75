package auth

type SignInRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"omitempty,relpath"`
}

type VerifyOTPRequest struct {
	Token string `json:"token" binding:"required"`
	Code  string `json:"otp_code" binding:"required,numeric,len=6"`
}

type ValidateTokenRequest struct {
	Token   string `json:"token" binding:"required"`
	Purpose string `json:"purpose" binding:"required,oneof=otp password_reset password_change"`
}

type ChangePasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type ResetPasswordRequest struct {
	CallbackURL string `json:"callback_url" binding:"omitempty,relpath"`
}

type ConfirmResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

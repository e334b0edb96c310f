package handlers

// LoginRequest is the request body for the password check.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
	ReturnTo   string `json:"return_to" validate:"omitempty,max=2048"`
}

// LoginResponse reports where the sign-in landed: fully authenticated,
// or parked behind the second factor.
type LoginResponse struct {
	Status    string `json:"status"`
	AuthToken string `json:"auth_token,omitempty"`
	ReturnTo  string `json:"return_to,omitempty"`
}

// VerifyCodeRequest is the request body for the second-factor check.
type VerifyCodeRequest struct {
	Code           string `json:"code" validate:"required,min=4,max=10,numeric"`
	RememberDevice bool   `json:"remember_device"`
}

// VerifyCodeResponse is returned when the code is approved.
type VerifyCodeResponse struct {
	Status    string `json:"status"`
	AuthToken string `json:"auth_token"`
	ReturnTo  string `json:"return_to,omitempty"`
}

// RequestCodeResponse mirrors the provider's send result.
type RequestCodeResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// EnableRequest starts second-factor enrollment. The phone number is
// optional when the account already has one on file.
type EnableRequest struct {
	PhoneNumber string `json:"phone_number" validate:"omitempty,min=7,max=20"`
	CountryCode string `json:"country_code" validate:"omitempty,numeric,max=4"`
}

// VerifyInstallationRequest carries the first code after enrollment.
type VerifyInstallationRequest struct {
	Code string `json:"code" validate:"required,min=4,max=10,numeric"`
}

package auth

// Wire shapes for the /auth endpoints. Success responses always carry both the
// signed access token and the renewal (refresh) token.

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LoginResponse struct {
	Success      bool     `json:"success"`
	AccessToken  string   `json:"accessToken,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Email        string   `json:"email,omitempty"`
	Message      string   `json:"message,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Message      string `json:"message,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func failedLogin(message string, fieldErrors ...string) LoginResponse {
	return LoginResponse{Success: false, Message: message, Errors: fieldErrors}
}

func failedRefresh(message string) RefreshResponse {
	return RefreshResponse{Success: false, Message: message}
}

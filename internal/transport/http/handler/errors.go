package handler

const (
	errInternalServer = "Internal server error"
	errInvalidRequest = "Invalid request body"

	msgRegistered         = "Registration successful"
	msgDuplicateEmail     = "User with this email already exists"
	msgRegistrationFailed = "Registration failed"
	msgLoggedIn           = "Login successful"
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgLoggedOut          = "Logged out successfully"
	msgEmailVerified      = "Email verified successfully"
	msgInvalidVerifyToken = "Invalid verification token"
	msgResetEmailSent     = "Password reset email sent"
	msgPasswordReset      = "Password has been reset successfully"
	msgInvalidResetToken  = "Invalid or expired reset token"

	errNoFileProvided           = "No file provided"
	errUnsupportedContentType   = "Expected multipart/form-data request"
	errFileTooLarge             = "Audio file is too large"
	errTranscriptionUnavailable = "Transcription service is unavailable"
	errTranscriptionTimeout     = "Transcription timed out"
	errExtractionFailed         = "Could not extract an appointment from the recording"
	errExtractionTimeout        = "Appointment extraction timed out"
)

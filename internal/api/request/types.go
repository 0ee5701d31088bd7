package request

// JoinRequest is the request body for creating or resuming a profile
type JoinRequest struct {
	Username string `json:"username"`
	Color    string `json:"color,omitempty"`
}

// UpdateProfileRequest is the request body for changing display settings
type UpdateProfileRequest struct {
	Color string `json:"color"`
}

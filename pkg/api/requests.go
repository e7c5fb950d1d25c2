package api

// CreateChannelRequest is the HTTP request body for POST /channels.
type CreateChannelRequest struct {
	URL string `json:"url"`
}

// UpdateChannelRequest is the HTTP request body for PATCH /channels/:id.
type UpdateChannelRequest struct {
	Name *string `json:"name"`
}

// CreateTaskRequest is the HTTP request body for POST /pipeline/tasks.
// Download defaults to true when omitted.
type CreateTaskRequest struct {
	TaskType   string `json:"task_type"`
	ChannelURL string `json:"channel_url"`
	MaxVideos  int    `json:"max_videos"`
	Language   string `json:"language"`
	Download   *bool  `json:"download"`
}

// UpdateSettingRequest is the HTTP request body for PUT /settings/:component/:section/:key.
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

package transfer

type GraphErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type GraphPublishResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type GraphAttachedMedia struct {
	MediaFBID string `json:"media_fbid"`
}

package queue

const (
	TypeArticleSubmit = "article:submit"
)

// ArticleSubmitPayload carries only identifiers; the backend token is read
// from the session store when the task runs.
type ArticleSubmitPayload struct {
	RequestID int64  `json:"request_id"`
	SessionID string `json:"session_id"`
}

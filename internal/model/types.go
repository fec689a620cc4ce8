package model

// User is the signed-in account as the backend reports it. It is created
// server-side at OAuth login and is read-only here.
type User struct {
	ID              int64   `json:"id"`
	OAuthProvider   string  `json:"oauth_provider"` // "google" or "naver"
	OAuthEmail      string  `json:"oauth_email"`
	DisplayName     *string `json:"display_name"`
	ProfileImageURL *string `json:"profile_image_url"`
	IsActive        bool    `json:"is_active"`
	CreatedAt       string  `json:"created_at"`
}

// Name returns the display name, falling back to the OAuth email.
func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.OAuthEmail
}

// EmailAccount is a connected mailbox the backend fetches from.
type EmailAccount struct {
	ID            string  `json:"id"` // opaque, encrypted by the backend
	UserID        int64   `json:"user_id"`
	ProviderType  string  `json:"provider_type"` // "gmail" or "naver"
	EmailAddress  string  `json:"email_address"`
	IsActive      bool    `json:"is_active"`
	LastFetchAt   *string `json:"last_fetch_at"`
	FetchInterval int     `json:"fetch_interval"` // seconds
	CreatedAt     string  `json:"created_at"`
}

// DefaultFetchInterval is what the backend assigns to newly connected accounts.
const DefaultFetchInterval = 300

type EmailStatus string

const (
	StatusPending    EmailStatus = "pending"
	StatusProcessing EmailStatus = "processing"
	StatusProcessed  EmailStatus = "processed"
	StatusFailed     EmailStatus = "failed"
)

type Attachment struct {
	AttachmentID string `json:"attachment_id,omitempty"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

type Classification struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Email is a fetched message. Flags are the only fields the client mutates;
// AI-derived fields are written by the backend.
type Email struct {
	ID                string          `json:"id"`
	EmailAccountID    string          `json:"email_account_id"`
	ProviderType      string          `json:"provider_type,omitempty"`
	ProviderMessageID string          `json:"provider_message_id"`
	Subject           string          `json:"subject"`
	Sender            string          `json:"sender"`
	Recipient         string          `json:"recipient"`
	BodyText          string          `json:"body_text"`
	BodyHTML          *string         `json:"body_html"`
	EmailDate         string          `json:"email_date"`
	Attachments       []Attachment    `json:"attachments"`
	AttachmentCount   int             `json:"attachment_count"`
	HasAttachments    bool            `json:"has_attachments"`
	Status            EmailStatus     `json:"status"`
	IsProcessed       bool            `json:"is_processed"`
	ProcessedAt       *string         `json:"processed_at"`
	VectorDBID        *string         `json:"vector_db_id"`
	Summary           *string         `json:"summary"`
	ImportanceScore   *float64        `json:"importance_score"`
	ImportanceLevel   *string         `json:"importance_level"`
	Classification    *Classification `json:"classification"`
	Sentiment         *string         `json:"sentiment"`
	IsRead            bool            `json:"is_read"`
	IsArchived        bool            `json:"is_archived"`
	IsDeleted         bool            `json:"is_deleted"`
	IsStarred         bool            `json:"is_starred"`
	IsImportant       bool            `json:"is_important"`
	CreatedAt         string          `json:"created_at"`
}

// Page is the backend's pagination envelope.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// AuthToken is returned by the Google callback endpoint. Some backend
// versions include the user alongside the token.
type AuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user,omitempty"`
}

type IngestResult struct {
	Message        string `json:"message"`
	TriggeredCount int    `json:"triggered_count,omitempty"`
}

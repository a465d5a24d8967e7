package models

import (
	"strings"
	"time"
)

type User struct {
	ID       int    `gorm:"primary_key;autoIncrement" json:"id"`
	Username string `gorm:"unique;not null" json:"username"`
	Password string `gorm:"not null" json:"-"` // bcrypt hash, never serialised
	Approved bool   `gorm:"default:false;index" json:"approved"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`
}

// Post is a blog entry. The author is a real foreign key; deleting a user
// that still owns posts is refused both here and in the auth service.
type Post struct {
	ID       int       `gorm:"primary_key;autoIncrement" json:"id"`
	Title    string    `gorm:"not null" json:"title"`
	AuthorID int       `gorm:"not null;index" json:"author_id"`
	Author   User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"author"`
	PostDate time.Time `gorm:"index" json:"post_date"`
	Content  string    `gorm:"type:text" json:"content"`
	Image    string    `json:"image,omitempty"` // stored upload filename
	Category string    `gorm:"default:'General';index" json:"category"`
	Tags     string    `json:"tags"` // comma separated
}

// TagList splits the comma separated tags, dropping blanks.
func (p Post) TagList() []string {
	return SplitList(p.Tags)
}

type Project struct {
	ID              int       `gorm:"primary_key;autoIncrement" json:"id"`
	Title           string    `gorm:"not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	LongDescription string    `gorm:"type:text" json:"long_description"`
	Technologies    string    `json:"technologies"` // comma separated
	GithubURL       string    `json:"github_url"`
	LiveURL         string    `json:"live_url"`
	Image           string    `json:"image,omitempty"`
	Featured        bool      `gorm:"default:false;index" json:"featured"`
	CreatedDate     time.Time `gorm:"autoCreateTime;index" json:"created_date"`
}

func (p Project) TechnologyList() []string {
	return SplitList(p.Technologies)
}

type Contact struct {
	ID          int       `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Email       string    `gorm:"not null" json:"email"`
	Subject     string    `gorm:"not null" json:"subject"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	SubmittedAt time.Time `gorm:"autoCreateTime;index" json:"submitted_at"`
	IsRead      bool      `gorm:"default:false;index" json:"is_read"`
	IsResponded bool      `gorm:"default:false" json:"is_responded"`
}

// SplitList turns "go, gin ,,sql" into ["go", "gin", "sql"].
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Visit is one counted view of a post. Repeated views by the same visitor
// within the throttle window are not stored.
type Visit struct {
	ID        int       `gorm:"primary_key;autoIncrement" json:"id"`
	PostID    int       `gorm:"not null;index" json:"post_id"`
	Post      Post      `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	VisitorID string    `gorm:"not null;index" json:"-"`
	IP        string    `gorm:"not null" json:"-"`
	Language  *string   `json:"language,omitempty"`
	Browser   *string   `json:"browser,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vatsuok/models"
)

const (
	visitorCookie  = "vatsuok_visitor_id"
	visitorMaxAge  = 60 * 60 * 24 * 365 * 2
	throttleWindow = 30 * time.Minute
)

// AnalyticsModule counts post views.
type AnalyticsModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAnalyticsModule(db *gorm.DB, log zerolog.Logger) *AnalyticsModule {
	return &AnalyticsModule{db: db, log: log}
}

// DayVisits is the number of visits on one day.
type DayVisits struct {
	Date  string
	Count int64
}

// PostVisits is the number of visits of one post.
type PostVisits struct {
	PostID    int
	PostTitle string
	Count     int64
}

// TrackVisit records a view of postID. A visitor refreshing the same post
// within 30 minutes is counted once. Failures are logged and never reach
// the reader.
func (a *AnalyticsModule) TrackVisit(c *gin.Context, postID int) {
	visitorID := a.visitorID(c)
	ctx := c.Request.Context()

	var recent int64
	err := a.db.WithContext(ctx).Model(&models.Visit{}).
		Where("visitor_id = ? AND post_id = ? AND created_at > ?", visitorID, postID, time.Now().Add(-throttleWindow)).
		Count(&recent).Error
	if err != nil {
		a.log.Warn().Err(err).Int("post_id", postID).Msg("visit lookup failed")
		return
	}
	if recent > 0 {
		return
	}

	visit := models.Visit{
		PostID:    postID,
		VisitorID: visitorID,
		IP:        clientIP(c),
		Language:  language(c.GetHeader("Accept-Language")),
		Browser:   browser(c.Request.UserAgent()),
		CreatedAt: time.Now(),
	}
	if err := a.db.WithContext(ctx).Omit(clause.Associations).Create(&visit).Error; err != nil {
		a.log.Warn().Err(err).Int("post_id", postID).Msg("saving visit failed")
	}
}

func (a *AnalyticsModule) PostVisitCount(ctx context.Context, postID int) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&models.Visit{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

// VisitsByDay returns one entry per day for the last days days, oldest
// first, with zero for days without visits.
func (a *AnalyticsModule) VisitsByDay(ctx context.Context, days int) ([]DayVisits, error) {
	now := time.Now()
	start := now.AddDate(0, 0, -(days - 1))
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	var visits []models.Visit
	err := a.db.WithContext(ctx).Select("created_at").Where("created_at >= ?", start).Find(&visits).Error
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int64, days)
	for _, v := range visits {
		byDate[v.CreatedAt.In(now.Location()).Format("2006-01-02")]++
	}

	dayVisits := make([]DayVisits, days)
	for i := range dayVisits {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		dayVisits[i] = DayVisits{Date: date, Count: byDate[date]}
	}
	return dayVisits, nil
}

// TopPosts returns the most visited posts of the last days days.
func (a *AnalyticsModule) TopPosts(ctx context.Context, days, limit int) ([]PostVisits, error) {
	results := []PostVisits{}
	err := a.db.WithContext(ctx).Model(&models.Visit{}).
		Select("visits.post_id AS post_id, posts.title AS post_title, COUNT(*) AS count").
		Joins("JOIN posts ON posts.id = visits.post_id").
		Where("visits.created_at >= ?", time.Now().AddDate(0, 0, -days)).
		Group("visits.post_id, posts.title").
		Order("count DESC, visits.post_id").
		Limit(limit).
		Scan(&results).Error
	return results, err
}

func (a *AnalyticsModule) visitorID(c *gin.Context) string {
	if id, err := c.Cookie(visitorCookie); err == nil && id != "" {
		return id
	}

	hash := sha256.Sum256([]byte(time.Now().String() + c.ClientIP() + c.Request.UserAgent()))
	id := hex.EncodeToString(hash[:])
	c.SetCookie(visitorCookie, id, visitorMaxAge, "/", "", false, true)
	return id
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func browser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var name string

	// most specific first
	switch {
	case strings.Contains(ua, "edg"):
		name = "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		name = "Opera"
	case strings.Contains(ua, "chrome"):
		name = "Chrome"
	case strings.Contains(ua, "safari"):
		name = "Safari"
	case strings.Contains(ua, "firefox"):
		name = "Firefox"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident"):
		name = "Internet Explorer"
	default:
		name = "Other"
	}
	return &name
}

// language keeps the first entry of Accept-Language without its q value.
func language(acceptLang string) *string {
	if acceptLang == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(strings.Split(acceptLang, ",")[0], ";")[0])
	if lang == "" {
		return nil
	}
	return &lang
}

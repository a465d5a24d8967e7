package site

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vatsuok/common"
	"vatsuok/models"
)

const (
	homePosts    = 3
	homeProjects = 3
)

// PostSource supplies the newest posts for the home page.
type PostSource interface {
	Recent(ctx context.Context, limit int) ([]models.Post, error)
}

// ProjectSource supplies the featured projects for the home page.
type ProjectSource interface {
	Featured(ctx context.Context, limit int) ([]models.Project, error)
}

type SiteModule struct {
	db       *gorm.DB
	log      zerolog.Logger
	domain   string
	posts    PostSource
	projects ProjectSource
}

func NewSiteModule(db *gorm.DB, log zerolog.Logger, domain string, posts PostSource, projects ProjectSource) *SiteModule {
	return &SiteModule{
		db:       db,
		log:      log,
		domain:   strings.TrimSuffix(domain, "/"),
		posts:    posts,
		projects: projects,
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.index)
	router.GET("/about", s.about)
	router.GET("/services", s.services)
	router.GET("/sitemap.xml", s.sitemap)
	router.GET("/healthz", s.healthz)
}

func (s *SiteModule) index(c *gin.Context) {
	ctx := c.Request.Context()

	posts, err := s.posts.Recent(ctx, homePosts)
	if err != nil {
		common.Fail(c, s.log, err)
		return
	}

	projects, err := s.projects.Featured(ctx, homeProjects)
	if err != nil {
		common.Fail(c, s.log, err)
		return
	}

	common.Render(c, http.StatusOK, "home.html", gin.H{
		"posts":    posts,
		"projects": projects,
	})
}

func (s *SiteModule) about(c *gin.Context) {
	common.Render(c, http.StatusOK, "about.html", gin.H{"title": "About"})
}

func (s *SiteModule) services(c *gin.Context) {
	common.Render(c, http.StatusOK, "services.html", gin.H{"title": "Services"})
}

func (s *SiteModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()

	var posts []models.Post
	if err := s.db.WithContext(ctx).Select("id", "post_date").Order("post_date DESC").Find(&posts).Error; err != nil {
		s.log.Error().Err(err).Msg("sitemap posts")
		c.Status(http.StatusInternalServerError)
		return
	}

	var projects []models.Project
	if err := s.db.WithContext(ctx).Select("id", "created_date").Order("created_date DESC").Find(&projects).Error; err != nil {
		s.log.Error().Err(err).Msg("sitemap projects")
		c.Status(http.StatusInternalServerError)
		return
	}

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	s.writeURL(&sitemap, "/", time.Time{}, "weekly", "1.0")
	s.writeURL(&sitemap, "/blogs", time.Time{}, "daily", "0.9")
	s.writeURL(&sitemap, "/projects", time.Time{}, "weekly", "0.8")
	s.writeURL(&sitemap, "/about", time.Time{}, "monthly", "0.5")
	s.writeURL(&sitemap, "/services", time.Time{}, "monthly", "0.5")
	s.writeURL(&sitemap, "/contact", time.Time{}, "yearly", "0.3")

	for _, post := range posts {
		s.writeURL(&sitemap, fmt.Sprintf("/post/%d", post.ID), post.PostDate, "monthly", "0.7")
	}
	for _, project := range projects {
		s.writeURL(&sitemap, fmt.Sprintf("/project/%d", project.ID), project.CreatedDate, "monthly", "0.6")
	}

	sitemap.WriteString("</urlset>\n")

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, sitemap.String())
}

func (s *SiteModule) writeURL(b *strings.Builder, path string, lastmod time.Time, changefreq, priority string) {
	b.WriteString("  <url>\n")
	b.WriteString("    <loc>" + s.domain + path + "</loc>\n")
	if !lastmod.IsZero() {
		b.WriteString("    <lastmod>" + lastmod.UTC().Format(time.RFC3339) + "</lastmod>\n")
	}
	b.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	b.WriteString("    <priority>" + priority + "</priority>\n")
	b.WriteString("  </url>\n")
}

// healthz reports whether the database answers.
func (s *SiteModule) healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

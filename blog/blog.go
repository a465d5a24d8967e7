package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vatsuok/auth"
	"vatsuok/common"
	"vatsuok/errs"
	"vatsuok/models"
)

const (
	wordsPerMinute  = 200
	relatedLimit    = 3
	defaultCategory = "General"
	defaultLanguage = "python"
)

// ImageStore persists an uploaded image and returns its stored name.
type ImageStore interface {
	Save(fh *multipart.FileHeader) (string, error)
}

// VisitTracker counts views of a post page.
type VisitTracker interface {
	TrackVisit(c *gin.Context, postID int)
	PostVisitCount(ctx context.Context, postID int) (int64, error)
}

type BlogModule struct {
	db     *gorm.DB
	log    zerolog.Logger
	images ImageStore
	visits VisitTracker
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // only admins write posts
	),
)

// PostInput is what the add and edit forms submit.
type PostInput struct {
	Title    string `form:"title"`
	Content  string `form:"content"`
	Code     string `form:"code"`
	Language string `form:"language"`
	Category string `form:"category"`
	Tags     string `form:"tags"`
}

// PostView is a single post ready for display.
type PostView struct {
	Post        models.Post
	HTML        template.HTML
	ReadingTime int
	Related     []models.Post
	Views       int64
}

// NewBlogModule wires the blog. visits may be nil to skip view counting.
func NewBlogModule(db *gorm.DB, log zerolog.Logger, images ImageStore, visits VisitTracker) *BlogModule {
	return &BlogModule{db: db, log: log, images: images, visits: visits}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/blogs", b.index)
	router.GET("/post/:id", b.post)
	router.GET("/search", b.search)

	admin := router.Group("/", auth.RequireAdmin("/blogs"))
	{
		admin.GET("/addpost", b.addPage)
		admin.POST("/addpost", b.addPost)
		admin.GET("/updatepost/:id", b.updatePage)
		admin.POST("/updatepost/:id", b.updatePost)
		admin.GET("/deletepost/:id", b.deletePost)
	}
}

// Create stores a new post authored by actor.
func (b *BlogModule) Create(ctx context.Context, actor *models.User, in PostInput, image *multipart.FileHeader) (*models.Post, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, errs.ErrAccessDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := models.Post{
		Title:    strings.TrimSpace(in.Title),
		AuthorID: actor.ID,
		PostDate: time.Now(),
		Content:  composeContent(in.Content, in.Code, in.Language),
		Category: categoryOrDefault(in.Category),
		Tags:     strings.TrimSpace(in.Tags),
	}

	if err := b.attachImage(&post, image); err != nil {
		return nil, err
	}

	if err := b.db.WithContext(ctx).Omit(clause.Associations).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = *actor

	b.log.Info().Int("post_id", post.ID).Int("by", actor.ID).Msg("post created")
	return &post, nil
}

// Update rewrites the post. The editing admin becomes its author and the
// post date moves to now; the image is kept unless a new one is uploaded.
func (b *BlogModule) Update(ctx context.Context, actor *models.User, id int, in PostInput, image *multipart.FileHeader) (*models.Post, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, errs.ErrAccessDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	post, err := b.find(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Title = strings.TrimSpace(in.Title)
	post.AuthorID = actor.ID
	post.Author = *actor
	post.PostDate = time.Now()
	post.Content = composeContent(in.Content, in.Code, in.Language)
	post.Category = categoryOrDefault(in.Category)
	post.Tags = strings.TrimSpace(in.Tags)

	if err := b.attachImage(post, image); err != nil {
		return nil, err
	}

	if err := b.db.WithContext(ctx).Omit(clause.Associations).Save(post).Error; err != nil {
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}

	b.log.Info().Int("post_id", post.ID).Int("by", actor.ID).Msg("post updated")
	return post, nil
}

func (b *BlogModule) Delete(ctx context.Context, actor *models.User, id int) error {
	if actor == nil || !actor.IsAdmin {
		return errs.ErrAccessDenied
	}

	res := b.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %d: %w", id, errs.ErrNotFound)
	}

	b.log.Info().Int("post_id", id).Int("by", actor.ID).Msg("post deleted")
	return nil
}

// List returns every post, newest first.
func (b *BlogModule) List(ctx context.Context) ([]models.Post, error) {
	posts := []models.Post{}
	err := b.db.WithContext(ctx).Preload("Author").Order("post_date DESC").Find(&posts).Error
	return posts, err
}

// Recent returns the newest limit posts.
func (b *BlogModule) Recent(ctx context.Context, limit int) ([]models.Post, error) {
	posts := []models.Post{}
	err := b.db.WithContext(ctx).Preload("Author").Order("post_date DESC").Limit(limit).Find(&posts).Error
	return posts, err
}

// Get loads a post with its rendered body, reading time and up to three
// other posts of the same category.
func (b *BlogModule) Get(ctx context.Context, id int) (*PostView, error) {
	post, err := b.find(ctx, id)
	if err != nil {
		return nil, err
	}

	related := []models.Post{}
	err = b.db.WithContext(ctx).
		Where("category = ? AND id <> ?", post.Category, post.ID).
		Order("post_date DESC").
		Limit(relatedLimit).
		Find(&related).Error
	if err != nil {
		return nil, fmt.Errorf("related posts %d: %w", id, err)
	}

	return &PostView{
		Post:        *post,
		HTML:        template.HTML(renderMarkdown(post.Content)),
		ReadingTime: ReadingTime(post.Content),
		Related:     related,
	}, nil
}

// Search matches q against title, content and tags, ignoring case. A blank
// query matches nothing.
func (b *BlogModule) Search(ctx context.Context, q string) ([]models.Post, error) {
	posts := []models.Post{}
	if strings.TrimSpace(q) == "" {
		return posts, nil
	}

	// both sides go through the database's LOWER so they fold the same way
	pattern := "%" + escapeLike(q) + "%"
	err := b.db.WithContext(ctx).
		Preload("Author").
		Where(`LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(content) LIKE LOWER(?) ESCAPE '\' OR LOWER(tags) LIKE LOWER(?) ESCAPE '\'`,
			pattern, pattern, pattern).
		Order("post_date DESC").
		Find(&posts).Error
	return posts, err
}

func (b *BlogModule) find(ctx context.Context, id int) (*models.Post, error) {
	var post models.Post
	err := b.db.WithContext(ctx).Preload("Author").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("post %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (b *BlogModule) attachImage(post *models.Post, image *multipart.FileHeader) error {
	if image == nil || image.Filename == "" || b.images == nil {
		return nil
	}
	name, err := b.images.Save(image)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	post.Image = name
	return nil
}

func (in PostInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return errs.ErrMissingField
	}
	return nil
}

// ReadingTime estimates minutes at 200 words per minute, never less than one.
// Halves round to even.
func ReadingTime(content string) int {
	words := len(strings.Fields(content))
	minutes := int(math.RoundToEven(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// composeContent appends code as a fenced block. The fence grows until it
// does not occur in the code itself.
func composeContent(content, code, language string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return content
	}

	language = strings.TrimSpace(language)
	if language == "" {
		language = defaultLanguage
	}

	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	return content + "\n\n" + fence + language + "\n" + code + "\n" + fence + "\n"
}

func categoryOrDefault(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return defaultCategory
	}
	return category
}

// escapeLike escapes the LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTMLEscapeString(src)
	}
	return buf.String()
}

func (b *BlogModule) index(c *gin.Context) {
	posts, err := b.List(c.Request.Context())
	if err != nil {
		common.Fail(c, b.log, err)
		return
	}

	name := "guest"
	if user := common.Principal(c); user != nil {
		name = user.Username
	}

	common.Render(c, http.StatusOK, "blogs.html", gin.H{
		"title": "Blogs",
		"posts": posts,
		"name":  name,
	})
}

func (b *BlogModule) post(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	view, err := b.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, b.log, err)
		return
	}

	if b.visits != nil {
		b.visits.TrackVisit(c, view.Post.ID)
		views, err := b.visits.PostVisitCount(c.Request.Context(), view.Post.ID)
		if err != nil {
			b.log.Warn().Err(err).Int("post_id", view.Post.ID).Msg("failed to count post views")
		}
		view.Views = views
	}

	common.Render(c, http.StatusOK, "post.html", gin.H{
		"title": view.Post.Title,
		"view":  view,
	})
}

func (b *BlogModule) search(c *gin.Context) {
	query := c.Query("q")

	posts, err := b.Search(c.Request.Context(), query)
	if err != nil {
		common.Fail(c, b.log, err)
		return
	}

	common.Render(c, http.StatusOK, "search.html", gin.H{
		"title": "Search",
		"posts": posts,
		"query": query,
	})
}

func (b *BlogModule) addPage(c *gin.Context) {
	common.Render(c, http.StatusOK, "addpost.html", gin.H{
		"title": "Add Post",
		"form":  PostInput{Category: defaultCategory},
	})
}

func (b *BlogModule) addPost(c *gin.Context) {
	var in PostInput
	if err := c.ShouldBind(&in); err != nil {
		b.renderForm(c, "addpost.html", "Add Post", 0, in, errs.ErrMissingField)
		return
	}

	_, err := b.Create(c.Request.Context(), common.Principal(c), in, formImage(c))
	if err != nil {
		b.renderForm(c, "addpost.html", "Add Post", 0, in, err)
		return
	}

	common.FlashRedirect(c, "success", "Post published successfully!", "/blogs")
}

func (b *BlogModule) updatePage(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	post, err := b.find(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, b.log, err)
		return
	}

	common.Render(c, http.StatusOK, "updatepost.html", gin.H{
		"title": "Edit Post",
		"id":    post.ID,
		"form": PostInput{
			Title:    post.Title,
			Content:  post.Content,
			Category: post.Category,
			Tags:     post.Tags,
		},
	})
}

func (b *BlogModule) updatePost(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	var in PostInput
	if err := c.ShouldBind(&in); err != nil {
		b.renderForm(c, "updatepost.html", "Edit Post", id, in, errs.ErrMissingField)
		return
	}

	_, err := b.Update(c.Request.Context(), common.Principal(c), id, in, formImage(c))
	if err != nil {
		b.renderForm(c, "updatepost.html", "Edit Post", id, in, err)
		return
	}

	common.FlashRedirect(c, "success", "Post updated successfully!", "/blogs")
}

func (b *BlogModule) deletePost(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	if err := b.Delete(c.Request.Context(), common.Principal(c), id); err != nil {
		if errors.Is(err, errs.ErrAccessDenied) {
			common.Deny(c, "/blogs")
			return
		}
		common.Fail(c, b.log, err)
		return
	}

	common.FlashRedirect(c, "success", "Post deleted successfully!", "/blogs")
}

// renderForm shows the form again for input errors and hands anything else
// to the shared error pages.
func (b *BlogModule) renderForm(c *gin.Context, page, title string, id int, in PostInput, err error) {
	switch {
	case errors.Is(err, errs.ErrAccessDenied):
		common.Deny(c, "/blogs")
	case errors.Is(err, errs.ErrMissingField), errors.Is(err, errs.ErrUploadTooLarge):
		common.Render(c, http.StatusBadRequest, page, gin.H{
			"title": title,
			"id":    id,
			"form":  in,
			"error": errs.Notice(err),
		})
	default:
		common.Fail(c, b.log, err)
	}
}

// formImage returns the uploaded image, or nil when none was sent.
func formImage(c *gin.Context) *multipart.FileHeader {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil
	}
	return fh
}

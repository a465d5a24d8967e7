package project

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vatsuok/auth"
	"vatsuok/common"
	"vatsuok/errs"
	"vatsuok/models"
)

type ImageStore interface {
	Save(fh *multipart.FileHeader) (string, error)
}

type ProjectModule struct {
	db     *gorm.DB
	log    zerolog.Logger
	images ImageStore
}

// ProjectInput is what the project forms submit. Featured comes from a
// checkbox and is read by presence.
type ProjectInput struct {
	Title           string `form:"title"`
	Description     string `form:"description"`
	LongDescription string `form:"long_description"`
	Technologies    string `form:"technologies"`
	GithubURL       string `form:"github_url"`
	LiveURL         string `form:"live_url"`
	Featured        bool   `form:"-"`
}

type ProjectListing struct {
	Featured []models.Project
	All      []models.Project
}

type ProjectView struct {
	Project      models.Project
	Technologies []string
}

func NewProjectModule(db *gorm.DB, log zerolog.Logger, images ImageStore) *ProjectModule {
	return &ProjectModule{db: db, log: log, images: images}
}

func (p *ProjectModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/projects", p.index)
	router.GET("/project/:id", p.detail)

	admin := router.Group("/", auth.RequireAdmin("/projects"))
	{
		admin.GET("/add_project", p.addPage)
		admin.POST("/add_project", p.addProject)
		admin.GET("/update_project/:id", p.updatePage)
		admin.POST("/update_project/:id", p.updateProject)
		admin.GET("/delete_project/:id", p.deleteProject)
	}
}

func (p *ProjectModule) Create(ctx context.Context, actor *models.User, in ProjectInput, image *multipart.FileHeader) (*models.Project, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, errs.ErrAccessDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var project models.Project
	in.apply(&project)
	if err := p.attachImage(&project, image); err != nil {
		return nil, err
	}

	if err := p.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	p.log.Info().Int("project_id", project.ID).Int("by", actor.ID).Msg("project created")
	return &project, nil
}

// Update replaces every editable field. The stored image is kept unless a
// new one is uploaded.
func (p *ProjectModule) Update(ctx context.Context, actor *models.User, id int, in ProjectInput, image *multipart.FileHeader) (*models.Project, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, errs.ErrAccessDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	project, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}

	in.apply(project)
	if err := p.attachImage(project, image); err != nil {
		return nil, err
	}

	if err := p.db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, fmt.Errorf("update project %d: %w", id, err)
	}

	p.log.Info().Int("project_id", project.ID).Int("by", actor.ID).Msg("project updated")
	return project, nil
}

func (p *ProjectModule) Delete(ctx context.Context, actor *models.User, id int) error {
	if actor == nil || !actor.IsAdmin {
		return errs.ErrAccessDenied
	}

	res := p.db.WithContext(ctx).Delete(&models.Project{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete project %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("project %d: %w", id, errs.ErrNotFound)
	}

	p.log.Info().Int("project_id", id).Int("by", actor.ID).Msg("project deleted")
	return nil
}

// List returns the featured projects and every project, newest first.
func (p *ProjectModule) List(ctx context.Context) (*ProjectListing, error) {
	listing := &ProjectListing{Featured: []models.Project{}, All: []models.Project{}}

	db := p.db.WithContext(ctx)
	if err := db.Where("featured = ?", true).Order("created_date DESC").Find(&listing.Featured).Error; err != nil {
		return nil, fmt.Errorf("featured projects: %w", err)
	}
	if err := db.Order("created_date DESC").Find(&listing.All).Error; err != nil {
		return nil, fmt.Errorf("all projects: %w", err)
	}
	return listing, nil
}

// Featured returns at most limit featured projects, newest first.
func (p *ProjectModule) Featured(ctx context.Context, limit int) ([]models.Project, error) {
	projects := []models.Project{}
	err := p.db.WithContext(ctx).Where("featured = ?", true).Order("created_date DESC").Limit(limit).Find(&projects).Error
	return projects, err
}

func (p *ProjectModule) Get(ctx context.Context, id int) (*ProjectView, error) {
	project, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectView{Project: *project, Technologies: project.TechnologyList()}, nil
}

func (p *ProjectModule) find(ctx context.Context, id int) (*models.Project, error) {
	var project models.Project
	err := p.db.WithContext(ctx).First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("project %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (p *ProjectModule) attachImage(project *models.Project, image *multipart.FileHeader) error {
	if image == nil || image.Filename == "" || p.images == nil {
		return nil
	}
	name, err := p.images.Save(image)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	project.Image = name
	return nil
}

func (in ProjectInput) validate() error {
	for _, v := range []string{in.Title, in.Description, in.Technologies} {
		if strings.TrimSpace(v) == "" {
			return errs.ErrMissingField
		}
	}
	return nil
}

func (in ProjectInput) apply(project *models.Project) {
	project.Title = strings.TrimSpace(in.Title)
	project.Description = strings.TrimSpace(in.Description)
	project.LongDescription = strings.TrimSpace(in.LongDescription)
	project.Technologies = strings.TrimSpace(in.Technologies)
	project.GithubURL = strings.TrimSpace(in.GithubURL)
	project.LiveURL = strings.TrimSpace(in.LiveURL)
	project.Featured = in.Featured
}

func (p *ProjectModule) index(c *gin.Context) {
	listing, err := p.List(c.Request.Context())
	if err != nil {
		common.Fail(c, p.log, err)
		return
	}

	common.Render(c, http.StatusOK, "projects.html", gin.H{
		"title":   "Projects",
		"listing": listing,
	})
}

func (p *ProjectModule) detail(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	view, err := p.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, p.log, err)
		return
	}

	common.Render(c, http.StatusOK, "project_detail.html", gin.H{
		"title": view.Project.Title,
		"view":  view,
	})
}

func (p *ProjectModule) addPage(c *gin.Context) {
	common.Render(c, http.StatusOK, "add_project.html", gin.H{
		"title": "Add Project",
		"form":  ProjectInput{},
	})
}

func (p *ProjectModule) addProject(c *gin.Context) {
	in := bindInput(c)

	_, err := p.Create(c.Request.Context(), common.Principal(c), in, formImage(c))
	if err != nil {
		p.renderForm(c, "add_project.html", "Add Project", 0, in, err)
		return
	}

	common.FlashRedirect(c, "success", "Project added successfully!", "/projects")
}

func (p *ProjectModule) updatePage(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	project, err := p.find(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, p.log, err)
		return
	}

	common.Render(c, http.StatusOK, "update_project.html", gin.H{
		"title": "Edit Project",
		"id":    project.ID,
		"form": ProjectInput{
			Title:           project.Title,
			Description:     project.Description,
			LongDescription: project.LongDescription,
			Technologies:    project.Technologies,
			GithubURL:       project.GithubURL,
			LiveURL:         project.LiveURL,
			Featured:        project.Featured,
		},
	})
}

func (p *ProjectModule) updateProject(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}
	in := bindInput(c)

	project, err := p.Update(c.Request.Context(), common.Principal(c), id, in, formImage(c))
	if err != nil {
		p.renderForm(c, "update_project.html", "Edit Project", id, in, err)
		return
	}

	common.FlashRedirect(c, "success", "Project updated successfully!", fmt.Sprintf("/project/%d", project.ID))
}

func (p *ProjectModule) deleteProject(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	if err := p.Delete(c.Request.Context(), common.Principal(c), id); err != nil {
		if errors.Is(err, errs.ErrAccessDenied) {
			common.Deny(c, "/projects")
			return
		}
		common.Fail(c, p.log, err)
		return
	}

	common.FlashRedirect(c, "success", "Project deleted successfully!", "/projects")
}

func (p *ProjectModule) renderForm(c *gin.Context, page, title string, id int, in ProjectInput, err error) {
	switch {
	case errors.Is(err, errs.ErrAccessDenied):
		common.Deny(c, "/projects")
	case errors.Is(err, errs.ErrMissingField), errors.Is(err, errs.ErrUploadTooLarge):
		common.Render(c, http.StatusBadRequest, page, gin.H{
			"title": title,
			"id":    id,
			"form":  in,
			"error": errs.Notice(err),
		})
	default:
		common.Fail(c, p.log, err)
	}
}

func bindInput(c *gin.Context) ProjectInput {
	var in ProjectInput
	c.ShouldBind(&in) // missing fields are caught by validate
	_, in.Featured = c.GetPostForm("featured")
	return in
}

func formImage(c *gin.Context) *multipart.FileHeader {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil
	}
	return fh
}

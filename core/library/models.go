package library

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

// AllCategories is the pseudo category matching every book; it cannot be assigned or deleted.
const AllCategories = "All"

var PaperTypes = []string{"Midterm", "Final", "Quiz"}

type Book struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Author      string     `json:"author" yaml:"author"`
	Category    string     `json:"category" yaml:"category"`
	Year        string     `json:"year" yaml:"year"`
	Description string     `json:"description" yaml:"description"`
	CoverImage  string     `json:"cover_image" yaml:"cover_image"`
	PdfURL      string     `json:"pdf_url" yaml:"pdf_url"`
	DataAIHint  string     `json:"data_ai_hint,omitempty" yaml:"data_ai_hint"`
	AddedAt     *time.Time `json:"added_at,omitempty" yaml:"added_at,omitempty"`
}

func (b Book) RecordID() string { return b.ID }

type QuestionPaper struct {
	ID          string `json:"id" yaml:"id"`
	Subject     string `json:"subject" yaml:"subject"`
	Category    string `json:"category" yaml:"category"`
	Year        string `json:"year" yaml:"year"`
	University  string `json:"university" yaml:"university"`
	Type        string `json:"type" yaml:"type"`
	DownloadURL string `json:"download_url" yaml:"download_url"`
}

func (p QuestionPaper) RecordID() string { return p.ID }

// Category is identified by its name.
type Category struct {
	Name string `json:"name" yaml:"name"`
}

func (c Category) RecordID() string { return c.Name }

// Upload is a file sent along a new record.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// NewBook contains information needed to add a Book. Either a URL or an Upload
// is needed for the PDF; the cover falls back to a placeholder.
type NewBook struct {
	Title       string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Author      string `json:"author" form:"author" validate:"required,notblank,max=200"`
	Category    string `json:"category" form:"category" validate:"required,category"`
	Year        string `json:"year" form:"year" validate:"required,year"`
	Description string `json:"description" form:"description" validate:"max=2000"`
	CoverImage  string `json:"cover_image" form:"cover_image" validate:"omitempty,url"`
	PdfURL      string `json:"pdf_url" form:"pdf_url" validate:"omitempty,url"`
	DataAIHint  string `json:"data_ai_hint" form:"data_ai_hint" validate:"max=60"`
}

func (nb *NewBook) Validate(validate *validator.Validate) error {
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.Category = core.CleanString(nb.Category)
	nb.Description = core.CleanString(nb.Description)
	nb.DataAIHint = core.CleanString(nb.DataAIHint, true /* lower */)
	return validate.Struct(nb)
}

// UpdateBook defines what may change on an existing Book. Zero values are left untouched.
type UpdateBook struct {
	Title       string `json:"title" validate:"omitempty,notblank,max=200"`
	Author      string `json:"author" validate:"omitempty,notblank,max=200"`
	Category    string `json:"category" validate:"omitempty,category"`
	Year        string `json:"year" validate:"omitempty,year"`
	Description string `json:"description" validate:"max=2000"`
	CoverImage  string `json:"cover_image" validate:"omitempty,url"`
	PdfURL      string `json:"pdf_url" validate:"omitempty,url"`
	DataAIHint  string `json:"data_ai_hint" validate:"max=60"`
}

func (ub *UpdateBook) Validate(validate *validator.Validate) error {
	ub.Title = core.CleanString(ub.Title)
	ub.Author = core.CleanString(ub.Author)
	ub.Category = core.CleanString(ub.Category)
	ub.Description = core.CleanString(ub.Description)
	ub.DataAIHint = core.CleanString(ub.DataAIHint, true /* lower */)
	return validate.Struct(ub)
}

func (ub UpdateBook) fields() map[string]interface{} {
	fields := make(map[string]interface{})
	set := func(key, val string) {
		if val != "" {
			fields[key] = val
		}
	}
	set("title", ub.Title)
	set("author", ub.Author)
	set("category", ub.Category)
	set("year", ub.Year)
	set("description", ub.Description)
	set("cover_image", ub.CoverImage)
	set("pdf_url", ub.PdfURL)
	set("data_ai_hint", ub.DataAIHint)
	return fields
}

type NewPaper struct {
	Subject     string `json:"subject" form:"subject" validate:"required,notblank,max=200"`
	Category    string `json:"category" form:"category" validate:"required,category"`
	Year        string `json:"year" form:"year" validate:"required,year"`
	University  string `json:"university" form:"university" validate:"required,notblank,max=100"`
	Type        string `json:"type" form:"type" validate:"required,oneof=Midterm Final Quiz"`
	DownloadURL string `json:"download_url" form:"download_url" validate:"omitempty,url"`
}

func (np *NewPaper) Validate(validate *validator.Validate) error {
	np.Subject = core.CleanString(np.Subject)
	np.Category = core.CleanString(np.Category)
	np.University = core.CleanString(np.University)
	return validate.Struct(np)
}

type NewCategory struct {
	Name string `json:"name" validate:"required,notblank,max=60,alphanum_"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// BookFilter narrows down the books listing. AllCategories and "All" years match everything.
type BookFilter struct {
	Category string `query:"category"`
	Year     string `query:"year"`
	Search   string `query:"search"`
}

func (bf *BookFilter) Clean() {
	bf.Category = core.CleanString(bf.Category)
	bf.Year = core.CleanString(bf.Year)
	bf.Search = core.CleanString(bf.Search)
}

func (bf BookFilter) matches(b Book) bool {
	if bf.Category != "" && bf.Category != AllCategories && b.Category != bf.Category {
		return false
	}
	if bf.Year != "" && bf.Year != AllCategories && b.Year != bf.Year {
		return false
	}
	if bf.Search != "" && !(core.ContainsFold(b.Title, bf.Search) ||
		core.ContainsFold(b.Author, bf.Search) ||
		core.ContainsFold(b.Description, bf.Search)) {
		return false
	}
	return true
}

type PaperFilter struct {
	Category string `query:"category"`
	Year     string `query:"year"`
	Type     string `query:"type"`
	Search   string `query:"search"`
}

func (pf *PaperFilter) Clean() {
	pf.Category = core.CleanString(pf.Category)
	pf.Year = core.CleanString(pf.Year)
	pf.Type = core.CleanString(pf.Type)
	pf.Search = core.CleanString(pf.Search)
}

func (pf PaperFilter) matches(p QuestionPaper) bool {
	if pf.Category != "" && pf.Category != AllCategories && p.Category != pf.Category {
		return false
	}
	if pf.Year != "" && pf.Year != AllCategories && p.Year != pf.Year {
		return false
	}
	if pf.Type != "" && p.Type != pf.Type {
		return false
	}
	if pf.Search != "" && !(core.ContainsFold(p.Subject, pf.Search) || core.ContainsFold(p.University, pf.Search)) {
		return false
	}
	return true
}

// Stats summarizes the library for the admin dashboard.
type Stats struct {
	Books            int `json:"books"`
	UploadedBooks    int `json:"uploaded_books"`
	RemainingUploads int `json:"remaining_uploads"`
	Papers           int `json:"papers"`
	Categories       int `json:"categories"`
}

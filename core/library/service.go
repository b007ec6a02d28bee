// Package library manages the catalogue: books, question papers and their categories.
package library

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/store"
	appfs "github.com/trezcool/maktaba/fs"
)

const (
	BooksSlot      = "books"
	PapersSlot     = "question-papers"
	CategoriesSlot = "categories"

	DefaultCoverImage = "https://placehold.co/300x450.png"

	msgBookCapReached  = "Upload limit reached. Delete an existing book before adding a new one."
	msgBookStorageFull = "Storage limit reached. Could not save the new book."
	msgBookUnexpected  = "An unexpected error occurred while saving the book."
)

var (
	ErrNotFound      = errors.New("not found")
	ErrMissingPDF    = errors.New("a PDF file or URL is required")
	ErrNotPDF        = errors.New("only PDF files are accepted")
	ErrNotImage      = errors.New("only image files are accepted")
	ErrAllCategories = errors.New(`the "All" category cannot be modified`)

	titleCaser = cases.Title(language.English)

	pdfMagic  = []byte("%PDF-")
	imageExts = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
)

// sniffLen is how much of an upload is inspected to tell its kind.
const sniffLen = 512

// BlobStore keeps uploaded files and returns the URL they are served from.
type BlobStore interface {
	Save(ctx context.Context, name string, r io.Reader) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// Stores groups the collections of the library.
type Stores struct {
	Books      *store.Store[Book]
	Papers     *store.Store[QuestionPaper]
	Categories *store.Store[Category]
}

// NewStores builds the library collections, seeded from the embedded catalogue.
// At most bookCap books may be added on top of the seed.
func NewStores(slot store.Slot, bus store.Bus, conf *core.Config, logger core.Logger) (Stores, error) {
	var (
		books  []Book
		papers []QuestionPaper
		cats   []Category
	)
	if err := appfs.LoadSeed(BooksSlot, &books); err != nil {
		return Stores{}, err
	}
	if err := appfs.LoadSeed(PapersSlot, &papers); err != nil {
		return Stores{}, err
	}
	if err := appfs.LoadSeed(CategoriesSlot, &cats); err != nil {
		return Stores{}, err
	}

	ns := conf.Storage.Namespace
	return Stores{
		Books: store.New(slot, bus, store.Options[Book]{
			Key:     store.Key(ns, BooksSlot),
			Seed:    books,
			Bound:   conf.Storage.BookCap,
			Policy:  store.Reject,
			Prepend: true,
			Logger:  logger,
		}),
		Papers: store.New(slot, bus, store.Options[QuestionPaper]{
			Key:     store.Key(ns, PapersSlot),
			Seed:    papers,
			Prepend: true,
			Logger:  logger,
		}),
		Categories: store.New(slot, bus, store.Options[Category]{
			Key:    store.Key(ns, CategoriesSlot),
			Seed:   cats,
			Logger: logger,
		}),
	}, nil
}

type Service struct {
	stores  Stores
	blobs   BlobStore
	feed    *notification.Feed
	bookCap int
	logger  core.Logger
}

func NewService(stores Stores, blobs BlobStore, feed *notification.Feed, conf *core.Config, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Service{
		stores:  stores,
		blobs:   blobs,
		feed:    feed,
		bookCap: conf.Storage.BookCap,
		logger:  logger,
	}
}

// Books

// Books returns the books matching filter, newest first.
func (svc *Service) Books(filter BookFilter) []Book {
	books := svc.stores.Books.All()
	out := books[:0]
	for _, b := range books {
		if filter.matches(b) {
			out = append(out, b)
		}
	}
	return out
}

// Featured returns the n most recent books.
func (svc *Service) Featured(n int) []Book {
	books := svc.stores.Books.All()
	if len(books) > n {
		books = books[:n]
	}
	return books
}

func (svc *Service) Book(id string) (Book, error) {
	b, ok := svc.stores.Books.Get(id)
	if !ok {
		return Book{}, ErrNotFound
	}
	return b, nil
}

func (svc *Service) HasBook(id string) bool {
	_, ok := svc.stores.Books.Get(id)
	return ok
}

// AddBook stores the uploaded files and prepends the book. A failed insert removes the
// uploaded files again. Success is announced in the notification feed.
func (svc *Service) AddBook(ctx context.Context, nb NewBook, pdf, cover *Upload) (Book, store.Result) {
	if pdf == nil && nb.PdfURL == "" {
		return Book{}, failed(core.NewFieldValidationError("pdf_url", ErrMissingPDF))
	}
	// fail fast before storing any file
	if svc.bookCap > 0 && svc.UploadedBooks() >= svc.bookCap {
		return Book{}, failed(store.ErrCapReached).WithMessage(msgBookCapReached)
	}

	now := time.Now().UTC()
	book := Book{
		ID:          uuid.NewString(),
		Title:       nb.Title,
		Author:      nb.Author,
		Category:    nb.Category,
		Year:        nb.Year,
		Description: nb.Description,
		CoverImage:  nb.CoverImage,
		PdfURL:      nb.PdfURL,
		DataAIHint:  nb.DataAIHint,
		AddedAt:     &now,
	}

	var saved []string
	rollback := func() {
		for _, url := range saved {
			if err := svc.blobs.Delete(ctx, url); err != nil {
				svc.logger.Warn("removing orphan upload", err)
			}
		}
	}
	if pdf != nil {
		if sniff(pdf) != ".pdf" {
			return Book{}, failed(core.NewFieldValidationError("pdf", ErrNotPDF))
		}
		url, err := svc.blobs.Save(ctx, "book.pdf", pdf.Content)
		if err != nil {
			return Book{}, failed(errors.Wrap(err, "saving pdf"))
		}
		saved = append(saved, url)
		book.PdfURL = url
	}
	if cover != nil {
		ext := sniff(cover)
		if ext == "" || ext == ".pdf" {
			rollback()
			return Book{}, failed(core.NewFieldValidationError("cover", ErrNotImage))
		}
		url, err := svc.blobs.Save(ctx, "cover"+ext, cover.Content)
		if err != nil {
			rollback()
			return Book{}, failed(errors.Wrap(err, "saving cover"))
		}
		saved = append(saved, url)
		book.CoverImage = url
	}
	if book.CoverImage == "" {
		book.CoverImage = DefaultCoverImage
	}

	res := svc.stores.Books.Insert(ctx, book)
	if !res.Success {
		rollback()
		return Book{}, bookResult(res)
	}

	if _, nres := svc.feed.Produce(ctx, notification.New{
		Title:       "New Book Added! 📚",
		Description: fmt.Sprintf("%q is now available in the library.", book.Title),
		Type:        notification.TypeNewBook,
	}); !nres.Success {
		svc.logger.Warn("announcing new book", nres.Err())
	}
	return book, res
}

// UpdateBook merges the non-zero fields of ub into the book.
func (svc *Service) UpdateBook(ctx context.Context, id string, ub UpdateBook) (Book, store.Result) {
	if _, err := svc.Book(id); err != nil {
		return Book{}, failed(err)
	}
	res := svc.stores.Books.Update(ctx, id, ub.fields())
	if !res.Success {
		return Book{}, res
	}
	b, _ := svc.stores.Books.Get(id)
	return b, res
}

// DeleteBook removes the book and the files uploaded with it. Deleting an unknown book is a no-op.
func (svc *Service) DeleteBook(ctx context.Context, id string) store.Result {
	b, ok := svc.stores.Books.Get(id)
	res := svc.stores.Books.Delete(ctx, id)
	if res.Success && ok {
		for _, url := range []string{b.PdfURL, b.CoverImage} {
			if err := svc.blobs.Delete(ctx, url); err != nil {
				svc.logger.Warn("removing upload of deleted book", err)
			}
		}
	}
	return res
}

// UploadedBooks counts the books added on top of the seed catalogue.
func (svc *Service) UploadedBooks() int {
	var n int
	for _, b := range svc.stores.Books.All() {
		if !svc.stores.Books.IsSeed(b.ID) {
			n++
		}
	}
	return n
}

// Question papers

func (svc *Service) Papers(filter PaperFilter) []QuestionPaper {
	papers := svc.stores.Papers.All()
	out := papers[:0]
	for _, p := range papers {
		if filter.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (svc *Service) Paper(id string) (QuestionPaper, error) {
	p, ok := svc.stores.Papers.Get(id)
	if !ok {
		return QuestionPaper{}, ErrNotFound
	}
	return p, nil
}

func (svc *Service) AddPaper(ctx context.Context, np NewPaper, file *Upload) (QuestionPaper, store.Result) {
	if file == nil && np.DownloadURL == "" {
		return QuestionPaper{}, failed(core.NewFieldValidationError("download_url", ErrMissingPDF))
	}
	paper := QuestionPaper{
		ID:          uuid.NewString(),
		Subject:     np.Subject,
		Category:    np.Category,
		Year:        np.Year,
		University:  np.University,
		Type:        np.Type,
		DownloadURL: np.DownloadURL,
	}
	if file != nil {
		if sniff(file) != ".pdf" {
			return QuestionPaper{}, failed(core.NewFieldValidationError("file", ErrNotPDF))
		}
		url, err := svc.blobs.Save(ctx, "paper.pdf", file.Content)
		if err != nil {
			return QuestionPaper{}, failed(errors.Wrap(err, "saving paper"))
		}
		paper.DownloadURL = url
	}

	res := svc.stores.Papers.Insert(ctx, paper)
	if !res.Success && file != nil {
		_ = svc.blobs.Delete(ctx, paper.DownloadURL)
	}
	return paper, res
}

func (svc *Service) DeletePaper(ctx context.Context, id string) store.Result {
	p, ok := svc.stores.Papers.Get(id)
	res := svc.stores.Papers.Delete(ctx, id)
	if res.Success && ok {
		if err := svc.blobs.Delete(ctx, p.DownloadURL); err != nil {
			svc.logger.Warn("removing upload of deleted paper", err)
		}
	}
	return res
}

// Categories

func (svc *Service) Categories() []Category {
	return svc.stores.Categories.All()
}

// HasCategory reports whether name is an assignable category.
func (svc *Service) HasCategory(name string) bool {
	if name == AllCategories {
		return false
	}
	_, ok := svc.stores.Categories.Get(name)
	return ok
}

// AddCategory appends the title-cased category. Adding an existing one is a successful no-op.
func (svc *Service) AddCategory(ctx context.Context, nc NewCategory) (Category, store.Result) {
	cat := Category{Name: titleCaser.String(strings.Join(strings.Fields(nc.Name), " "))}
	for _, c := range svc.stores.Categories.All() {
		if strings.EqualFold(c.Name, cat.Name) {
			return c, store.Result{Success: true}
		}
	}
	return cat, svc.stores.Categories.Insert(ctx, cat)
}

// DeleteCategory removes a category. Books and papers keep their category label.
func (svc *Service) DeleteCategory(ctx context.Context, name string) store.Result {
	if name == AllCategories {
		return failed(core.NewFieldValidationError("name", ErrAllCategories))
	}
	return svc.stores.Categories.Delete(ctx, name)
}

func (svc *Service) Stats() Stats {
	uploaded := svc.UploadedBooks()
	remaining := svc.bookCap - uploaded
	if remaining < 0 || svc.bookCap == 0 {
		remaining = 0
	}
	var cats int
	for _, c := range svc.Categories() {
		if c.Name != AllCategories {
			cats++
		}
	}
	return Stats{
		Books:            len(svc.stores.Books.All()),
		UploadedBooks:    uploaded,
		RemainingUploads: remaining,
		Papers:           len(svc.stores.Papers.All()),
		Categories:       cats,
	}
}

func bookResult(res store.Result) store.Result {
	err := res.Err()
	switch {
	case errors.Is(err, store.ErrCapReached):
		return res.WithMessage(msgBookCapReached)
	case errors.Is(err, store.ErrQuotaExceeded):
		return res.WithMessage(msgBookStorageFull)
	case errors.Is(err, store.ErrDuplicate):
		return res
	}
	return res.WithMessage(msgBookUnexpected)
}

// sniff tells the kind of u from its first bytes and returns the extension it is stored
// under, or "" for anything but a PDF or a known image. The client's file name and
// content type are ignored. u.Content is replaced by a reader that still yields the
// inspected bytes.
func sniff(u *Upload) string {
	br := bufio.NewReaderSize(u.Content, sniffLen)
	u.Content = br
	head, _ := br.Peek(sniffLen)
	if bytes.HasPrefix(head, pdfMagic) {
		return ".pdf"
	}
	return imageExts[http.DetectContentType(head)]
}

func failed(err error) store.Result {
	return store.Failed(err, err.Error())
}

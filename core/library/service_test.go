package library_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/storage/blob"
	"github.com/trezcool/maktaba/storage/slot/memory"
)

// fullSlot refuses writes once full is set.
type fullSlot struct {
	*memory.Slot
	full bool
}

func (s *fullSlot) Set(ctx context.Context, key string, data []byte) error {
	if s.full {
		return errors.Wrap(store.ErrQuotaExceeded, "full")
	}
	return s.Slot.Set(ctx, key, data)
}

type fixture struct {
	svc      *library.Service
	feed     *notification.Feed
	slot     *fullSlot
	blobDir  string
	validate *validator.Validate
}

func setup(t *testing.T, bookCap int) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Storage.BookCap = bookCap

	slot := &fullSlot{Slot: memory.New(0)}
	bus := store.NewLocalBus()
	stores, err := library.NewStores(slot, bus, conf, nil)
	require.NoError(t, err)
	feed := notification.NewFeed(notification.NewStore(slot, bus, conf, nil))

	dir := t.TempDir()
	blobs, err := blob.New(dir, "/uploads", "1MB")
	require.NoError(t, err)

	svc := library.NewService(stores, blobs, feed, conf, nil)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	library.InitValidators(validate, translator, svc)

	return fixture{svc: svc, feed: feed, slot: slot, blobDir: dir, validate: validate}
}

func (f fixture) blobCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.blobDir)
	require.NoError(t, err)
	return len(entries)
}

func newBook(title string) library.NewBook {
	return library.NewBook{
		Title:       title,
		Author:      "Thomas H. Cormen",
		Category:    "Computer Science",
		Year:        "2nd Year",
		Description: "Algorithms, thoroughly.",
	}
}

// pngHeader is the signature every PNG file starts with.
const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

func pdfUpload() *library.Upload {
	return &library.Upload{Filename: "book.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.7")}
}

func TestSeeds(t *testing.T) {
	f := setup(t, 10)

	assert.Len(t, f.svc.Books(library.BookFilter{}), 8)
	assert.Len(t, f.svc.Papers(library.PaperFilter{}), 5)

	var names []string
	for _, c := range f.svc.Categories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"All", "Computer Science", "Electronics", "Mechanical", "Civil Engineering"}, names)
	assert.Equal(t, library.Stats{Books: 8, RemainingUploads: 10, Papers: 5, Categories: 4}, f.svc.Stats())
}

func TestService_Books(t *testing.T) {
	f := setup(t, 10)

	tests := []struct {
		name   string
		filter library.BookFilter
		check  func(t *testing.T, books []library.Book)
	}{
		{
			name:   "all categories",
			filter: library.BookFilter{Category: library.AllCategories, Year: "All"},
			check:  func(t *testing.T, books []library.Book) { assert.Len(t, books, 8) },
		},
		{
			name:   "by category",
			filter: library.BookFilter{Category: "Electronics"},
			check: func(t *testing.T, books []library.Book) {
				require.NotEmpty(t, books)
				for _, b := range books {
					assert.Equal(t, "Electronics", b.Category)
				}
			},
		},
		{
			name:   "by year",
			filter: library.BookFilter{Year: "3rd Year"},
			check: func(t *testing.T, books []library.Book) {
				require.NotEmpty(t, books)
				for _, b := range books {
					assert.Equal(t, "3rd Year", b.Year)
				}
			},
		},
		{
			name:   "search",
			filter: library.BookFilter{Search: "sussman"},
			check: func(t *testing.T, books []library.Book) {
				require.Len(t, books, 1)
				assert.Equal(t, "1", books[0].ID)
			},
		},
		{
			name:   "no match",
			filter: library.BookFilter{Category: "Mechanical", Year: "1st Year", Search: "zzz"},
			check:  func(t *testing.T, books []library.Book) { assert.Empty(t, books) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.svc.Books(tt.filter))
		})
	}

	assert.Len(t, f.svc.Featured(5), 5)
	_, err := f.svc.Book("missing")
	assert.Equal(t, library.ErrNotFound, err)
}

func TestService_AddBook(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	nb := newBook("Introduction to Algorithms")
	require.NoError(t, nb.Validate(f.validate))

	cover := &library.Upload{Filename: "cover.png", ContentType: "image/png", Content: strings.NewReader(pngHeader)}
	book, res := f.svc.AddBook(ctx, nb, pdfUpload(), cover)
	require.True(t, res.Success, res.Message)

	assert.True(t, strings.HasPrefix(book.PdfURL, "/uploads/"))
	assert.True(t, strings.HasSuffix(book.PdfURL, ".pdf"))
	assert.True(t, strings.HasPrefix(book.CoverImage, "/uploads/"))
	assert.True(t, strings.HasSuffix(book.CoverImage, ".png"))
	assert.Equal(t, 2, f.blobCount(t))
	require.NotNil(t, book.AddedAt)
	assert.WithinDuration(t, time.Now(), *book.AddedAt, time.Minute)

	t.Run("added_at", func(t *testing.T) {
		books := f.svc.Books(library.BookFilter{})
		added, err := json.Marshal(books[0])
		require.NoError(t, err)
		assert.Contains(t, string(added), `"added_at"`)

		seeded, err := json.Marshal(books[len(books)-1])
		require.NoError(t, err)
		assert.NotContains(t, string(seeded), `"added_at"`)
	})

	// newest first
	assert.Equal(t, book.ID, f.svc.Books(library.BookFilter{})[0].ID)

	latest := f.feed.All()[0]
	assert.Equal(t, notification.TypeNewBook, latest.Type)
	assert.Equal(t, "New Book Added! 📚", latest.Title)
	assert.Equal(t, `"Introduction to Algorithms" is now available in the library.`, latest.Description)

	t.Run("by url", func(t *testing.T) {
		nb := newBook("Clean Code")
		nb.PdfURL = "https://example.com/clean-code.pdf"
		book, res := f.svc.AddBook(ctx, nb, nil, nil)
		require.True(t, res.Success)
		assert.Equal(t, library.DefaultCoverImage, book.CoverImage)
	})

	t.Run("missing pdf", func(t *testing.T) {
		_, res := f.svc.AddBook(ctx, newBook("No PDF"), nil, nil)
		assert.False(t, res.Success)
		var vErr *core.ValidationError
		assert.True(t, errors.As(res.Cause(), &vErr))
	})

	t.Run("not a pdf", func(t *testing.T) {
		bad := &library.Upload{Filename: "book.docx", ContentType: "application/msword", Content: strings.NewReader("doc")}
		_, res := f.svc.AddBook(ctx, newBook("Word"), bad, nil)
		assert.False(t, res.Success)
	})

	t.Run("mislabelled upload", func(t *testing.T) {
		before := f.blobCount(t)
		evil := &library.Upload{Filename: "evil.html", ContentType: "application/pdf", Content: strings.NewReader("<html><script>alert(1)</script></html>")}
		_, res := f.svc.AddBook(ctx, newBook("Evil"), evil, nil)
		assert.False(t, res.Success)
		assert.Equal(t, before, f.blobCount(t))

		// a real pdf under a misleading name is stored as a pdf
		named := &library.Upload{Filename: "notes.html", ContentType: "text/html", Content: strings.NewReader("%PDF-1.4 notes")}
		book, res := f.svc.AddBook(ctx, newBook("Named"), named, nil)
		require.True(t, res.Success, res.Message)
		assert.True(t, strings.HasSuffix(book.PdfURL, ".pdf"))

		// an html cover claiming to be an image is rejected
		cover := &library.Upload{Filename: "cover.png", ContentType: "image/png", Content: strings.NewReader("<html></html>")}
		_, res = f.svc.AddBook(ctx, newBook("Evil cover"), pdfUpload(), cover)
		assert.False(t, res.Success)
	})

	t.Run("cover not an image", func(t *testing.T) {
		before := f.blobCount(t)
		bad := &library.Upload{Filename: "cover.txt", ContentType: "text/plain", Content: strings.NewReader("txt")}
		_, res := f.svc.AddBook(ctx, newBook("Bad cover"), pdfUpload(), bad)
		assert.False(t, res.Success)
		assert.Equal(t, before, f.blobCount(t), "the pdf is removed again")
	})

	t.Run("unknown category", func(t *testing.T) {
		nb := newBook("Lost")
		nb.Category = "Astrology"
		assert.Error(t, nb.Validate(f.validate))
		nb.Category = library.AllCategories
		assert.Error(t, nb.Validate(f.validate))
	})
}

func TestService_AddBook_Cap(t *testing.T) {
	f := setup(t, 2)
	ctx := context.Background()

	for _, title := range []string{"One", "Two"} {
		_, res := f.svc.AddBook(ctx, newBook(title), pdfUpload(), nil)
		require.True(t, res.Success, res.Message)
	}
	before := f.svc.Books(library.BookFilter{})
	notifs := len(f.feed.All())

	_, res := f.svc.AddBook(ctx, newBook("Three"), pdfUpload(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Upload limit reached. Delete an existing book before adding a new one.", res.Message)
	assert.True(t, errors.Is(res.Err(), store.ErrCapReached))

	assert.Equal(t, before, f.svc.Books(library.BookFilter{}))
	assert.Equal(t, 2, f.blobCount(t))
	assert.Equal(t, notifs, len(f.feed.All()), "no announcement for a rejected book")
	assert.Equal(t, 0, f.svc.Stats().RemainingUploads)

	// deleting a seed book does not free an upload
	require.True(t, f.svc.DeleteBook(ctx, "1").Success)
	_, res = f.svc.AddBook(ctx, newBook("Three"), pdfUpload(), nil)
	assert.False(t, res.Success)

	// deleting an uploaded one does
	require.True(t, f.svc.DeleteBook(ctx, before[0].ID).Success)
	_, res = f.svc.AddBook(ctx, newBook("Three"), pdfUpload(), nil)
	assert.True(t, res.Success)
}

func TestService_AddBook_StorageFull(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	before := f.svc.Books(library.BookFilter{})

	f.slot.full = true
	_, res := f.svc.AddBook(ctx, newBook("Too Much"), pdfUpload(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Storage limit reached. Could not save the new book.", res.Message)
	assert.Equal(t, before, f.svc.Books(library.BookFilter{}))
	assert.Zero(t, f.blobCount(t))
}

func TestService_UpdateDeleteBook(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	orig, err := f.svc.Book("2")
	require.NoError(t, err)

	ub := library.UpdateBook{Year: "4th Year"}
	require.NoError(t, ub.Validate(f.validate))
	got, res := f.svc.UpdateBook(ctx, "2", ub)
	require.True(t, res.Success)
	assert.Equal(t, "4th Year", got.Year)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Description, got.Description)

	_, res = f.svc.UpdateBook(ctx, "missing", ub)
	assert.False(t, res.Success)

	book, res := f.svc.AddBook(ctx, newBook("Temp"), pdfUpload(), nil)
	require.True(t, res.Success)
	require.Equal(t, 1, f.blobCount(t))

	require.True(t, f.svc.DeleteBook(ctx, book.ID).Success)
	assert.Zero(t, f.blobCount(t))
	_, err = os.Stat(filepath.Join(f.blobDir, filepath.Base(book.PdfURL)))
	assert.True(t, os.IsNotExist(err))

	assert.True(t, f.svc.DeleteBook(ctx, book.ID).Success, "deleting twice is a no-op")
}

func TestService_Papers(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	assert.Len(t, f.svc.Papers(library.PaperFilter{Category: "Computer Science"}), 2)
	assert.Len(t, f.svc.Papers(library.PaperFilter{Type: "Final"}), 2)
	assert.Len(t, f.svc.Papers(library.PaperFilter{Search: "thermo"}), 1)

	np := library.NewPaper{Subject: "Operating Systems", Category: "Computer Science", Year: "3rd Year", University: "JNTU", Type: "Final"}
	require.NoError(t, np.Validate(f.validate))
	paper, res := f.svc.AddPaper(ctx, np, pdfUpload())
	require.True(t, res.Success)
	assert.Equal(t, paper.ID, f.svc.Papers(library.PaperFilter{})[0].ID)

	np.Type = "Homework"
	assert.Error(t, np.Validate(f.validate))

	require.True(t, f.svc.DeletePaper(ctx, paper.ID).Success)
	_, err := f.svc.Paper(paper.ID)
	assert.Equal(t, library.ErrNotFound, err)
	assert.Zero(t, f.blobCount(t))
}

func TestService_Categories(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	nc := library.NewCategory{Name: "  data   science "}
	require.NoError(t, nc.Validate(f.validate))
	cat, res := f.svc.AddCategory(ctx, nc)
	require.True(t, res.Success)
	assert.Equal(t, "Data Science", cat.Name)
	assert.True(t, f.svc.HasCategory("Data Science"))

	n := len(f.svc.Categories())
	_, res = f.svc.AddCategory(ctx, library.NewCategory{Name: "DATA SCIENCE"})
	assert.True(t, res.Success)
	assert.Len(t, f.svc.Categories(), n, "duplicates are ignored")
	assert.Equal(t, "Data Science", f.svc.Categories()[n-1].Name, "appended")

	res = f.svc.DeleteCategory(ctx, library.AllCategories)
	assert.False(t, res.Success)

	require.True(t, f.svc.DeleteCategory(ctx, "Data Science").Success)
	assert.False(t, f.svc.HasCategory("Data Science"))
	assert.False(t, f.svc.HasCategory(library.AllCategories))
}

package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/remark"
)

const defaultFeatured = 4

var errBookNotFoundInCtx = errors.New("book object not found in echo.Context")

type libraryApi struct {
	svc      *library.Service
	remarks  *remark.Service
	validate *validator.Validate
}

func (s *Server) registerLibraryAPI(g *echo.Group, authed, admin []echo.MiddlewareFunc) {
	api := libraryApi{
		svc:      s.deps.Library,
		remarks:  s.deps.Remarks,
		validate: s.deps.Validate,
	}

	// the catalogue is public
	g.GET("/books", api.queryBooks)
	g.GET("/books/featured", api.featuredBooks)
	g.GET("/books/:id", api.retrieveBook, bookMiddleware(api.svc))
	g.GET("/papers", api.queryPapers)
	g.GET("/papers/:id", api.retrievePaper)
	g.GET("/categories", api.queryCategories)
	g.GET("/stats", api.stats, authed...)

	g.POST("/books", api.createBook, admin...)
	g.PATCH("/books/:id", api.updateBook, admin...)
	g.DELETE("/books/:id", api.destroyBook, admin...)
	g.POST("/papers", api.createPaper, admin...)
	g.DELETE("/papers/:id", api.destroyPaper, admin...)
	g.POST("/categories", api.createCategory, admin...)
	g.DELETE("/categories/:name", api.destroyCategory, admin...)

	s.registerRemarkAPI(g, authed)
}

// Books

func (api *libraryApi) queryBooks(ctx echo.Context) error {
	filter := new(library.BookFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to BookFilter")
	}
	filter.Clean()
	return ctx.JSON(http.StatusOK, api.svc.Books(*filter))
}

func (api *libraryApi) featuredBooks(ctx echo.Context) error {
	n, err := strconv.Atoi(ctx.QueryParam("limit"))
	if err != nil || n <= 0 {
		n = defaultFeatured
	}
	return ctx.JSON(http.StatusOK, api.svc.Featured(n))
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	book, ok := ctx.Get(contextObjectKey).(library.Book)
	if !ok {
		return errors.Wrap(errBookNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, book)
}

// createBook accepts JSON (files referenced by URL) or a multipart form carrying
// the `pdf` and `cover` files.
func (api *libraryApi) createBook(ctx echo.Context) error {
	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var files uploads
	defer files.Close()
	pdf, err := files.file(ctx, "pdf")
	if err != nil {
		return err
	}
	cover, err := files.file(ctx, "cover")
	if err != nil {
		return err
	}

	book, res := api.svc.AddBook(ctx.Request().Context(), data, pdf, cover)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, book)
}

func (api *libraryApi) updateBook(ctx echo.Context) error {
	var data library.UpdateBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBook")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	book, res := api.svc.UpdateBook(ctx.Request().Context(), ctx.Param("id"), data)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) destroyBook(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteBook(ctx.Request().Context(), id).Err(); err != nil {
		return err
	}
	if err := api.remarks.DeleteForBook(ctx.Request().Context(), id).Err(); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Question papers

func (api *libraryApi) queryPapers(ctx echo.Context) error {
	filter := new(library.PaperFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to PaperFilter")
	}
	filter.Clean()
	return ctx.JSON(http.StatusOK, api.svc.Papers(*filter))
}

func (api *libraryApi) retrievePaper(ctx echo.Context) error {
	paper, err := api.svc.Paper(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == library.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding paper by ID")
	}
	return ctx.JSON(http.StatusOK, paper)
}

func (api *libraryApi) createPaper(ctx echo.Context) error {
	var data library.NewPaper
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPaper")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var files uploads
	defer files.Close()
	file, err := files.file(ctx, "file")
	if err != nil {
		return err
	}

	paper, res := api.svc.AddPaper(ctx.Request().Context(), data, file)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, paper)
}

func (api *libraryApi) destroyPaper(ctx echo.Context) error {
	if err := api.svc.DeletePaper(ctx.Request().Context(), ctx.Param("id")).Err(); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Categories

func (api *libraryApi) queryCategories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Categories())
}

func (api *libraryApi) createCategory(ctx echo.Context) error {
	var data library.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, res := api.svc.AddCategory(ctx.Request().Context(), data)
	if err := res.Err(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *libraryApi) destroyCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctx.Param("name")).Err(); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *libraryApi) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Stats())
}

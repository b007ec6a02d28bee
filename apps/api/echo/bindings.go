package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.Ordering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.Ordering{Field: field, Ascending: !descending})
	}
}

// uploads holds the files of a multipart request. Close releases them.
type uploads struct {
	files []io.Closer
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// file returns the upload sent as field, or nil when the request has none.
func (u *uploads) file(ctx echo.Context, field string) (*library.Upload, error) {
	if !isMultipart(ctx) {
		return nil, nil
	}
	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Cause(err) == http.ErrMissingFile {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s upload", field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s upload", field)
	}
	u.files = append(u.files, f)
	return &library.Upload{
		Filename:    fh.Filename,
		ContentType: contentType(fh),
		Content:     f,
	}, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (u *uploads) Close() {
	for _, f := range u.files {
		_ = f.Close()
	}
}

package server

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/subtrack/internal/importer"
	"go.uber.org/zap"
)

const maxImportBytes = 16 << 20

// ImportSubscribers reconciles an uploaded CSV file. The file is accepted
// as a multipart "file" field or as a raw text/csv body.
func (s *Server) ImportSubscribers(c *gin.Context) {
	body, closeBody, err := importBody(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer closeBody()

	src, err := importer.NewCSVSource(body)
	if err != nil {
		if errors.Is(err, importer.ErrEmptyHeader) {
			AbortWithError(c, newValidationError("file", "invalid_file", "file has no header row"))
			return
		}
		AbortWithError(c, newValidationError("file", "invalid_file", err.Error()))
		return
	}

	res, err := s.importer.Import(c.Request.Context(), src)
	if err != nil {
		s.log.Warn("import stopped early",
			zap.Int("inserted", res.Inserted),
			zap.Int("updated", res.Updated),
			zap.Int("failed", res.Failed),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func importBody(c *gin.Context) (io.Reader, func(), error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != "multipart/form-data" {
		return c.Request.Body, func() {}, nil
	}

	header, err := c.FormFile("file")
	if err != nil {
		return nil, nil, newValidationError("file", "required", "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, invalidRequestError()
	}
	return f, func() { _ = f.Close() }, nil
}

func (s *Server) ExportSubscribers(c *gin.Context) {
	filename := "subscribers-" + s.subscribers.Today().String() + ".csv"
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	n, err := s.importer.Export(c.Request.Context(), importer.NewCSVSink(c.Writer))
	if err != nil {
		s.log.Error("export failed", zap.Int("rows", n), zap.Error(err))
		_ = c.Error(err)
	}
}

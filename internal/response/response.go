package response

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Ingest responses are plain text so agents can log them verbatim.

// pathFromContext returns the request path from Echo context.
func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// Text sends body with the given status, terminated by a newline.
func Text(c echo.Context, status int, body string) error {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return c.String(status, body)
}

// Processed sends 200 with the pipeline report. Backend failures inside the report
// do not change the status.
func Processed(c echo.Context, report string) error {
	return Text(c, http.StatusOK, report)
}

// Error sends "ERROR <message>: <detail> (<path>)".
func Error(c echo.Context, status int, message, errDetail string) error {
	body := "ERROR " + message
	if errDetail != "" {
		body += ": " + errDetail
	}
	if p := pathFromContext(c); p != "" && p != "/" {
		body += " (" + p + ")"
	}
	return Text(c, status, body)
}

// BadRequest sends 400 with message and error detail.
func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

// LengthRequired sends 411 for requests without a usable Content-Length.
func LengthRequired(c echo.Context, message string) error {
	return Error(c, http.StatusLengthRequired, message, "")
}

// ServiceUnavailable sends 503, used while no worker slot could be acquired.
func ServiceUnavailable(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusServiceUnavailable, message, errDetail)
}

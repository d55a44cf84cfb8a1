package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const (
	UserAgent   = "Mozilla/5.0"
	pdfMimeType = "application/pdf"
)

var (
	// ErrBadStatus is returned when the PDF request does not answer 200
	ErrBadStatus = errors.New("unexpected status code")
	// ErrNotPDF is returned when the response is not application/pdf
	ErrNotPDF = errors.New("response is not a PDF")
	// ErrTooLarge is returned when the body exceeds maxPDFBytes
	ErrTooLarge = errors.New("pdf exceeds size limit")
)

// maxPDFBytes caps the download. Daily programs are a few megabytes.
var maxPDFBytes int64 = 256 << 20

// fetchPDF downloads url with the session cookies and returns the body only
// if the server answered 200 with a PDF media type
func fetchPDF(ctx context.Context, client *http.Client, url string, cookies []*http.Cookie) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != pdfMimeType {
		return nil, fmt.Errorf("%w: content type %q", ErrNotPDF, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	if int64(len(data)) > maxPDFBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxPDFBytes)
	}
	return data, nil
}

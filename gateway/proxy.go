package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trackwise/edgeauth"
	"github.com/trackwise/edgeauth/internal/api/presenter"
	"github.com/trackwise/edgeauth/internal/logging"
	guard "github.com/trackwise/edgeauth/middleware"
)

// DefaultTimeout bounds every upstream call.
const DefaultTimeout = 30 * time.Second

var maxJSONBody int64 = 32 << 20

var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isHopByHopHeader(name string) bool {
	_, ok := hopByHopHeaders[strings.ToLower(name)]
	return ok
}

// forwardedHeaders is the complete set of inbound headers sent upstream.
var forwardedHeaders = []string{"Content-Type", "Authorization"}

// Forwarder relays one request to an upstream and translates the answer.
// Calls are never retried.
type Forwarder struct {
	client *http.Client
}

// NewForwarder returns a Forwarder with a bounded connection pool and the
// given per-call timeout. A non-positive timeout means DefaultTimeout.
func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				MaxConnsPerHost:       64,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Forward sends r to route's upstream and writes the translated response to
// w. Transport failures are answered with 503 and never surface as 500.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route Route) {
	lc := logging.Ctx(r.Context()).With().
		Str("upstream", route.Upstream.Host).
		Str("upstream_path", route.Path)
	if sub, ok := guard.SubjectFromContext(r.Context()); ok {
		lc = lc.Str("subject", sub)
	}
	logger := lc.Logger()

	body, contentType, err := outboundBody(r, &logger)
	if err != nil {
		presenter.Error(w, r, err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, route.URL(r.URL.RawQuery), body)
	if err != nil {
		presenter.Error(w, r, fmt.Errorf("%w: %v", edgeauth.ErrUpstreamUnavailable, err))
		return
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		mapped := classifyTransportError(err)
		logger.Warn().Err(err).
			Dur("elapsed", time.Since(start)).
			Bool("timeout", errors.Is(mapped, edgeauth.ErrUpstreamTimeout)).
			Msg("upstream.failed")
		presenter.Error(w, r, mapped)
		return
	}
	defer resp.Body.Close()

	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("upstream.answered")
	writeResponse(w, resp, &logger)
}

func classifyTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", edgeauth.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", edgeauth.ErrUpstreamUnavailable, err)
}

// outboundBody picks the upstream body for r. Multipart requests are
// decomposed and re-encoded; other write-style requests are forwarded as raw
// bytes. The returned content type overrides the inbound one when non-empty.
func outboundBody(r *http.Request, logger *zerolog.Logger) (io.Reader, string, error) {
	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" && params["boundary"] != "" {
		mr := multipart.NewReader(r.Body, params["boundary"])
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go reencodeMultipart(mr, mw, pw, logger)
		return pr, mw.FormDataContentType(), nil
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: read body: %v", edgeauth.ErrInvalidInput, err)
		}
		return bytes.NewReader(raw), "", nil
	}
	return nil, "", nil
}

// reencodeMultipart copies every part of mr into mw. A decomposition error
// ends the copy but the parts already written are still sent.
func reencodeMultipart(mr *multipart.Reader, mw *multipart.Writer, pw *io.PipeWriter, logger *zerolog.Logger) {
	parts := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn().Err(err).Int("parts", parts).Msg("multipart.truncated")
			break
		}

		if err := copyPart(mw, part); err != nil {
			_ = part.Close()
			if errors.Is(err, io.ErrClosedPipe) {
				// upstream call already gave up
				return
			}
			logger.Warn().Err(err).Int("parts", parts).Msg("multipart.truncated")
			break
		}
		_ = part.Close()
		parts++
	}
	_ = pw.CloseWithError(mw.Close())
}

func copyPart(mw *multipart.Writer, part *multipart.Part) error {
	name := part.FormName()
	if part.FileName() == "" {
		fw, err := mw.CreateFormField(name)
		if err != nil {
			return err
		}
		_, err = io.Copy(fw, part)
		return err
	}

	ct := part.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     name,
		"filename": part.FileName(),
	}))
	h.Set("Content-Type", ct)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, part)
	return err
}

func copyHeaders(dst, src http.Header, skip ...string) {
	for k, vv := range src {
		if isHopByHopHeader(k) {
			continue
		}
		skipped := false
		for _, s := range skip {
			if strings.EqualFold(k, s) {
				skipped = true
				break
			}
		}
		if skipped {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// writeResponse translates resp by its declared media type. JSON is
// re-emitted, falling back to {"data": text} when it does not parse.
// Everything else, spreadsheet and CSV exports included, is streamed
// unmodified.
func writeResponse(w http.ResponseWriter, resp *http.Response, logger *zerolog.Logger) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if !isJSON(mediaType) {
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warn().Err(err).Msg("upstream.stream_aborted")
		}
		return
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody+1))
	if err != nil {
		logger.Warn().Err(err).Msg("upstream.read_failed")
	}
	if int64(len(raw)) > maxJSONBody {
		// too large to normalise; relay what was read and the rest as is
		logger.Debug().Msg("upstream.json_oversize")
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(raw), resp.Body)); err != nil {
			logger.Warn().Err(err).Msg("upstream.stream_aborted")
		}
		return
	}

	var out []byte
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && dec.Decode(&doc) == nil && !dec.More() {
		out, _ = json.Marshal(doc)
	} else {
		logger.Debug().Int("bytes", len(raw)).Msg("upstream.json_fallback")
		out, _ = json.Marshal(map[string]string{"data": string(raw)})
	}

	copyHeaders(w.Header(), resp.Header, "Content-Length", "Content-Type")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(out)
}

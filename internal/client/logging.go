package client

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"
)

const (
	logValueLimit = 200
	slowAfter     = time.Second
)

// logRequest records one finished REST call. Backend rejections below 500
// are expected during normal work and log at INFO.
func (c *Client) logRequest(r request, took time.Duration, err error) {
	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs,
		slog.String("op", r.op),
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int64("duration_ms", took.Milliseconds()),
	)
	if q := r.query.Encode(); q != "" {
		attrs = append(attrs, slog.String("query", truncate(q, logValueLimit)))
	}

	level, msg := slog.LevelDebug, "request completed"
	if err != nil {
		attrs = append(attrs, slog.String("error", truncate(err.Error(), logValueLimit)))
		level, msg = slog.LevelError, "request failed"
		if apiErr := (*APIError)(nil); errors.As(err, &apiErr) && apiErr.Status < 500 {
			level = slog.LevelInfo
		}
	} else if took > slowAfter {
		level, msg = slog.LevelWarn, "slow request"
	}
	c.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// truncate cuts s to at most limit bytes on a rune boundary, marking the cut with "...".
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	keep := limit
	if limit >= 3 {
		keep = limit - 3
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	if limit < 3 {
		return s[:keep]
	}
	return s[:keep] + "..."
}

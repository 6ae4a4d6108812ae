package authdb

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenAttr keeps enough of the token to correlate log lines without
// writing a usable credential.
func tokenAttr(token string) slog.Attr {
	return slog.String("token", MaskToken(token))
}

func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***"
}

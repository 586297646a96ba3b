package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// newUploadKey returns uploads/<unix-ms>-<32 hex chars><ext>, keeping the
// extension of the client's file name.
func newUploadKey(now time.Time, filename string) (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return fmt.Sprintf("uploads/%d-%s%s", now.UnixMilli(), hex.EncodeToString(b[:]), path.Ext(filename)), nil
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

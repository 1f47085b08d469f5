package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 2
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// HashToken produces the argon2id string stored in server.authTokenHash.
func HashToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}
	salt, err := randomTokenBytes(argonSaltLen)
	if err != nil {
		return "", err
	}
	digest := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return strings.Join([]string{
		"",
		"argon2id",
		"v=19",
		fmt.Sprintf("m=%d,t=%d,p=%d", argonMemory, argonTime, argonThreads),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	}, "$"), nil
}

func VerifyToken(token, encoded string) bool {
	p, err := parseArgon2(encoded)
	if err != nil || len(p.hash) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(strings.TrimSpace(token)), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(got, p.hash) == 1
}

// tokenCheck caches the last accepted token in front of the argon2 check.
type tokenCheck struct {
	encoded  string
	mu       sync.Mutex
	accepted []byte
}

func newTokenCheck(encoded string) *tokenCheck {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil
	}
	return &tokenCheck{encoded: encoded}
}

func (c *tokenCheck) allow(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	c.mu.Lock()
	accepted := c.accepted
	c.mu.Unlock()
	if accepted != nil && subtle.ConstantTimeCompare(accepted, []byte(token)) == 1 {
		return true
	}
	if !VerifyToken(token, c.encoded) {
		return false
	}
	c.mu.Lock()
	c.accepted = []byte(token)
	c.mu.Unlock()
	return true
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.allow(r.Header.Get(TokenHeader)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

// parseArgon2 reads the PHC string written by HashToken.
func parseArgon2(encoded string) (argonParams, error) {
	var p argonParams
	fields := strings.Split(strings.TrimSpace(encoded), "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, fmt.Errorf("token hash: want 5 $-separated fields")
	}
	if fields[1] != "argon2id" || fields[2] != "v=19" {
		return p, fmt.Errorf("token hash: unsupported %s %s", fields[1], fields[2])
	}
	var threads uint32
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return p, fmt.Errorf("token hash params: %w", err)
	}
	if p.memory == 0 || p.time == 0 || threads == 0 || threads > 255 {
		return p, fmt.Errorf("token hash params out of range")
	}
	p.threads = uint8(threads)
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return p, fmt.Errorf("token hash salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return p, fmt.Errorf("token hash digest: %w", err)
	}
	return p, nil
}

func randomTokenBytes(size int) ([]byte, error) {
	token := make([]byte, size)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}

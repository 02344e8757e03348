package s3

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const streamingPayloadSHA = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

// isStreamingPayload reports whether the request body uses the AWS
// Signature Version 4 streaming (chunked) encoding.
func isStreamingPayload(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Amz-Content-Sha256"), streamingPayloadSHA)
}

// readObjectPayload reads the full request body, transparently decoding the
// SigV4 streaming chunk framing when the client used it. Real S3 SDKs send
// plain HTTP PUTs in that encoding, so the server must strip it before the
// bytes reach the engine.
func readObjectPayload(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	if !isStreamingPayload(r) {
		return io.ReadAll(r.Body)
	}

	var decodedLen int64 = -1
	if raw := r.Header.Get("X-Amz-Decoded-Content-Length"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid X-Amz-Decoded-Content-Length %q", raw)
		}
		decodedLen = v
	}

	return decodeStreamingPayload(r.Body, decodedLen)
}

// decodeStreamingPayload strips the SigV4 chunk framing
// (<size-hex>;chunk-signature=...\r\n<bytes>\r\n, terminated by a zero-size
// chunk) and returns the decoded payload. Chunk signatures are not verified.
func decodeStreamingPayload(body io.Reader, decodedLen int64) ([]byte, error) {
	br := bufio.NewReader(body)

	var out []byte
	if decodedLen > 0 {
		out = make([]byte, 0, decodedLen)
	}

	for {
		// Each chunk begins with: <size-hex>[;extensions]\r\n
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("unexpected EOF while reading chunk header")
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			// Skip empty lines if any.
			continue
		}

		// Strip any chunk extensions (e.g. ";chunk-signature=...").
		if idx := strings.IndexByte(line, ';'); idx != -1 {
			line = line[:idx]
		}

		sizeHex := strings.TrimSpace(line)
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse chunk size %q: %w", sizeHex, err)
		}

		if size == 0 {
			// Final chunk. Per AWS streaming format, this is followed by a
			// trailing CRLF and optional trailers. For our purposes we can
			// consume a single empty line and stop.
			_, _ = br.ReadString('\n') // best-effort consume trailer terminator
			break
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, fmt.Errorf("read chunk body: %w", err)
		}
		out = append(out, chunk...)

		// Consume the trailing CRLF after the chunk body.
		if b, err := br.ReadByte(); err != nil || b != '\r' {
			if err == nil {
				return nil, fmt.Errorf("expected CR after chunk, got %q", b)
			}
			return nil, fmt.Errorf("read CR after chunk: %w", err)
		}
		if b, err := br.ReadByte(); err != nil || b != '\n' {
			if err == nil {
				return nil, fmt.Errorf("expected LF after chunk, got %q", b)
			}
			return nil, fmt.Errorf("read LF after chunk: %w", err)
		}
	}

	// decodedLen is only a sanity check. Some clients omit or mis-report
	// it; the storage layer relies on the actual decoded length.
	if decodedLen >= 0 && int64(len(out)) != decodedLen {
		slog.Debug("Decoded streaming payload length mismatch", "expected", decodedLen, "actual", len(out))
	}

	return out, nil
}

// Package utils holds small wire-format helpers shared by the signaling
// and call layers.
package utils

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// CompressGzip gzips a payload and base64-encodes the result for a JSON
// envelope. On compression failure the payload goes out uncompressed;
// receivers sniff the encoding rather than trusting a flag.
func CompressGzip(data string) string {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	_, werr := gz.Write([]byte(data))
	cerr := gz.Close()
	if werr != nil || cerr != nil {
		return data
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecompressGzip reverses CompressGzip: base64 decode, then gunzip.
func DecompressGzip(data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("gzip open: %w", err)
	}
	defer gz.Close()

	plain, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("gzip read: %w", err)
	}
	return string(plain), nil
}

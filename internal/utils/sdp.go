package utils

import (
	"fmt"
	"strings"
)

// PatchSDPForQuality rewrites the answer SDP's video section with
// explicit bandwidth hints: a b=AS cap plus x-google bitrate bounds on
// the VP8 fmtp line. Callers that never matched a video section get the
// SDP back untouched.
func PatchSDPForQuality(sdp string, asKbps, minKbps, maxKbps int) string {
	out := make([]string, 0, strings.Count(sdp, "\n")+4)
	inVideo := false
	patched := false

	for _, line := range strings.Split(sdp, "\n") {
		out = append(out, line)
		trim := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trim, "m=video"):
			inVideo = true
			patched = false
			if asKbps > 0 {
				out = append(out, fmt.Sprintf("b=AS:%d", asKbps))
			}

		case strings.HasPrefix(trim, "m="):
			inVideo = false

		case inVideo && !patched && minKbps > 0 && maxKbps > 0 &&
			strings.HasPrefix(trim, "a=rtpmap:") && strings.Contains(trim, "VP8/90000"):
			payload, _, _ := strings.Cut(strings.TrimPrefix(trim, "a=rtpmap:"), " ")
			payload = strings.TrimSpace(payload)
			if payload == "" {
				continue
			}
			start := (minKbps + maxKbps) / 2
			out = append(out, fmt.Sprintf(
				"a=fmtp:%s x-google-min-bitrate=%d;x-google-max-bitrate=%d;x-google-start-bitrate=%d;max-fr=30;max-fs=3600",
				payload, minKbps, maxKbps, start))
			patched = true
		}
	}

	return strings.Join(out, "\n")
}

package rtc

import (
	"context"
	"log"
	"time"

	"attendance-kiosk/internal/gate"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// CAPTURE SESSION
// ============================================================

// runCaptureSession wires the call's video track into a capture-gate
// session and turns gate events into call outcomes (prompts + hangup).
func (m *Manager) runCaptureSession(peerID string, track *webrtc.TrackRemote, ctx context.Context) {
	decoder := newVP8Decoder(m.dimensionConfig, m.bufferPool)
	source := newCallSource(track, decoder, m.captureConfig.SampleBufferMax)

	session := gate.NewSession(m.gateConfig, source, m.faceDetector, m.submitter)

	captureCtx, cancel := context.WithTimeout(ctx, m.captureConfig.CaptureTimeout)
	defer cancel()

	if err := session.Start(captureCtx); err != nil {
		log.Printf("❌ [%s] Capture session failed to start: %v", peerID, err)
		go m.endCallAfterDelay(peerID, "capture start failed", 1*time.Second)
		return
	}
	defer func() {
		session.Stop()
		<-session.Done()
	}()

	log.Printf("🎥 [%s] Capture session %s started", peerID, session.ID)

	// Keyframe watchdog: the PLI sender keeps asking, but if the caller
	// never delivers a decodable keyframe the session would spin on
	// ErrNoFrame forever.
	go func() {
		select {
		case <-source.FirstKeyframe():
			log.Printf("   🔑 [%s] First keyframe decoded", peerID)
		case <-time.After(m.captureConfig.PLITimeout):
			log.Printf("   ⚠️  [%s] No keyframe within %v, hanging up", peerID, m.captureConfig.PLITimeout)
			cancel()
		case <-captureCtx.Done():
		}
	}()

	attempts := 0
	for {
		select {
		case <-m.shutdown:
			return

		case <-captureCtx.Done():
			log.Printf("⏰ [%s] Capture window closed", peerID)
			go m.endCallAfterDelay(peerID, "capture timeout", 1*time.Second)
			return

		case ev := <-session.Events():
			switch ev.Kind {
			case gate.EventSucceeded:
				log.Printf("🎉 [%s] Check-in verified: %s", peerID, ev.Response.GetFullName())
				m.playPrompt(peerID, "checkin_success")
				go m.endCallAfterDelay(peerID, "check-in complete", 4*time.Second)
				return

			case gate.EventFailed:
				attempts++
				log.Printf("❌ [%s] Attempt %d/%d failed: %v",
					peerID, attempts, m.captureConfig.MaxAttempts, ev.Err)
				m.playPrompt(peerID, "checkin_fail")
				if attempts >= m.captureConfig.MaxAttempts {
					log.Printf("   🛑 [%s] Attempt limit reached", peerID)
					go m.endCallAfterDelay(peerID, "attempt limit", 3*time.Second)
					return
				}

			case gate.EventEnded:
				log.Printf("🔴 [%s] Capture session ended: %v", peerID, ev.Err)
				m.playPrompt(peerID, "checkin_fail")
				go m.endCallAfterDelay(peerID, "session ended", 3*time.Second)
				return
			}
		}
	}
}

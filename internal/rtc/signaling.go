package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"attendance-kiosk/internal/signal"
	"attendance-kiosk/internal/utils"
	"attendance-kiosk/models"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// MAIN SIGNAL HANDLER
// ============================================================

func (m *Manager) HandleSignal(env *signal.Envelope) error {
	if env == nil {
		return fmt.Errorf("signal cannot be nil")
	}

	log.Printf("📡 Signal (Type: %d, Session: %s, Peer: %s)", env.DataType, env.SessionID, env.PeerID)

	switch env.DataType {
	case models.SignalSDPOffer:
		return m.handleOffer(env)
	case models.SignalICECandidate:
		return m.handleICECandidate(env)
	case models.SignalSDPQuit:
		log.Printf("👋 Call ended by peer")
		m.cleanupCall(env.PeerID)
		return nil
	default:
		log.Printf("⚠️  Unknown signal type: %d", env.DataType)
		return nil
	}
}

// ============================================================
// OFFER HANDLING
// ============================================================

func (m *Manager) handleOffer(env *signal.Envelope) error {
	log.Println("📝 Processing offer...")

	// Payloads above the relay's size limit arrive gzip+base64 compressed.
	offerData := env.Payload
	if strings.HasPrefix(offerData, "H4sI") {
		decompressed, err := utils.DecompressGzip(offerData)
		if err != nil {
			return fmt.Errorf("decompress failed: %w", err)
		}
		offerData = decompressed
	}

	var offer struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal([]byte(offerData), &offer); err != nil {
		// Bare SDP without the JSON wrapper
		offer.SDP = offerData
	}
	if offer.SDP == "" {
		return fmt.Errorf("invalid offer: missing sdp")
	}

	pc, err := m.createPeerConnection()
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &callState{
		pc:         pc,
		sessionID:  env.SessionID,
		peerID:     env.PeerID,
		audioStop:  make(chan struct{}),
		cancelFunc: cancel,
		pendingICE: make([]webrtc.ICECandidateInit, 0, 10),
	}

	m.mu.Lock()
	m.calls[env.PeerID] = state
	m.mu.Unlock()

	log.Printf("✅ Call created for peer %s", env.PeerID)

	m.setupPeerConnectionHandlers(env.PeerID, pc, ctx)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		m.cleanupCall(env.PeerID)
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	if m.audioConfig.Enabled {
		if err := m.setupAudioTrack(env.PeerID, pc); err != nil {
			log.Printf("⚠️  Failed to setup audio: %v", err)
		}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.cleanupCall(env.PeerID)
		return fmt.Errorf("failed to create answer: %w", err)
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		m.cleanupCall(env.PeerID)
		return fmt.Errorf("failed to set local description: %w", err)
	}

	patchedAnswer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  utils.PatchSDPForQuality(answer.SDP, 2500, 1500, 3000),
	}

	answerJSON, _ := json.Marshal(patchedAnswer)
	compressedAnswer := utils.CompressGzip(string(answerJSON))

	// Give ICE gathering a head start before the answer goes out.
	time.Sleep(500 * time.Millisecond)

	if err := m.client.SendSignal(env.SessionID, env.PeerID, models.SignalSDPAnswer, compressedAnswer); err != nil {
		m.cleanupCall(env.PeerID)
		return fmt.Errorf("failed to send answer: %w", err)
	}

	// Flush ICE candidates queued while the answer was pending.
	state.mu.Lock()
	state.iceReady = true
	pendingCandidates := state.pendingICE
	state.pendingICE = nil
	state.mu.Unlock()

	for i, candidate := range pendingCandidates {
		if err := pc.AddICECandidate(candidate); err != nil {
			log.Printf("⚠️  Failed to add pending ICE %d: %v", i+1, err)
		}
	}

	log.Println("✅ Answer sent!")
	return nil
}

// ============================================================
// ICE CANDIDATE HANDLING
// ============================================================

func (m *Manager) handleICECandidate(env *signal.Envelope) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(env.Payload), &candidate); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}

	m.mu.RLock()
	state, exists := m.calls[env.PeerID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("call not found for peer %s", env.PeerID)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	// Queue until the answer is on its way
	if !state.iceReady {
		state.pendingICE = append(state.pendingICE, candidate)
		return nil
	}

	if err := state.pc.AddICECandidate(candidate); err != nil {
		log.Printf("⚠️  Failed to add ICE: %v", err)
		return err
	}

	return nil
}

func (m *Manager) sendICECandidate(peerID string, candidate *webrtc.ICECandidate) {
	m.mu.RLock()
	state, exists := m.calls[peerID]
	m.mu.RUnlock()

	if !exists {
		return
	}

	candidateJSON, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		log.Printf("⚠️  Failed to marshal ICE candidate: %v", err)
		return
	}

	if err := m.client.SendSignal(state.sessionID, peerID, models.SignalICECandidate, string(candidateJSON)); err != nil {
		log.Printf("⚠️  Failed to send ICE candidate: %v", err)
	}
}

// ============================================================
// CALL CLEANUP
// ============================================================

func (m *Manager) cleanupCall(peerID string) {
	m.mu.Lock()
	state, exists := m.calls[peerID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.calls, peerID)
	m.mu.Unlock()

	state.cleanupOnce.Do(func() {
		log.Printf("🧹 Cleaning up call %s", peerID)

		// Cancel first so the capture session and PLI sender stop.
		if state.cancelFunc != nil {
			state.cancelFunc()
		}

		state.closeAudioStop()

		if state.pc != nil {
			if err := state.pc.Close(); err != nil {
				log.Printf("   ⚠️  PC close: %v", err)
			}
		}

		// Best effort quit signal
		if err := m.client.SendSignal(state.sessionID, peerID, models.SignalSDPQuit, ""); err != nil {
			log.Printf("   ⚠️  Quit signal: %v", err)
		}

		log.Printf("   ✅ Cleanup complete")
	})
}

// closeAudioStop safely closes the audio stop channel.
func (cs *callState) closeAudioStop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.audioStop != nil {
		select {
		case <-cs.audioStop:
		default:
			close(cs.audioStop)
		}
	}
}

// endCallAfterDelay hangs up once prompts have had time to stream.
func (m *Manager) endCallAfterDelay(peerID, reason string, delay time.Duration) {
	log.Printf("📞 Scheduling call end for peer %s (reason: %s, delay: %v)", peerID, reason, delay)

	time.Sleep(delay)

	m.mu.RLock()
	state, exists := m.calls[peerID]
	m.mu.RUnlock()

	if !exists {
		return
	}

	state.endCallOnce.Do(func() {
		m.cleanupCall(peerID)
	})
}

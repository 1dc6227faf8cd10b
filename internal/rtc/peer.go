package rtc

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"attendance-kiosk/internal/audio"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// ============================================================
// PEER CONNECTION CREATION
// ============================================================

func (m *Manager) createPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}

	// Register VP8 video codec
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register VP8: %w", err)
	}

	// Register Opus audio codec
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register Opus: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	config := webrtc.Configuration{
		ICEServers: iceServers(),
	}

	return api.NewPeerConnection(config)
}

// iceServers reads the optional TURN relay from the environment on top of
// the public STUN defaults.
func iceServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
	}

	if turnURL := os.Getenv("TURN_URL"); turnURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{turnURL},
			Username:   os.Getenv("TURN_USERNAME"),
			Credential: os.Getenv("TURN_CREDENTIAL"),
		})
	}

	return servers
}

// ============================================================
// PEER CONNECTION HANDLERS
// ============================================================

func (m *Manager) setupPeerConnectionHandlers(peerID string, pc *webrtc.PeerConnection, ctx context.Context) {
	// ICE candidate handler
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			log.Println("✅ ICE gathering complete")
			return
		}
		m.sendICECandidate(peerID, candidate)
	})

	// Connection state handler
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("🔗 Connection: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			log.Println("🎉 WebRTC CONNECTED!")
			m.playPrompt(peerID, "welcome")

		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
			log.Printf("🔴 Connection closed/failed: %s", state.String())
			m.cleanupCall(peerID)
		}
	})

	// Track handler
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("🎬 Track: %s (Codec: %s)", track.Kind().String(), track.Codec().MimeType)

		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if !strings.Contains(track.Codec().MimeType, "VP8") {
			log.Printf("   ⚠️  Unsupported video codec: %s", track.Codec().MimeType)
			return
		}

		ssrc := uint32(track.SSRC())

		// Force an immediate IDR, then keep requesting keyframes.
		go func() {
			for i := 0; i < 3; i++ {
				if err := pc.WriteRTCP([]rtcp.Packet{
					&rtcp.PictureLossIndication{MediaSSRC: ssrc},
				}); err == nil {
					log.Println("   ⚡ Immediate PLI sent (forcing IDR)")
				}
				time.Sleep(100 * time.Millisecond)
			}
		}()

		go m.startPLISender(ctx, pc, ssrc)

		go m.runCaptureSession(peerID, track, ctx)
	})
}

// ============================================================
// AUDIO TRACK SETUP
// ============================================================

func (m *Manager) setupAudioTrack(peerID string, pc *webrtc.PeerConnection) error {
	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"kiosk-audio-stream",
	)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}

	rtpSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	log.Println("   ✅ Audio track added to peer connection")

	// RTCP reader keeps the sender's feedback drained.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.calls[peerID]; exists {
		state.audioPlayer = audio.NewPlayer(audioTrack, state.audioStop)
		log.Println("   ✅ Audio player initialized")
	}

	return nil
}

// ============================================================
// PLI SENDER
// ============================================================

func (m *Manager) startPLISender(ctx context.Context, pc *webrtc.PeerConnection, ssrc uint32) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	consecutiveErrors := 0
	maxErrors := 3

	defer func() {
		log.Println("   🛑 PLI sender stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			state := pc.ConnectionState()
			if state == webrtc.PeerConnectionStateClosed ||
				state == webrtc.PeerConnectionStateFailed {
				return
			}

			if err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: ssrc},
			}); err != nil {
				consecutiveErrors++
				if consecutiveErrors >= maxErrors {
					log.Printf("   ⚠️  PLI stopping (errors: %d)", consecutiveErrors)
					return
				}
			} else {
				consecutiveErrors = 0
			}
		}
	}
}

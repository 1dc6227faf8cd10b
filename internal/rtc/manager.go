package rtc

import (
	"log"
	"sync"
	"time"

	"attendance-kiosk/internal/audio"
	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/gate"
	"attendance-kiosk/internal/signal"
)

// ============================================================
// MANAGER INITIALIZATION
// ============================================================

func NewManager(
	client *signal.Client,
	faceDetector *detector.PresenceDetector,
	submitter gate.Submitter,
	gateConfig gate.Config,
	audioConfig audio.Config,
) (*Manager, error) {
	audioLibrary := audio.NewLibrary()

	if audioConfig.Enabled {
		audioFiles := map[string]string{
			"welcome":         audioConfig.WelcomePath,
			"checkin_success": audioConfig.SuccessPath,
			"checkin_fail":    audioConfig.FailPath,
		}

		for name, path := range audioFiles {
			if path != "" {
				if err := audioLibrary.Register(name, path); err != nil {
					log.Printf("⚠️  Failed to register %s audio: %v", name, err)
				}
			}
		}

		log.Printf("🎵 Audio system initialized: %d audio files registered", len(audioLibrary.List()))
	}

	m := &Manager{
		calls:           make(map[string]*callState),
		client:          client,
		faceDetector:    faceDetector,
		submitter:       submitter,
		gateConfig:      gateConfig,
		audioConfig:     audioConfig,
		audioLibrary:    audioLibrary,
		bufferPool:      newBufferPool(),
		captureConfig:   DefaultCaptureConfig(),
		dimensionConfig: DefaultDimensionConfig(),
		shutdown:        make(chan struct{}),
	}

	m.setupSignalHandler()
	return m, nil
}

// ============================================================
// SIGNAL HANDLER SETUP
// ============================================================

func (m *Manager) setupSignalHandler() {
	log.Println("🎧 Setting up signaling handler...")

	m.client.On("signal", func(env *signal.Envelope) {
		if env.PeerID == "" {
			log.Println("❌ Signal without peer ID")
			return
		}

		go func() {
			if err := m.HandleSignal(env); err != nil {
				log.Printf("❌ Error handling signal: %v", err)
			}
		}()
	})

	log.Println("✅ Signaling handler setup complete")
}

// playPrompt plays a registered prompt on a call's audio track.
func (m *Manager) playPrompt(peerID, name string) {
	if !m.audioConfig.Enabled {
		return
	}

	m.mu.RLock()
	state, exists := m.calls[peerID]
	m.mu.RUnlock()
	if !exists || state.audioPlayer == nil {
		return
	}

	path, ok := m.audioLibrary.Get(name)
	if !ok {
		return
	}

	state.audioPlayer.Play(audio.Item{FilePath: path, Name: name})
}

// ============================================================
// SHUTDOWN
// ============================================================

func (m *Manager) CloseAll() {
	m.shutdownOnce.Do(func() {
		close(m.shutdown)
		log.Println("🛑 Shutdown starting...")

		m.mu.Lock()
		calls := make([]*callState, 0, len(m.calls))
		peerIDs := make([]string, 0, len(m.calls))
		for pid, state := range m.calls {
			calls = append(calls, state)
			peerIDs = append(peerIDs, pid)
		}
		m.calls = make(map[string]*callState)
		m.mu.Unlock()

		done := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			for i, state := range calls {
				wg.Add(1)
				go func(s *callState, pid string) {
					defer wg.Done()
					if s.cancelFunc != nil {
						s.cancelFunc()
					}
					s.closeAudioStop()
					if s.pc != nil {
						s.pc.Close()
					}
					log.Printf("   ✅ Closed: %s", pid)
				}(state, peerIDs[i])
			}
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("   ✅ All closed")
		case <-time.After(5 * time.Second):
			log.Println("   ⚠️  Timeout")
		}

		if m.faceDetector != nil {
			m.faceDetector.Close()
		}

		log.Println("🛑 Shutdown complete")
	})
}

// ============================================================
// AUDIO FEEDBACK - voice prompts on the kiosk's outbound call track
// ============================================================
package audio

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Item is one queued prompt.
type Item struct {
	FilePath string
	Name     string // for logs ("welcome", "checkin_success")
	OnFinish func() // optional
}

type Config struct {
	Enabled     bool
	WelcomePath string
	SuccessPath string
	FailPath    string
}

// Player streams OGG/Opus prompts onto one WebRTC audio track. Prompts
// queue rather than interrupt each other.
type Player struct {
	track       *webrtc.TrackLocalStaticSample
	stopChan    chan struct{}
	queue       chan Item
	isPlaying   bool
	currentFile string
	mu          sync.Mutex
}

func NewPlayer(track *webrtc.TrackLocalStaticSample, stopChan chan struct{}) *Player {
	player := &Player{
		track:    track,
		stopChan: stopChan,
		queue:    make(chan Item, 10),
	}

	go player.processQueue()

	return player
}

// Play enqueues a prompt without interrupting the current one.
func (p *Player) Play(item Item) {
	select {
	case p.queue <- item:
		log.Printf("🎵 Queued: %s", item.Name)
	case <-p.stopChan:
		return
	default:
		log.Printf("⚠️  Queue full, skipping: %s", item.Name)
	}
}

// Status reports the current playback state.
func (p *Player) Status() (isPlaying bool, currentFile string, queueSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying, p.currentFile, len(p.queue)
}

func (p *Player) processQueue() {
	for {
		select {
		case <-p.stopChan:
			log.Println("🛑 Audio player stopped")
			return

		case item := <-p.queue:
			p.playItem(item)
		}
	}
}

func (p *Player) playItem(item Item) {
	p.mu.Lock()
	p.isPlaying = true
	p.currentFile = item.Name
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isPlaying = false
		p.currentFile = ""
		p.mu.Unlock()

		if item.OnFinish != nil {
			item.OnFinish()
		}
	}()

	log.Printf("▶️  Playing: %s", item.Name)

	if err := p.streamOGG(item.FilePath); err != nil && err != io.EOF {
		log.Printf("❌ Error playing %s: %v", item.Name, err)
	}
}

// streamOGG pushes one OGG/Opus file onto the track in real time.
func (p *Player) streamOGG(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("cannot open file: %w", err)
	}
	defer file.Close()

	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("cannot create OGG reader: %w", err)
	}

	var lastGranule uint64

	for {
		select {
		case <-p.stopChan:
			return fmt.Errorf("stopped")
		default:
		}

		pageData, pageHeader, err := ogg.ParseNextPage()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return err
		}

		// Granule positions are 48kHz sample counts.
		sampleDuration := time.Duration(0)
		if pageHeader.GranulePosition > lastGranule && lastGranule != 0 {
			sampleCount := pageHeader.GranulePosition - lastGranule
			sampleDuration = time.Duration((float64(sampleCount)/48000)*1000) * time.Millisecond
		}
		lastGranule = pageHeader.GranulePosition

		if sampleDuration == 0 {
			sampleDuration = 20 * time.Millisecond
		}

		if err := p.track.WriteSample(media.Sample{
			Data:     pageData,
			Duration: sampleDuration,
		}); err != nil {
			return err
		}

		time.Sleep(sampleDuration)
	}
}

// ============================================================
// AUDIO LIBRARY
// ============================================================

type Library struct {
	sounds map[string]string // name -> file path
	mu     sync.RWMutex
}

func NewLibrary() *Library {
	return &Library{
		sounds: make(map[string]string),
	}
}

// Register maps a prompt name to a file on disk.
func (l *Library) Register(name, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", filePath)
	}

	l.mu.Lock()
	l.sounds[name] = filePath
	l.mu.Unlock()

	log.Printf("📚 Registered audio: %s -> %s", name, filePath)
	return nil
}

func (l *Library) Get(name string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	path, exists := l.sounds[name]
	return path, exists
}

func (l *Library) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.sounds))
	for name := range l.sounds {
		names = append(names, name)
	}
	return names
}

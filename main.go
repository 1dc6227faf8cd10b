// Attendance Kiosk - face-verified check-in daemon.
//
// Two capture modes:
//   - webcam: samples a locally attached camera (default)
//   - remote: answers WebRTC video calls from employee devices
//
// Both modes feed frames through the same capture gate: detect a stable
// face, submit exactly one verification request, cool down on failure.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"attendance-kiosk/internal/api"
	"attendance-kiosk/internal/attendance"
	"attendance-kiosk/internal/audio"
	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/frames"
	"attendance-kiosk/internal/gate"
	"attendance-kiosk/internal/location"
	"attendance-kiosk/internal/rtc"
	sig "attendance-kiosk/internal/signal"
	"attendance-kiosk/internal/verify"
	"attendance-kiosk/models"

	"github.com/joho/godotenv"
)

// ============================================================
// MAIN
// ============================================================

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("📋 No .env file, using environment as-is")
	}

	fmt.Println("╔════════════════════════════════════════════════════╗")
	fmt.Println("║  Attendance Kiosk - FACE-VERIFIED CHECK-IN        ║")
	fmt.Println("║     - Detect on scaled images (320px)             ║")
	fmt.Println("║     - Debounced capture gate                      ║")
	fmt.Println("║     - One verification request per stable face    ║")
	fmt.Println("╚════════════════════════════════════════════════════╝")

	config := loadConfig()
	log.Printf("📋 Kiosk ID: %s", config.KioskID)
	log.Printf("   - API: %s", models.APICheckIn)

	registry := &location.Registry{
		Enabled:  envBool("LOCATION_ENABLED", true),
		FilePath: envOr("OFFICES_FILE", "config/offices.json"),
	}
	if err := registry.Load(); err != nil {
		log.Fatalf("❌ Failed to load office registry: %v", err)
	}

	// A kiosk mounted outside every office radius can never produce a
	// valid capture, so refuse to start rather than reject every user.
	kioskPoint := kioskLocation()
	if registry.Enabled && kioskPoint != nil {
		if err := registry.Validate(*kioskPoint); err != nil {
			log.Fatalf("❌ Kiosk location rejected: %v", err)
		}
	}

	detectorConfig := models.DefaultDetectorConfig()
	if path := os.Getenv("CASCADE_PATH"); path != "" {
		detectorConfig.CascadePath = path
	}

	apiClient := api.NewAPIClient(30 * time.Second)
	submitter := verify.NewSubmitter(apiClient, config.KioskID, detectorConfig.JPEGQuality, func() *models.GeoPoint {
		return kioskPoint
	}).WithGeofence(registry.Validate)

	mode := envOr("KIOSK_MODE", "webcam")
	if mode == "checkout" {
		runCheckout(submitter)
		return
	}

	faceDetector, err := detector.NewPresenceDetector(detectorConfig)
	if err != nil {
		log.Fatalf("❌ Failed to load face detector: %v", err)
	}
	defer faceDetector.Close()

	gateConfig := gate.DefaultConfig()
	gateConfig.MinConfidence = detectorConfig.MinConfidence

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	switch mode {
	case "remote":
		runRemote(config, faceDetector, submitter, gateConfig, sigCh)
	case "webcam":
		runWebcam(faceDetector, submitter, gateConfig, sigCh)
	default:
		log.Fatalf("❌ Unknown KIOSK_MODE %q (want webcam, remote or checkout)", mode)
	}

	log.Println("✅ Done!")
}

// ============================================================
// WEBCAM MODE
// ============================================================

func runWebcam(det *detector.PresenceDetector, sub *verify.Submitter, cfg gate.Config, sigCh chan os.Signal) {
	deviceID := envInt("WEBCAM_DEVICE", 0)

	log.Println("\n✅ Kiosk started in WEBCAM mode")
	log.Printf("🎥 Camera device: %d", deviceID)
	log.Println("   Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigCh
		log.Println("\n⚠️  Shutting down...")
		cancel()
	}()

	for ctx.Err() == nil {
		source := frames.NewWebcamSource(deviceID)
		session := gate.NewSession(cfg, source, det, sub)

		if err := session.Start(ctx); err != nil {
			log.Printf("❌ Camera unavailable: %v (retrying in 5s)", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		consumeSession(ctx, session)
	}
}

// consumeSession drains one gate session until it finishes, announcing
// each outcome on the console. The final event may still be buffered when
// Done fires, so exit paths drain before returning.
func consumeSession(ctx context.Context, session *gate.Session) {
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			<-session.Done()
			drainEvents(session)
			return

		case <-session.Done():
			drainEvents(session)
			return

		case ev := <-session.Events():
			announceEvent(ev)
		}
	}
}

func drainEvents(session *gate.Session) {
	for {
		select {
		case ev := <-session.Events():
			announceEvent(ev)
		default:
			return
		}
	}
}

func announceEvent(ev gate.Event) {
	switch ev.Kind {
	case gate.EventSucceeded:
		announceCheckIn(ev.Response)
	case gate.EventFailed:
		log.Printf("❌ Verification failed: %v", ev.Err)
	case gate.EventEnded:
		log.Printf("🔴 Session ended: %v", ev.Err)
	}
}

func announceCheckIn(resp *models.CheckInResponse) {
	log.Printf("🎉 Welcome, %s!", resp.GetFullName())
	if resp.Shift != nil {
		log.Printf("   📅 Shift: %s (%s - %s)", resp.Shift.Name, resp.Shift.StartTime, resp.Shift.EndTime)
	}
	if resp.Record != nil {
		log.Printf("   🕐 Status: %s", resp.Record.Status)
		if resp.Record.CheckInTime != nil {
			hours := attendance.ElapsedHours(resp.Record, time.Now())
			log.Printf("   ⏱️  On the clock: %.1fh", hours)
		}
	}
}

// ============================================================
// REMOTE MODE
// ============================================================

func runRemote(config models.Config, det *detector.PresenceDetector, sub *verify.Submitter, cfg gate.Config, sigCh chan os.Signal) {
	audioConfig := audio.Config{
		Enabled:     envBool("AUDIO_ENABLED", true),
		WelcomePath: envOr("AUDIO_WELCOME", "./audio/welcome.ogg"),
		SuccessPath: envOr("AUDIO_SUCCESS", "./audio/checkin-success.ogg"),
		FailPath:    envOr("AUDIO_FAIL", "./audio/checkin-failed.ogg"),
	}

	client := sig.NewClient(config)
	if err := client.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to signaling server: %v", err)
	}
	defer client.Close()

	manager, err := rtc.NewManager(client, det, sub, cfg, audioConfig)
	if err != nil {
		log.Fatalf("❌ Failed to create call manager: %v", err)
	}

	log.Println("\n✅ Kiosk started in REMOTE mode")
	log.Println("📞 Waiting for calls...")
	log.Println("   ✅ VP8 video capture")
	log.Println("   ⚡ Face detection on scaled images (320px)")
	log.Println("   ⚡ Reduced latency (maxLate: 128)")
	log.Println("   ✅ Audio prompts over Opus")
	log.Println("   Press Ctrl+C to stop")

	<-sigCh

	log.Println("\n⚠️  Shutting down...")
	manager.CloseAll()
}

// ============================================================
// CHECKOUT MODE
// ============================================================

// runCheckout closes today's attendance record for one user and exits.
// Meant for a badge-out terminal or a cron-driven end-of-day run.
func runCheckout(sub *verify.Submitter) {
	userID := os.Getenv("CHECKOUT_USER")
	if userID == "" {
		log.Fatalf("❌ CHECKOUT_USER is required in checkout mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record, err := sub.CheckOut(ctx, userID)
	if err != nil {
		log.Fatalf("❌ Check-out failed: %v", err)
	}

	log.Printf("👋 Checked out: %s", record)
	log.Printf("   ⏱️  Total: %.2fh (overtime: %.2fh, status: %s)",
		record.TotalHours, record.OvertimeHours, record.Status)
}

// ============================================================
// CONFIG HELPERS
// ============================================================

func loadConfig() models.Config {
	host := envOr("KIOSK_HOST", "localhost")
	port := envOr("KIOSK_PORT", "8080")

	return models.Config{
		KioskID:      os.Getenv("KIOSK_ID"),
		KioskToken:   os.Getenv("KIOSK_TOKEN"),
		Host:         host,
		Port:         port,
		UseSSL:       envBool("KIOSK_USE_SSL", false),
		SocketHost:   envOr("SOCKET_HOST", host),
		SocketPort:   envOr("SOCKET_PORT", port),
		SocketUseSSL: envBool("SOCKET_USE_SSL", false),
	}
}

func kioskLocation() *models.GeoPoint {
	latStr := os.Getenv("KIOSK_LAT")
	lonStr := os.Getenv("KIOSK_LON")
	if latStr == "" || lonStr == "" {
		return nil
	}

	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		log.Println("⚠️  Invalid KIOSK_LAT/KIOSK_LON, ignoring")
		return nil
	}

	return &models.GeoPoint{Latitude: lat, Longitude: lon}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return fallback
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

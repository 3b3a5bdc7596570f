package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"greenroom/capture"
	"greenroom/log"
	"greenroom/recruiter"
	"greenroom/session"
	"greenroom/transport"
	"greenroom/uploader"
)

var version = "dev"

var (
	orch     *session.Orchestrator
	uplink   uploader.Uploader
	readOnly bool
)

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if orch != nil {
			orch.Close()
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func run() {
	interviewFlag := flag.String("interview", "", "Interview session id to join")
	applicationFlag := flag.String("application", "", "Application id; resolves the interview and read-only state")
	serverFlag := flag.String("server", "https://api.greenroom.dev", "Recruiting platform base URL")
	tokenFlag := flag.String("token", "", "API bearer token (default: GREENROOM_TOKEN env)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	playerFlag := flag.String("player", "", "Command used to play recordings (empty: write file only)")
	chunkFlag := flag.Duration("chunk", time.Second, "Audio chunk emission interval")
	insightTTLFlag := flag.Duration("insight-ttl", 10*time.Second, "How long a coaching insight stays visible")
	streamFlag := flag.Bool("stream", true, "Relay live audio to the analysis backend")
	reconnectFlag := flag.Duration("reconnect", 3*time.Second, "Fixed reconnect interval after a dropped connection")
	fakeFlag := flag.String("fake", "", "Replay a WAV file instead of opening a microphone")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("greenroom %s\n", version)
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("GREENROOM_TOKEN")
	}

	interviewID := *interviewFlag
	if *applicationFlag != "" {
		rc := recruiter.New(*serverFlag, token)
		app, err := rc.Application(context.Background(), *applicationFlag)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		interviewID = app.InterviewID
		readOnly = app.ReadOnly()
		if readOnly {
			fmt.Printf("Application %s is %s; opening read-only.\n", app.ID, app.Status)
		}
	}
	if interviewID == "" {
		fmt.Fprintln(os.Stderr, "Usage: greenroom -interview <id> (or -application <id>)")
		os.Exit(1)
	}

	// Capture context: real microphone, or WAV replay for demos and
	// offline testing.
	var capCtx capture.Context
	if *fakeFlag != "" {
		capCtx, err = capture.NewFakeContextFromWAV(*fakeFlag, true)
		if err != nil {
			fmt.Printf("Error loading %s: %v\n", *fakeFlag, err)
			os.Exit(1)
		}
	} else {
		capCtx, err = capture.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Printf("Error initializing audio: %v\n", err)
			os.Exit(1)
		}
	}
	defer capCtx.Close()

	var selectedDevice *capture.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := capCtx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			fmt.Printf("Warning: device %q not found, using system default\n", *deviceFlag)
		}
	} else if *setupFlag {
		selectedDevice, err = selectDevice(capCtx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	endpoint, err := transport.EndpointForInterview(*serverFlag, interviewID, token)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	channel := transport.NewChannel(endpoint, transport.Options{
		AutoReconnect:     true,
		ReconnectInterval: *reconnectFlag,
	})

	uplink = uploader.NewHTTP(*serverFlag, token)
	registry := session.NewRegistry("", *playerFlag)

	orch = session.New(channel, capCtx,
		capture.Config{Device: selectedDevice, ChunkInterval: *chunkFlag},
		registry, tuiSink{},
		session.Config{InsightTTL: *insightTTLFlag, Streaming: *streamFlag && !readOnly})

	log.SessionStart(interviewID, endpoint)
	orch.Run(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	tuiMu.Lock()
	tuiProgram = NewTUIProgram()
	tuiMu.Unlock()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		os.Exit(1)
	}
	gracefulShutdown()
}

func main() {
	run()
}

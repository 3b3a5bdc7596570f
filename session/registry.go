package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenroom/capture"
	"greenroom/encoder"
	"greenroom/log"
	"greenroom/uploader"
)

var (
	ErrUnknownArtifact = errors.New("unknown artifact")
	ErrHandleReleased  = errors.New("playback handle already released")
)

// Artifact is a registered recording with its playback handle and,
// after a successful upload, its remote location. Pointers to it are
// shared between the registry and its observers; the mutable remote
// field is guarded so a cached pointer stays safe to read while an
// upload completes on another goroutine.
type Artifact struct {
	ID        string
	Name      string
	Data      []byte // complete WAV
	SizeBytes int
	Duration  time.Duration
	CreatedAt time.Time

	mu       sync.Mutex
	remote   *uploader.RemoteInfo
	playback *playbackHandle
}

// Remote returns the upload destination, or nil while local-only.
func (a *Artifact) Remote() *uploader.RemoteInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remote
}

func (a *Artifact) setRemote(info *uploader.RemoteInfo) {
	a.mu.Lock()
	a.remote = info
	a.mu.Unlock()
}

// playbackHandle owns the on-disk file backing local playback. The file
// is materialized lazily and must be released exactly once; use after
// release is an error rather than undefined behavior.
type playbackHandle struct {
	dir string

	mu       sync.Mutex
	path     string
	released bool
}

func (h *playbackHandle) materialize(name string, data []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return "", ErrHandleReleased
	}
	if h.path != "" {
		return h.path, nil
	}

	f, err := os.CreateTemp(h.dir, "playback-*-"+filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("materializing playback file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing playback file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	h.path = f.Name()
	return h.path, nil
}

// release is idempotent: the second and later calls are no-ops.
func (h *playbackHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if h.path != "" {
		os.Remove(h.path)
		h.path = ""
	}
}

// Registry is the ordered list of recordings made during one interview
// workspace session. It is independent of the transport: recordings
// survive connection drops and outlive the socket.
type Registry struct {
	dir    string
	player string

	mu        sync.Mutex
	artifacts []*Artifact
}

// NewRegistry stores playback files under dir (os.TempDir when empty).
// player is the command used by Play; empty means materialize only.
func NewRegistry(dir, player string) *Registry {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Registry{dir: dir, player: player}
}

func (r *Registry) Add(a capture.Artifact) *Artifact {
	art := &Artifact{
		ID:        uuid.NewString(),
		Name:      a.Name,
		Data:      a.WAV,
		SizeBytes: len(a.WAV),
		Duration:  a.Duration,
		CreatedAt: a.CreatedAt,
		playback:  &playbackHandle{dir: r.dir},
	}
	r.mu.Lock()
	r.artifacts = append(r.artifacts, art)
	r.mu.Unlock()
	log.Infof("artifact registered: %s (%d bytes)", art.Name, art.SizeBytes)
	return art
}

func (r *Registry) Get(id string) (*Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// List returns the artifacts in registration order.
func (r *Registry) List() []*Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Artifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artifacts)
}

// Play materializes the playback file and, when a player command is
// configured, launches it detached. Returns the file path.
func (r *Registry) Play(id string) (string, error) {
	a, ok := r.Get(id)
	if !ok {
		return "", ErrUnknownArtifact
	}
	path, err := a.playback.materialize(a.Name, a.Data)
	if err != nil {
		return "", err
	}
	if r.player != "" {
		cmd := exec.Command(r.player, path)
		if err := cmd.Start(); err != nil {
			return path, fmt.Errorf("launching player: %w", err)
		}
		go cmd.Wait()
	}
	return path, nil
}

// Remove releases the playback handle and drops the artifact. Removing
// an unknown id (including a second Remove of the same id) is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	var removed *Artifact
	for i, a := range r.artifacts {
		if a.ID == id {
			removed = a
			r.artifacts = append(r.artifacts[:i], r.artifacts[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if removed == nil {
		return false
	}
	removed.playback.release()
	return true
}

// ExportFLAC writes a losslessly compressed copy of the artifact next
// to the given directory and returns its path. The WAV original is
// untouched.
func (r *Registry) ExportFLAC(id, dir string) (string, error) {
	a, ok := r.Get(id)
	if !ok {
		return "", ErrUnknownArtifact
	}
	pcm, err := encoder.WAVPayload(a.Data)
	if err != nil {
		return "", err
	}
	flacData, err := encoder.FLAC(pcm)
	if err != nil {
		return "", fmt.Errorf("encoding flac: %w", err)
	}
	path := filepath.Join(dir, strings.TrimSuffix(a.Name, ".wav")+".flac")
	if err := os.WriteFile(path, flacData, 0644); err != nil {
		return "", err
	}
	log.Infof("artifact exported: %s (%d -> %d bytes)", path, len(a.Data), len(flacData))
	return path, nil
}

// Upload hands the artifact to remote storage. On success the remote
// info is attached; on failure the artifact is left unchanged and
// locally available for retry.
func (r *Registry) Upload(ctx context.Context, id string, up uploader.Uploader) error {
	a, ok := r.Get(id)
	if !ok {
		return ErrUnknownArtifact
	}
	info, err := up.Upload(ctx, a.Name, a.Data)
	if err != nil {
		return err
	}
	a.setRemote(info)
	log.Infof("artifact uploaded: %s -> %s", a.Name, info.URL)
	return nil
}

// Close releases every outstanding playback handle. Artifacts stay
// listed but can no longer be played.
func (r *Registry) Close() {
	for _, a := range r.List() {
		a.playback.release()
	}
}

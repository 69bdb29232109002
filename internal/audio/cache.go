package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// manifestName is the cache manifest file inside the cache directory.
const manifestName = "manifest.msgpack"

// cacheEntry records one downloaded URL.
type cacheEntry struct {
	File         string    `msgpack:"file"`
	ETag         string    `msgpack:"etag"`
	LastModified string    `msgpack:"last_modified"`
	FetchedAt    time.Time `msgpack:"fetched_at"`
}

// Cache downloads audio files by URL and keeps them on the local filesystem.
// Downloads are conditional where the server supports it (ETag or
// Last-Modified); otherwise URL equality decides reuse.
type Cache struct {
	dir        string
	httpClient *http.Client
	entries    map[string]cacheEntry
	log        zerolog.Logger
}

// NewCache opens (or creates) a cache in dir and loads its manifest. A
// corrupt manifest is discarded; the cache re-downloads on demand.
func NewCache(dir string, timeout time.Duration, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio cache dir: %w", err)
	}

	c := &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: timeout},
		entries:    make(map[string]cacheEntry),
		log:        log.With().Str("component", "audio_cache").Logger(),
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err == nil {
		if err := msgpack.Unmarshal(data, &c.entries); err != nil {
			c.log.Warn().Err(err).Msg("Corrupt audio cache manifest, starting empty")
			c.entries = make(map[string]cacheEntry)
		}
	}

	return c, nil
}

// Fetch returns a local path for the audio at url, downloading only when the
// cached copy is missing or the server reports a newer version.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	entry, cached := c.entries[url]
	if cached {
		local := filepath.Join(c.dir, entry.File)
		if _, err := os.Stat(local); err != nil {
			cached = false
		} else if entry.ETag == "" && entry.LastModified == "" {
			// Server offered no validators: URL equality is the key and the
			// cached copy stands.
			return local, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build audio request: %w", err)
	}
	if cached {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cached {
			// Offline with a cached copy: use what we have.
			c.log.Warn().Err(err).Str("url", url).Msg("Audio fetch failed, using cached copy")
			return filepath.Join(c.dir, entry.File), nil
		}
		return "", fmt.Errorf("audio fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached {
		return filepath.Join(c.dir, entry.File), nil
	}
	if resp.StatusCode != http.StatusOK {
		if cached {
			c.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Audio fetch returned error, using cached copy")
			return filepath.Join(c.dir, entry.File), nil
		}
		return "", fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}

	fileName := uuid.NewString() + ".mp3"
	local := filepath.Join(c.dir, fileName)

	out, err := os.CreateTemp(c.dir, "download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create audio temp file: %w", err)
	}
	tmpName := out.Name()

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finish audio download: %w", err)
	}
	if err := os.Rename(tmpName, local); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to place audio file: %w", err)
	}

	// Drop the superseded copy.
	if cached && entry.File != fileName {
		os.Remove(filepath.Join(c.dir, entry.File))
	}

	c.entries[url] = cacheEntry{
		File:         fileName,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now(),
	}
	if err := c.saveManifest(); err != nil {
		c.log.Error().Err(err).Msg("Failed to save audio cache manifest")
	}

	c.log.Info().Str("url", url).Str("file", fileName).Msg("Audio downloaded")
	return local, nil
}

func (c *Cache) saveManifest() error {
	data, err := msgpack.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, manifestName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to place manifest: %w", err)
	}
	return nil
}

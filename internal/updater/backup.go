package updater

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/reliability"
)

// Backupper snapshots the working tree before an update. The archive is for
// operator use; a failed update never rolls back from it automatically.
type Backupper struct {
	repoDir   string
	backupDir string
	offsite   *reliability.OffsiteClient
	log       zerolog.Logger
}

// NewBackupper creates a backupper. offsite may be nil; archives then stay
// local only.
func NewBackupper(repoDir, backupDir string, offsite *reliability.OffsiteClient, log zerolog.Logger) *Backupper {
	return &Backupper{
		repoDir:   repoDir,
		backupDir: backupDir,
		offsite:   offsite,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// Snapshot archives the working tree to a timestamped tar.gz and returns the
// archive path. When offsite storage is configured the archive is also
// uploaded; an upload failure is logged but does not fail the snapshot.
func (b *Backupper) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	name := fmt.Sprintf("backup-%s-%s.tar.gz",
		time.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString()[:8])
	archivePath := filepath.Join(b.backupDir, name)

	if err := b.writeArchive(archivePath); err != nil {
		os.Remove(archivePath)
		return "", err
	}

	b.log.Info().Str("archive", archivePath).Msg("Working tree snapshot created")

	if b.offsite != nil {
		f, err := os.Open(archivePath)
		if err != nil {
			b.log.Error().Err(err).Msg("Failed to reopen archive for offsite upload")
			return archivePath, nil
		}
		defer f.Close()
		if err := b.offsite.Upload(ctx, name, f); err != nil {
			b.log.Error().Err(err).Msg("Offsite backup upload failed")
		}
	}

	return archivePath, nil
}

// writeArchive tars the tree, skipping the whole .git directory: git state is
// reconstructible from the remote, and the object store dominates archive
// size on a small device.
func (b *Backupper) writeArchive(archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	err = filepath.Walk(b.repoDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(b.repoDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if rel == ".git" || strings.HasPrefix(rel, ".git"+string(os.PathSeparator)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive working tree: %w", err)
	}
	return nil
}

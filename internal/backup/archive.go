package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename    string
	Path        string
	SizeBytes   int64
	CreatedAt   time.Time
	Directories []string
	FileCount   int
	Compression CompressionConfig
}

// ArchiveHandler creates and extracts tar archives of instance directories.
type ArchiveHandler struct {
	workDir string
}

// NewArchiveHandler creates a handler that stages archives in workDir.
func NewArchiveHandler(workDir string) *ArchiveHandler {
	return &ArchiveHandler{workDir: workDir}
}

// CreateArchive archives the given entries, relative to baseDir, into a new
// file named after label in the staging directory. Entries matching an
// exclude pattern are skipped.
func (ah *ArchiveHandler) CreateArchive(label, baseDir string, entries []string, exclude []string, compression CompressionConfig) (*ArchiveInfo, error) {
	compression = normalizeCompression(compression)

	if err := os.MkdirAll(ah.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s.%s", label, timestamp, compressionArchiveExtension(compression))
	archivePath := filepath.Join(ah.workDir, filename)

	log.Printf("[Archive] Creating archive %s from %v in %s", filename, entries, baseDir)

	for _, entry := range entries {
		if _, err := os.Stat(filepath.Join(baseDir, entry)); err != nil {
			return nil, fmt.Errorf("directory or file does not exist: %s", entry)
		}
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	fileCount, err := writeArchive(file, baseDir, entries, exclude, compression)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive size: %w", err)
	}

	info := &ArchiveInfo{
		Filename:    filename,
		Path:        archivePath,
		SizeBytes:   stat.Size(),
		CreatedAt:   time.Now(),
		Directories: entries,
		FileCount:   fileCount,
		Compression: compression,
	}

	log.Printf("[Archive] Archive created successfully: %s (size: %d bytes, files: %d)",
		filename, info.SizeBytes, fileCount)

	return info, nil
}

func writeArchive(w io.Writer, baseDir string, entries []string, exclude []string, compression CompressionConfig) (int, error) {
	var gz *gzip.Writer
	if compression.Type == "gzip" {
		var err error
		gz, err = gzip.NewWriterLevel(w, compression.Level)
		if err != nil {
			return 0, err
		}
		w = gz
	}

	tw := tar.NewWriter(w)
	count := 0

	for _, entry := range entries {
		root := filepath.Join(baseDir, entry)
		err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(baseDir, p)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)

			if isExcluded(name, exclude) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() && !info.IsDir() {
				return nil
			}

			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = name
			if info.IsDir() {
				header.Name += "/"
			}

			if err := tw.WriteHeader(header); err != nil {
				return err
			}

			if info.IsDir() {
				return nil
			}

			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()

			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			return count, err
		}
	}

	if err := tw.Close(); err != nil {
		return count, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func isExcluded(name string, exclude []string) bool {
	base := path.Base(name)
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ExtractArchive unpacks an archive read from r into destination.
func (ah *ArchiveHandler) ExtractArchive(r io.Reader, filename, destination string) error {
	log.Printf("[Archive] Extracting archive %s to %s", filename, destination)

	if err := os.MkdirAll(destination, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if detectCompressionFromFilename(filename).Type == "gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(destination, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}

	log.Printf("[Archive] Archive extracted successfully to %s", destination)
	return nil
}

// DeleteArchive removes a staged archive.
func (ah *ArchiveHandler) DeleteArchive(archivePath string) error {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func safeJoin(base, name string) (string, error) {
	target := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}

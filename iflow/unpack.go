package iflow

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ArtifactKind classifies an artifact file by extension or content.
type ArtifactKind int

const (
	KindUnknown ArtifactKind = iota
	KindZip
	KindXML
)

// Entry-name fragments considered structurally meaningful. Only matching
// archive entries are extracted, which bounds the work on archives with
// thousands of irrelevant entries.
var structuralPatterns = []string{
	".xml", ".iflw", ".project", "metainfo.prop",
	"MANIFEST.MF", ".prop", "parameters.prop",
	"IntegrationFlow", "META-INF",
}

// DetectKind determines the real kind of the file at path: extension
// first, content sniffing second. Files that are neither recognizable ZIP
// nor XML come back as KindUnknown.
func DetectKind(path string) ArtifactKind {
	switch {
	case strings.HasSuffix(path, ".zip"):
		return KindZip
	case strings.HasSuffix(path, ".xml"), strings.HasSuffix(path, ".iflw"):
		return KindXML
	}
	header, err := readHeader(path, 1000)
	if err != nil {
		return KindUnknown
	}
	return SniffKind(header)
}

// SniffKind classifies content by its leading bytes: ZIP magic ("PK") or
// XML markers.
func SniffKind(header []byte) ArtifactKind {
	if len(header) >= 2 && header[0] == 'P' && header[1] == 'K' {
		return KindZip
	}
	s := string(header)
	if strings.Contains(s, "<?xml") || strings.Contains(s, "<bpmn") || strings.Contains(s, "<ifl:") {
		return KindXML
	}
	return KindUnknown
}

func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// UnpackedArchive is the outcome of selectively extracting one artifact
// archive into a scratch directory. Callers must Close it; the scratch
// directory is removed regardless of how the analysis went.
type UnpackedArchive struct {
	Dir          string
	Files        []string
	Errors       []string
	TotalEntries int
	MainDirs     []string
}

// Close removes the scratch directory and everything under it.
func (a *UnpackedArchive) Close() error {
	if a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Unpacker extracts the structurally meaningful entries of artifact
// archives into uniquely named scratch directories.
type Unpacker struct {
	log *logrus.Logger
}

// NewUnpacker returns an unpacker logging through log.
func NewUnpacker(log *logrus.Logger) *Unpacker {
	return &Unpacker{log: log}
}

// Unpack opens the ZIP at zipPath and extracts matching entries into a
// fresh scratch directory adjacent to the source file. An unreadable
// archive fails the whole call; a failure on an individual entry is
// recorded in the result's Errors and extraction continues.
func (u *Unpacker) Unpack(zipPath string) (*UnpackedArchive, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	scratch := filepath.Join(filepath.Dir(zipPath), "extracted_"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	u.log.WithField("dir", scratch).Debug("created scratch directory")

	arch := &UnpackedArchive{Dir: scratch, TotalEntries: len(reader.File)}

	mainDirs := map[string]bool{}
	for _, f := range reader.File {
		if parts := strings.SplitN(f.Name, "/", 2); len(parts) > 1 {
			if !mainDirs[parts[0]] {
				mainDirs[parts[0]] = true
				arch.MainDirs = append(arch.MainDirs, parts[0])
			}
		}
		if !matchesStructuralPattern(f.Name) {
			continue
		}
		if err := u.extractEntry(f, scratch); err != nil {
			msg := fmt.Sprintf("error extracting %s: %v", f.Name, err)
			u.log.Warn(msg)
			arch.Errors = append(arch.Errors, msg)
			continue
		}
		if !f.FileInfo().IsDir() {
			arch.Files = append(arch.Files, f.Name)
		}
	}

	u.log.WithFields(logrus.Fields{
		"archive":   zipPath,
		"extracted": len(arch.Files),
		"total":     arch.TotalEntries,
	}).Info("selective extraction complete")

	return arch, nil
}

func matchesStructuralPattern(name string) bool {
	for _, p := range structuralPatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func (u *Unpacker) extractEntry(f *zip.File, scratch string) error {
	target := filepath.Join(scratch, f.Name)

	// Zip-slip guard: entries must stay inside the scratch directory.
	if !strings.HasPrefix(target, filepath.Clean(scratch)+string(os.PathSeparator)) {
		return fmt.Errorf("entry escapes scratch directory")
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

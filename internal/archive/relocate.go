// Package archive is responsible for placing ingested recordings in
// to the date partitioned archive layout:
//
//	<target_root>/<YYYY>/<MM MonthName>/<filename>
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shikya/call-record-ingestor/internal/recording"
	"github.com/shikya/call-record-ingestor/pkg/logger"
)

type (
	TransferMode    string
	CollisionPolicy string
)

const (
	// Move relocates the file, the source no longer exists afterwards.
	Move TransferMode = "move"
	// Copy duplicates the file in to the archive, retaining the source.
	Copy TransferMode = "copy"

	// Fail refuses to relocate a file if its destination already exists.
	Fail CollisionPolicy = "fail"
	// Overwrite replaces any existing file at the destination.
	Overwrite CollisionPolicy = "overwrite"
)

var (
	log = logger.Get("Archive")

	ErrDestinationExists = errors.New("destination already exists")
	ErrUnknownTransfer   = errors.New("unknown transfer mode")

	monthNames = [...]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
)

type (
	Config struct {
		TargetRoot      string          `yaml:"target_root" env:"TARGET_ROOT" validate:"required"`
		TransferMode    TransferMode    `yaml:"transfer_mode" env:"TRANSFER_MODE" env-default:"move" validate:"oneof=move copy"`
		CollisionPolicy CollisionPolicy `yaml:"collision_policy" env:"COLLISION_POLICY" env-default:"fail" validate:"oneof=fail overwrite"`
	}

	// RelocationError is returned when a file could not be placed in
	// to the archive; Destination is empty if it could not be derived.
	RelocationError struct {
		Source      string
		Destination string
		Err         error
	}

	Relocator struct {
		config Config
	}
)

func (e *RelocationError) Error() string {
	return fmt.Sprintf("failed to relocate %s to %s: %s", e.Source, e.Destination, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

func New(config Config) (*Relocator, error) {
	if config.TargetRoot == "" {
		return nil, errors.New("archive target root must be provided")
	}

	switch config.TransferMode {
	case Move, Copy:
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownTransfer, config.TransferMode)
	}

	switch config.CollisionPolicy {
	case "":
		config.CollisionPolicy = Fail
	case Fail, Overwrite:
	default:
		return nil, fmt.Errorf("unknown collision policy '%s'", config.CollisionPolicy)
	}

	return &Relocator{config: config}, nil
}

func (relocator *Relocator) Mode() TransferMode { return relocator.config.TransferMode }

// MonthDirectory returns the directory name used for the month
// provided, for example "07 July". Months outside 1-12 have no name
// and an error is returned.
func MonthDirectory(month int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("month %02d has no name", month)
	}

	return fmt.Sprintf("%02d %s", month, monthNames[month-1]), nil
}

// Destination computes the archive path for the file with the
// base name and key provided.
func (relocator *Relocator) Destination(filename string, key recording.FilenameKey) (string, error) {
	monthDir, err := MonthDirectory(key.Month)
	if err != nil {
		return "", err
	}

	return filepath.Join(relocator.config.TargetRoot, fmt.Sprintf("%04d", key.Year), monthDir, filename), nil
}

// Relocate transfers the file at path in to the archive, creating any
// missing directories. The configured transfer mode decides whether the
// source is retained. The path of the archived file is returned.
func (relocator *Relocator) Relocate(path string, key recording.FilenameKey) (string, error) {
	dest, err := relocator.Destination(filepath.Base(path), key)
	if err != nil {
		return "", &RelocationError{Source: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &RelocationError{Source: path, Destination: dest, Err: err}
	}

	if same, err := sameFile(path, dest); err != nil {
		return "", &RelocationError{Source: path, Destination: dest, Err: err}
	} else if same {
		return "", &RelocationError{Source: path, Destination: dest, Err: fmt.Errorf("%w: source is already archived", ErrDestinationExists)}
	}

	if relocator.config.CollisionPolicy == Fail {
		if _, err := os.Lstat(dest); err == nil {
			return "", &RelocationError{Source: path, Destination: dest, Err: ErrDestinationExists}
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", &RelocationError{Source: path, Destination: dest, Err: err}
		}
	}

	switch relocator.config.TransferMode {
	case Move:
		err = moveFile(path, dest)
	case Copy:
		var checksum string
		checksum, err = copyFile(path, dest)
		if err == nil {
			log.Verbosef("Copied %s (sha256 %s)\n", dest, checksum)
		}
	default:
		err = fmt.Errorf("%w '%s'", ErrUnknownTransfer, relocator.config.TransferMode)
	}

	if err != nil {
		return "", &RelocationError{Source: path, Destination: dest, Err: err}
	}

	return dest, nil
}

// moveFile renames the source to the destination, falling back to
// a copy followed by removal of the source when a rename is not
// possible (e.g. the archive is on another device).
func moveFile(source, dest string) error {
	if err := os.Rename(source, dest); err == nil {
		return nil
	} else {
		log.Debugf("Rename of %s failed (%s), falling back to copy\n", source, err)
	}

	if _, err := copyFile(source, dest); err != nil {
		return err
	}

	if err := os.Remove(source); err != nil {
		return fmt.Errorf("copied to destination but failed to remove source: %w", err)
	}

	return nil
}

// copyFile streams the source in to a temporary file alongside
// the destination, computing a SHA-256 of the content as it goes. The
// temp file is synced and then atomically renamed in to place. On
// failure the temp file is removed.
func copyFile(source, dest string) (string, error) {
	in, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("fsync failed: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("atomic rename failed: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func sameFile(a, b string) (bool, error) {
	aInfo, err := os.Stat(a)
	if err != nil {
		return false, err
	}

	bInfo, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return os.SameFile(aInfo, bInfo), nil
}

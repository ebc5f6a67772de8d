package inference

import (
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// appendLines appends one line per string to the results file, creating it if
// needed. A sibling .lock file guards against interleaved writes from
// concurrent runs sharing the same results file.
func appendLines(path string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	var writeErr error
	errLock := execOnFileLock(path+".lock", func() {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			writeErr = errors.Wrapf(err, "failed to open results file %q", path)
			return
		}
		defer func() { _ = f.Close() }()
		var sb strings.Builder
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if _, err := f.WriteString(sb.String()); err != nil {
			writeErr = errors.Wrapf(err, "failed to append to results file %q", path)
		}
	})
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking results file %q", path)
	}
	return writeErr
}

// execOnFileLock opens the lockPath file (or creates it if it doesn't yet
// exist), locks it, and executes the function. If the lockPath is already
// locked, it polls with a 1 to 2 seconds period (randomly) until it acquires
// the lock.
//
// The lockPath is not removed.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(1000+rand.Intn(1000)))
	}
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	fn()
	return
}

package scanner

import (
	"os"
	"time"
)

// birthTime returns the file's modification time as its creation time.
// The platform's birth time is not read on any system.
func birthTime(info os.FileInfo) time.Time {
	return info.ModTime()
}

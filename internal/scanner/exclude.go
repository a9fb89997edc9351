package scanner

// ExcludedDirs lists directory basenames the walk never descends into.
var ExcludedDirs = map[string]bool{
	".git":                      true,
	".ssh":                      true,
	".gnupg":                    true,
	".vscode":                   true,
	".idea":                     true,
	"node_modules":              true,
	"__pycache__":                true,
	"venv":                      true,
	"$RECYCLE.BIN":              true,
	"System Volume Information": true,
}

// ExcludedExtensions lists file extensions (without dot, lowercase) never
// accepted by the scan, regardless of size.
var ExcludedExtensions = map[string]bool{
	"exe": true,
	"dll": true,
	"sys": true,
	"msi": true,
	"bat": true,
	"ps1": true,
	"sh":  true,
}

// DefaultMinSize is the minimum file size in bytes accepted by the scan.
const DefaultMinSize int64 = 1024

package encryption

import "fmt"

// Config selects and configures an Encryptor for artifact storage.
type Config struct {
	Type           string // "age", "test", or "" (none)
	PublicKeyPath  string
	PrivateKeyPath string
}

// NewFromConfig builds an Encryptor from cfg. An empty Type disables
// encryption entirely — artifacts.Store treats a nil Encryptor as
// write-through.
func NewFromConfig(cfg Config) (Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg.PublicKeyPath, cfg.PrivateKeyPath), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

package wireveil

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/blake2s"
)

// MaskingMode selects whether outbound packets are additionally wrapped in
// synthetic STUN framing (spec.md §4.4 "Shape").
type MaskingMode string

const (
	MaskingNone MaskingMode = "none"
	MaskingStun MaskingMode = "stun"
)

// Config is the on-disk/CLI-facing description of a relay session. It is
// loaded from JSON5 (see cmd/wireveil), mirroring mwgp's own ClientConfig
// JSON-tagged struct in client.go, generalized to cover both directions of
// the relay and the optional STUN masking and multi-peer behavior this
// expansion adds.
// Config's json5 and mapstructure tags carry the same field names
// ("local_port", "remote", ...). The config file is not decoded into a
// Config directly: cmd/wireveil/root.go parses it with json5 into a plain
// map and merges that into viper, and cmd/wireveil/relay.go's loadConfig
// decodes viper's merged file+env+flag view into a Config through the
// mapstructure tags.
type Config struct {
	// LocalPort is the loopback UDP port the relay listens on for the
	// unobfuscated side of the tunnel. 0 requests an ephemeral port.
	LocalPort int `json5:"local_port" mapstructure:"local_port"`

	// RemoteEndpoint is the obfuscated-side peer, "host:port".
	RemoteEndpoint string `json5:"remote" mapstructure:"remote"`

	// Key is the obfuscation key, base64-standard-encoded. Decoded length
	// must be 1-255 bytes (spec.md §3 "Key").
	Key string `json5:"key" mapstructure:"key"`

	// MaxDummyData caps random padding on non-handshake packets. 0 selects
	// DefaultMaxDummyData.
	MaxDummyData int `json5:"max_dummy_data" mapstructure:"max_dummy_data"`

	// Masking selects whether the obfuscated payload is additionally
	// wrapped as a synthetic STUN message.
	Masking MaskingMode `json5:"masking_mode" mapstructure:"masking_mode"`

	// AllowMultiplePeers opts into the peer-table redesign described in
	// spec.md §9 and SPEC_FULL.md's UDP Relay section. Off by default,
	// which preserves spec.md §4.4's singleton-local-peer behavior exactly.
	AllowMultiplePeers bool `json5:"allow_multiple_peers" mapstructure:"allow_multiple_peers"`

	// PeerTimeoutSeconds controls eviction from the peer table when
	// AllowMultiplePeers is set. 0 selects a 180s default.
	PeerTimeoutSeconds int `json5:"peer_timeout_seconds" mapstructure:"peer_timeout_seconds"`
}

// decodedKey returns the raw obfuscation key bytes.
func (c *Config) decodedKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	return key, nil
}

// KeyFingerprint returns a short, non-reversible identifier for the
// configured key, suitable for logging so two operators can confirm they
// share a key without either one ever printing it (SPEC_FULL.md "DOMAIN
// STACK"). It uses blake2s-256, declared in the teacher's go.mod via
// golang.org/x/crypto but otherwise unused by the retrieved teacher files.
func (c *Config) KeyFingerprint() (string, error) {
	key, err := c.decodedKey()
	if err != nil {
		return "", err
	}
	sum := blake2s.Sum256(key)
	return hex.EncodeToString(sum[:8]), nil
}

// Validate resolves addresses and checks the key length, surfacing
// construction errors to the caller before the relay starts (spec.md §7
// "Propagation policy": "Construction errors... surface to the caller").
func (c *Config) Validate() error {
	if _, err := net.ResolveUDPAddr("udp", c.RemoteEndpoint); err != nil {
		return ErrResolveAddr{Kind: "remote", Addr: c.RemoteEndpoint, Cause: err}
	}
	key, err := c.decodedKey()
	if err != nil {
		return err
	}
	if _, err := NewObfuscationEngine(key); err != nil {
		return err
	}
	switch c.Masking {
	case "", MaskingNone, MaskingStun:
	default:
		return fmt.Errorf("unknown masking_mode %q", c.Masking)
	}
	return nil
}

func (c *Config) peerTimeout() time.Duration {
	if c.PeerTimeoutSeconds <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.PeerTimeoutSeconds) * time.Second
}

// Package manifest reads the YAML manifests that accompany firmware images.
//
// A manifest names an image file next to it and pins its SHA-256:
//
//	version: 1.4.0
//	image: app-1.4.0.bin
//	sha256: 9f86d081884c7d65...
//	signature: 3a1f...      # optional, ed25519 over the SHA-512 of the image
//	public-key: d75a98...   # required with signature
package manifest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrDigestMismatch is returned when an image does not hash to the manifest
// SHA-256.
var ErrDigestMismatch = errors.New("image digest does not match manifest")

// FormatError is returned when a manifest cannot be parsed or is incomplete.
type FormatError struct {
	Path    string
	Message string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "invalid manifest: " + e.Message
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Message)
}

// Manifest describes one firmware image.
type Manifest struct {
	Version   string `yaml:"version,omitempty"`
	Image     string `yaml:"image"`
	SHA256    string `yaml:"sha256"`
	Signature string `yaml:"signature,omitempty"`
	PublicKey string `yaml:"public-key,omitempty"`

	// Dir is the directory relative image paths resolve against.
	Dir string `yaml:"-"`
}

// New returns a manifest for image stored at imagePath.
func New(imagePath string, image []byte, version string) *Manifest {
	sum := sha256.Sum256(image)
	return &Manifest{
		Version: version,
		Image:   filepath.Base(imagePath),
		SHA256:  hex.EncodeToString(sum[:]),
		Dir:     filepath.Dir(imagePath),
	}
}

// Sign attaches an ed25519 signature over digest, the SHA-512 of the image.
func (m *Manifest) Sign(priv ed25519.PrivateKey, digest []byte) {
	m.Signature = hex.EncodeToString(ed25519.Sign(priv, digest))
	m.PublicKey = hex.EncodeToString(priv.Public().(ed25519.PublicKey))
}

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, &FormatError{Message: err.Error()}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Save writes m to path.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (m *Manifest) validate() error {
	if m.Image == "" {
		return &FormatError{Message: "image is required"}
	}
	if b, err := hex.DecodeString(m.SHA256); err != nil || len(b) != sha256.Size {
		return &FormatError{Message: "sha256 must be 64 hex digits"}
	}
	if (m.Signature == "") != (m.PublicKey == "") {
		return &FormatError{Message: "signature and public-key go together"}
	}
	return nil
}

// ImagePath returns the path of the image file.
func (m *Manifest) ImagePath() string {
	if filepath.IsAbs(m.Image) {
		return m.Image
	}
	return filepath.Join(m.Dir, m.Image)
}

// ReadImage reads the image and checks it against the manifest digest.
func (m *Manifest) ReadImage() ([]byte, error) {
	image, err := os.ReadFile(m.ImagePath())
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := m.Verify(image); err != nil {
		return nil, err
	}
	return image, nil
}

// Verify checks image against the manifest digest.
func (m *Manifest) Verify(image []byte) error {
	sum := sha256.Sum256(image)
	if hex.EncodeToString(sum[:]) != m.SHA256 {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, m.Image)
	}
	return nil
}

// Signed reports whether the manifest carries a signature.
func (m *Manifest) Signed() bool {
	return m.Signature != ""
}

// Key decodes the public key and signature.
func (m *Manifest) Key() (ed25519.PublicKey, []byte, error) {
	pub, err := hex.DecodeString(m.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, nil, &FormatError{Message: "public-key must be 64 hex digits"}
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, nil, &FormatError{Message: "signature must be 128 hex digits"}
	}
	return ed25519.PublicKey(pub), sig, nil
}

// Package license validates the worker's deployment license. The license
// blob is base64-wrapped AES-128-CBC ciphertext whose plaintext is
// "CompanyName/Location/ServerUniqID/TotalLicense".
package license

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/rs/zerolog"
)

// License is the decoded license content.
type License struct {
	CompanyName  string
	Location     string
	ServerUniqID string
	TotalLicense int
}

// PadKeyMaterial zero-pads key material to the AES-128 block size.
// Material longer than 16 bytes is truncated.
func PadKeyMaterial(material string) []byte {
	key := make([]byte, aes.BlockSize)
	copy(key, material)
	return key
}

// Decrypt reverses Encrypt: base64 decode, AES-128-CBC decrypt, unpad.
func Decrypt(blob string, key, iv []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", domain.ErrLicenseMalformed, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", domain.ErrLicenseMalformed, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLicenseMalformed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return string(unpad(plaintext)), nil
}

// Encrypt produces a license blob from plaintext. Used by provisioning
// tooling and round-trip tests.
func Encrypt(plain string, key, iv []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plain))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// pad applies PKCS#7 padding to a full block multiple.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, falling back to trimming trailing zero
// bytes for blobs produced by zero-padding encryptors.
func unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n > 0 && n <= aes.BlockSize && n <= len(data) {
		valid := true
		for _, b := range data[len(data)-n:] {
			if int(b) != n {
				valid = false
				break
			}
		}
		if valid {
			return data[:len(data)-n]
		}
	}
	return bytes.TrimRight(data, "\x00")
}

// ParseLicense splits decrypted license plaintext into its fields.
func ParseLicense(plain string) (License, error) {
	parts := strings.Split(strings.TrimSpace(plain), "/")
	if len(parts) != 4 {
		return License{}, fmt.Errorf("%w: expected 4 fields, got %d", domain.ErrLicenseMalformed, len(parts))
	}

	total, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return License{}, fmt.Errorf("%w: total license %q", domain.ErrLicenseMalformed, parts[3])
	}

	return License{
		CompanyName:  parts[0],
		Location:     parts[1],
		ServerUniqID: strings.ToLower(strings.TrimSpace(parts[2])),
		TotalLicense: total,
	}, nil
}

// Validator checks license blobs against this server's fingerprint.
type Validator struct {
	key         []byte
	iv          []byte
	fingerprint string
	logger      zerolog.Logger
}

// NewValidator builds a validator from the environment key material and the
// machine fingerprint computed at startup.
func NewValidator(secretKey, iv, fingerprint string, logger zerolog.Logger) *Validator {
	return &Validator{
		key:         PadKeyMaterial(secretKey),
		iv:          PadKeyMaterial(iv),
		fingerprint: strings.ToLower(fingerprint),
		logger:      logger.With().Str("component", "license").Logger(),
	}
}

// Validate decrypts the blob and checks both license conditions: the
// embedded server ID must match this machine's fingerprint and the number
// of enabled machines must not exceed the licensed count. Failures are
// reported as ErrLicenseInvalid so callers can pause and re-check rather
// than crash.
func (v *Validator) Validate(ctx context.Context, blob string, enabledMachines int) error {
	plain, err := Decrypt(blob, v.key, v.iv)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLicenseInvalid, err)
	}

	lic, err := ParseLicense(plain)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLicenseInvalid, err)
	}

	if lic.ServerUniqID != v.fingerprint {
		v.logger.Debug().
			Str("company", lic.CompanyName).
			Str("location", lic.Location).
			Msg("License server ID does not match fingerprint")
		return fmt.Errorf("%w: %v", domain.ErrLicenseInvalid, domain.ErrFingerprintMismatch)
	}

	if enabledMachines > lic.TotalLicense {
		return fmt.Errorf("%w: %v: %d > %d", domain.ErrLicenseInvalid, domain.ErrMachineLimit, enabledMachines, lic.TotalLicense)
	}

	return nil
}

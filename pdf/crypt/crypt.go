// Package crypt provides the per-object cipher transforms of the PDF
// standard security handler.
//
// Transforms are derived from a file encryption key that is already known;
// computing that key from a password is left to the caller.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"errors"
	"fmt"
	"io"

	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedCrypt = errors.New("unsupported encryption")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// CryptFilterType represents the type of crypt filter.
type CryptFilterType string

const (
	CryptFilterNone     CryptFilterType = "None"
	CryptFilterV2       CryptFilterType = "V2"       // RC4
	CryptFilterAESV2    CryptFilterType = "AESV2"    // AES-128
	CryptFilterAESV3    CryptFilterType = "AESV3"    // AES-256
	CryptFilterIdentity CryptFilterType = "Identity" // No encryption
)

func (t CryptFilterType) checkKey(key []byte) error {
	switch t {
	case CryptFilterNone, CryptFilterIdentity:
		return nil
	case CryptFilterV2:
		if len(key) < 5 || len(key) > 16 {
			return fmt.Errorf("%w: RC4 file key of %d bytes", ErrInvalidKeyLength, len(key))
		}
	case CryptFilterAESV2:
		if len(key) != 16 {
			return fmt.Errorf("%w: AESV2 file key of %d bytes", ErrInvalidKeyLength, len(key))
		}
	case CryptFilterAESV3:
		if len(key) != 32 {
			return fmt.Errorf("%w: AESV3 file key of %d bytes", ErrInvalidKeyLength, len(key))
		}
	default:
		return fmt.Errorf("%w: crypt filter %s", ErrUnsupportedCrypt, t)
	}
	return nil
}

// CipherFactory creates the cipher transform of each object from the file
// encryption key.
type CipherFactory struct {
	fileKey    []byte
	stringType CryptFilterType
	streamType CryptFilterType
	rand       io.Reader
}

// NewCipherFactory creates a factory that uses method for both strings and
// streams.
func NewCipherFactory(fileKey []byte, method CryptFilterType) (*CipherFactory, error) {
	if err := method.checkKey(fileKey); err != nil {
		return nil, err
	}
	return &CipherFactory{
		fileKey:    append([]byte(nil), fileKey...),
		stringType: method,
		streamType: method,
		rand:       rand.Reader,
	}, nil
}

// NewCipherFactoryFromDict creates a factory for the methods named by an
// Encrypt dictionary of the standard security handler.
func NewCipherFactoryFromDict(encrypt *generic.DictionaryObject, fileKey []byte) (*CipherFactory, error) {
	if encrypt == nil {
		return nil, fmt.Errorf("%w: missing Encrypt dictionary", ErrUnsupportedCrypt)
	}
	if filter := encrypt.GetName("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: security handler %q", ErrUnsupportedCrypt, filter)
	}

	f := &CipherFactory{fileKey: append([]byte(nil), fileKey...), rand: rand.Reader}
	switch v := encrypt.GetIntDefault("V", 0); v {
	case 1, 2:
		f.stringType, f.streamType = CryptFilterV2, CryptFilterV2
	case 4, 5:
		cf := encrypt.GetDict("CF")
		var err error
		if f.streamType, err = cryptFilterMethod(cf, encrypt.GetName("StmF")); err != nil {
			return nil, err
		}
		if f.stringType, err = cryptFilterMethod(cf, encrypt.GetName("StrF")); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: V %d", ErrUnsupportedCrypt, v)
	}

	for _, t := range []CryptFilterType{f.stringType, f.streamType} {
		if err := t.checkKey(f.fileKey); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func cryptFilterMethod(cf *generic.DictionaryObject, name string) (CryptFilterType, error) {
	if name == "" || name == string(CryptFilterIdentity) {
		return CryptFilterIdentity, nil
	}
	var entry *generic.DictionaryObject
	if cf != nil {
		entry = cf.GetDict(name)
	}
	if entry == nil {
		return "", fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupportedCrypt, name)
	}
	switch m := CryptFilterType(entry.GetName("CFM")); m {
	case CryptFilterV2, CryptFilterAESV2, CryptFilterAESV3:
		return m, nil
	case CryptFilterNone, "":
		return CryptFilterIdentity, nil
	default:
		return "", fmt.Errorf("%w: CFM %s", ErrUnsupportedCrypt, m)
	}
}

// SetRand replaces the source of AES initialisation vectors.
func (f *CipherFactory) SetRand(r io.Reader) {
	f.rand = r
}

// CreateCipherTransform returns the transform for object num gen.
func (f *CipherFactory) CreateCipherTransform(num, gen int) *CipherTransform {
	return &CipherTransform{
		stringCipher: f.objectCipher(f.stringType, num, gen),
		streamCipher: f.objectCipher(f.streamType, num, gen),
		rand:         f.rand,
	}
}

func (f *CipherFactory) objectCipher(t CryptFilterType, num, gen int) objectCipher {
	switch t {
	case CryptFilterV2:
		return objectCipher{method: t, key: ObjectKey(f.fileKey, num, gen, false)}
	case CryptFilterAESV2:
		return objectCipher{method: t, key: ObjectKey(f.fileKey, num, gen, true)}
	case CryptFilterAESV3:
		return objectCipher{method: t, key: f.fileKey}
	}
	return objectCipher{method: CryptFilterIdentity}
}

type objectCipher struct {
	method CryptFilterType
	key    []byte
}

func (c objectCipher) encrypt(data []byte, r io.Reader) ([]byte, error) {
	switch c.method {
	case CryptFilterV2:
		return rc4XOR(c.key, data)
	case CryptFilterAESV2, CryptFilterAESV3:
		iv := make([]byte, aes.BlockSize)
		if _, err := io.ReadFull(r, iv); err != nil {
			return nil, err
		}
		return sealCBC(c.key, iv, data)
	}
	return data, nil
}

func (c objectCipher) decrypt(data []byte) ([]byte, error) {
	switch c.method {
	case CryptFilterV2:
		return rc4XOR(c.key, data)
	case CryptFilterAESV2, CryptFilterAESV3:
		return openCBC(c.key, data)
	}
	return data, nil
}

// CipherTransform encrypts and decrypts the strings and streams of one
// object.
type CipherTransform struct {
	stringCipher objectCipher
	streamCipher objectCipher
	rand         io.Reader
}

// EncryptString encrypts the bytes of a string object.
func (t *CipherTransform) EncryptString(data []byte) ([]byte, error) {
	return t.stringCipher.encrypt(data, t.rand)
}

// DecryptString decrypts the bytes of a string object.
func (t *CipherTransform) DecryptString(data []byte) ([]byte, error) {
	return t.stringCipher.decrypt(data)
}

// EncryptStream encrypts stream data.
func (t *CipherTransform) EncryptStream(data []byte) ([]byte, error) {
	return t.streamCipher.encrypt(data, t.rand)
}

// DecryptStream decrypts stream data held in memory.
func (t *CipherTransform) DecryptStream(data []byte) ([]byte, error) {
	return t.streamCipher.decrypt(data)
}

// NewDecryptor returns a chunked stream decryptor for filters.DecryptStream.
// Each call to NewDecryptor starts a new cipher state.
func (t *CipherTransform) NewDecryptor() (filters.DecryptFunc, error) {
	c := t.streamCipher
	switch c.method {
	case CryptFilterV2:
		rc, err := rc4.NewCipher(c.key)
		if err != nil {
			return nil, err
		}
		return func(chunk []byte, _ bool) ([]byte, error) {
			out := make([]byte, len(chunk))
			rc.XORKeyStream(out, chunk)
			return out, nil
		}, nil
	case CryptFilterAESV2, CryptFilterAESV3:
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, err
		}
		d := &aesChunkDecryptor{block: block}
		return d.decrypt, nil
	}
	return func(chunk []byte, _ bool) ([]byte, error) { return chunk, nil }, nil
}

// DecryptSource wraps src in a DecryptStream using this transform.
func (t *CipherTransform) DecryptSource(src filters.Source, maybeLength int) (*filters.DecryptStream, error) {
	decrypt, err := t.NewDecryptor()
	if err != nil {
		return nil, err
	}
	return filters.NewDecryptStream(src, maybeLength, decrypt), nil
}

// aesChunkDecryptor decrypts AES-CBC data whose first block is the IV. The
// last complete block is held back until the final chunk so that its
// padding can be removed.
type aesChunkDecryptor struct {
	block   cipher.Block
	mode    cipher.BlockMode
	pending []byte
}

func (d *aesChunkDecryptor) decrypt(chunk []byte, final bool) ([]byte, error) {
	d.pending = append(d.pending, chunk...)
	if d.mode == nil {
		if len(d.pending) < aes.BlockSize {
			if final {
				return nil, fmt.Errorf("%w: missing initialisation vector", ErrDecryptionFailed)
			}
			return nil, nil
		}
		d.mode = cipher.NewCBCDecrypter(d.block, d.pending[:aes.BlockSize])
		d.pending = d.pending[aes.BlockSize:]
	}

	var n int
	if final {
		if len(d.pending)%aes.BlockSize != 0 {
			return nil, ErrInvalidBlockSize
		}
		n = len(d.pending)
	} else if len(d.pending) > 0 {
		n = (len(d.pending) - 1) / aes.BlockSize * aes.BlockSize
	}

	out := make([]byte, n)
	d.mode.CryptBlocks(out, d.pending[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)
	if final {
		return unpad(out), nil
	}
	return out, nil
}
